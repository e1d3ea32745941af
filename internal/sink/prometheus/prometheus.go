// Package prometheus implements the Prometheus exposition processor: an
// in-memory Collector fed by ProcessStat, served over HTTP, adapted to the
// streaming processor.Streaming contract and threaded with context for
// shutdown.
package prometheus

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenortim/clusterstatsd/internal/config"
	"github.com/tenortim/clusterstatsd/internal/netutil"
	"github.com/tenortim/clusterstatsd/internal/sink"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

const namespace = "clusterstatsd"

// defaultExpiry is the TTL a sample survives without being refreshed
// before Collect drops it. Deriving this per-stat from each stat's own
// update interval would need interval metadata this adapter doesn't have
// on hand (it is driven one stat at a time), so it uses one fixed TTL
// instead - a deliberate simplification.
const defaultExpiry = 5 * time.Minute

// sampleID uniquely identifies one label combination within a metric
// family, built by sorting and joining "k=v" pairs.
type sampleID string

type sample struct {
	labels     map[string]string
	value      float64
	timestamp  time.Time
	expiration time.Time
}

type family struct {
	samples  map[sampleID]*sample
	labelSet map[string]int
	help     string
}

// Sink is the Prometheus processor: a prometheus.Collector that
// accumulates the latest sample per (metric, label set) and serves them
// over an HTTP /metrics endpoint.
type Sink struct {
	cfg    config.PrometheusConfig
	addr   string
	logger *slog.Logger

	mu  sync.Mutex
	fam map[string]*family

	registry *prometheus.Registry
	server   *http.Server
}

// New returns a Sink listening on addr once Start is called.
func New(cfg config.PrometheusConfig, addr string, logger *slog.Logger) *Sink {
	return &Sink{cfg: cfg, addr: addr, logger: logger, fam: make(map[string]*family)}
}

// Start registers the collector and opens the HTTP listener.
func (s *Sink) Start(map[string]string) error {
	s.registry = prometheus.NewRegistry()
	if err := s.registry.Register(s); err != nil {
		return fmt.Errorf("registering prometheus collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.homepage)
	mux.Handle("/metrics", s.auth(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})))

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	listener, err := netutil.Listen(context.Background(), s.addr, s.logger)
	if err != nil {
		return fmt.Errorf("creating listener for prometheus endpoint: %w", err)
	}

	go func() {
		var serveErr error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			serveErr = s.server.ServeTLS(listener, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			serveErr = s.server.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed && s.logger != nil {
			s.logger.Error("prometheus metrics endpoint exited", "error", serveErr)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Sink) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Sink) homepage(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `<html><body><h1>clusterstatsd</h1><p>Metrics at <a href="/metrics">/metrics</a></p></body></html>`)
}

func (s *Sink) auth(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Username != "" && s.cfg.Password != "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			u, p, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(s.cfg.Username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(p), []byte(s.cfg.Password)) != 1 {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
		}
		h.ServeHTTP(w, r)
	})
}

// Describe implements prometheus.Collector with a minimal dummy
// descriptor, since metric names are dynamic (one family per stat key).
func (s *Sink) Describe(ch chan<- *prometheus.Desc) {
	prometheus.NewGauge(prometheus.GaugeOpts{Name: "clusterstatsd_dummy", Help: "placeholder, real families are dynamic"}).Describe(ch)
}

// Collect implements prometheus.Collector, expiring stale samples first.
func (s *Sink) Collect(ch chan<- prometheus.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire()

	for name, fam := range s.fam {
		var labelNames []string
		for k, n := range fam.labelSet {
			if n > 0 {
				labelNames = append(labelNames, k)
			}
		}
		sort.Strings(labelNames)

		for _, smp := range fam.samples {
			desc := prometheus.NewDesc(name, fam.help, labelNames, nil)
			labels := make([]string, len(labelNames))
			for i, l := range labelNames {
				labels[i] = smp.labels[l]
			}
			metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, smp.value, labels...)
			if err != nil {
				if s.logger != nil {
					s.logger.Error("creating prometheus metric", "metric", name, "error", err)
				}
				continue
			}
			ch <- prometheus.NewMetricWithTimestamp(smp.timestamp, metric)
		}
	}
}

func (s *Sink) expire() {
	now := time.Now()
	for name, fam := range s.fam {
		for id, smp := range fam.samples {
			if now.After(smp.expiration) {
				for k := range smp.labels {
					fam.labelSet[k]--
				}
				delete(fam.samples, id)
			}
		}
		if len(fam.samples) == 0 {
			delete(s.fam, name)
		}
	}
}

func sampleIDFor(tags sink.Tags) sampleID {
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return sampleID(strings.Join(pairs, ","))
}

func metricName(stat string) string {
	return namespace + "_stat_" + strings.ReplaceAll(stat, ".", "_")
}

// ProcessStat decodes s and records/updates the corresponding samples.
func (s *Sink) ProcessStat(cluster string, st stats.Stat) error {
	p, err := sink.Decode(s.logger, cluster, st)
	if err != nil {
		return fmt.Errorf("decoding stat %s: %w", st.StatKey(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	base := metricName(p.Name)
	for i, fields := range p.Fields {
		id := sampleIDFor(p.Tags[i])
		multiValued := len(fields) > 1
		for field, v := range fields {
			if field == "op_id" {
				continue
			}
			name := base
			if multiValued {
				name = base + "_" + field
			}
			value, ok := toFloat64(v)
			if !ok {
				return fmt.Errorf("stat %s: field %q has non-numeric value %T", p.Name, field, v)
			}

			labels := make(map[string]string, len(p.Tags[i]))
			for k, v := range p.Tags[i] {
				labels[k] = v
			}

			fam, ok := s.fam[name]
			if !ok {
				fam = &family{samples: make(map[sampleID]*sample), labelSet: make(map[string]int)}
				s.fam[name] = fam
			}
			fam.help = "clusterstatsd collected stat " + p.Name
			if old, ok := fam.samples[id]; ok {
				for k := range old.labels {
					fam.labelSet[k]--
				}
			}
			for k := range labels {
				fam.labelSet[k]++
			}
			fam.samples[id] = &sample{
				labels:     labels,
				value:      value,
				timestamp:  time.Unix(p.Time, 0),
				expiration: now.Add(defaultExpiry),
			}
		}
	}
	return nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
