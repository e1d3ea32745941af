// Package influxdb implements the InfluxDB 1.x line-protocol processor,
// generalized from a per-tick batch-write path
// to the streaming processor.Streaming contract.
package influxdb

import (
	"fmt"
	"log/slog"
	"time"

	influxclient "github.com/influxdata/influxdb1-client/v2"

	"github.com/tenortim/clusterstatsd/internal/config"
	"github.com/tenortim/clusterstatsd/internal/sink"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Sink writes stats to an InfluxDB 1.x database over HTTP.
type Sink struct {
	cfg    config.InfluxDBConfig
	logger *slog.Logger

	client influxclient.Client
}

// New returns a Sink configured from cfg.
func New(cfg config.InfluxDBConfig, logger *slog.Logger) *Sink {
	return &Sink{cfg: cfg, logger: logger}
}

// Start opens the InfluxDB HTTP client and verifies connectivity with Ping.
func (s *Sink) Start(map[string]string) error {
	password, err := config.SecretFromEnv(s.cfg.Password)
	if err != nil {
		return fmt.Errorf("resolving InfluxDB password: %w", err)
	}

	httpCfg := influxclient.HTTPConfig{
		Addr: fmt.Sprintf("http://%s:%s", s.cfg.Host, s.cfg.Port),
	}
	if s.cfg.Authenticated {
		httpCfg.Username = s.cfg.Username
		httpCfg.Password = password
	}
	client, err := influxclient.NewHTTPClient(httpCfg)
	if err != nil {
		return fmt.Errorf("creating InfluxDB client: %w", err)
	}
	if _, _, err := client.Ping(10 * time.Second); err != nil {
		return fmt.Errorf("pinging InfluxDB: %w", err)
	}
	s.client = client
	if s.logger != nil {
		s.logger.Info("connected to InfluxDB", "database", s.cfg.Database)
	}
	return nil
}

// Stop closes the underlying HTTP client.
func (s *Sink) Stop() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ProcessStat decodes and writes one stat immediately as an InfluxDB batch
// of one or more points (a stat can unwrap into several tag sets).
func (s *Sink) ProcessStat(cluster string, st stats.Stat) error {
	p, err := sink.Decode(s.logger, cluster, st)
	if err != nil {
		return fmt.Errorf("decoding stat %s: %w", st.StatKey(), err)
	}
	if len(p.Fields) == 0 {
		return nil
	}

	bp, err := influxclient.NewBatchPoints(influxclient.BatchPointsConfig{Database: s.cfg.Database})
	if err != nil {
		return fmt.Errorf("building InfluxDB batch: %w", err)
	}
	for i, f := range p.Fields {
		pt, err := influxclient.NewPoint(p.Name, p.Tags[i], f, time.Unix(p.Time, 0).UTC())
		if err != nil {
			return fmt.Errorf("building InfluxDB point: %w", err)
		}
		bp.AddPoint(pt)
	}
	if err := s.client.Write(bp); err != nil {
		return fmt.Errorf("InfluxDB write failed: %w", err)
	}
	return nil
}
