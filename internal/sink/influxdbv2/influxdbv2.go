// Package influxdbv2 implements the InfluxDB 2.x processor, ported from
// generalized from a per-tick batch write
// to the streaming processor.Streaming contract.
package influxdbv2

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tenortim/clusterstatsd/internal/config"
	"github.com/tenortim/clusterstatsd/internal/sink"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Sink writes stats to an InfluxDB 2.x bucket via the blocking write API.
type Sink struct {
	cfg    config.InfluxDBv2Config
	logger *slog.Logger

	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// New returns a Sink configured from cfg. Connectivity is established in
// Start, which resolves the access token and must run before
// daemonization.
func New(cfg config.InfluxDBv2Config, logger *slog.Logger) *Sink {
	return &Sink{cfg: cfg, logger: logger}
}

// Start connects to InfluxDBv2 and verifies reachability with Ping.
func (s *Sink) Start(map[string]string) error {
	token, err := config.SecretFromEnv(s.cfg.Token)
	if err != nil {
		return fmt.Errorf("resolving InfluxDBv2 token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("InfluxDBv2 access token is missing or empty")
	}

	url := fmt.Sprintf("http://%s:%s", s.cfg.Host, s.cfg.Port)
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("pinging InfluxDBv2: %w", err)
	}
	if !ok {
		return fmt.Errorf("InfluxDBv2 ping failed: server not reachable")
	}

	s.client = client
	s.writeAPI = client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
	if s.logger != nil {
		s.logger.Info("connected to InfluxDBv2", "bucket", s.cfg.Bucket)
	}
	return nil
}

// Stop releases the underlying HTTP client.
func (s *Sink) Stop() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// ProcessStat decodes and writes one stat immediately.
func (s *Sink) ProcessStat(cluster string, st stats.Stat) error {
	p, err := sink.Decode(s.logger, cluster, st)
	if err != nil {
		return fmt.Errorf("decoding stat %s: %w", st.StatKey(), err)
	}

	pts := make([]*write.Point, 0, len(p.Fields))
	for i, f := range p.Fields {
		pts = append(pts, influxdb2.NewPoint(p.Name, p.Tags[i], f, time.Unix(p.Time, 0).UTC()))
	}
	if len(pts) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(context.Background(), pts...); err != nil {
		return fmt.Errorf("InfluxDBv2 write failed: %w", err)
	}
	return nil
}
