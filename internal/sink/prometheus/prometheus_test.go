package prometheus

import (
	"testing"
	"time"

	"github.com/tenortim/clusterstatsd/internal/config"
	"github.com/tenortim/clusterstatsd/internal/sink"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

func TestMetricNameReplacesDots(t *testing.T) {
	if got := metricName("node.ifs.ops.in"); got != "clusterstatsd_stat_node_ifs_ops_in" {
		t.Fatalf("metricName() = %q", got)
	}
}

func TestSampleIDForIsOrderIndependent(t *testing.T) {
	a := sampleIDFor(sink.Tags{"cluster": "c1", "devid": "1"})
	b := sampleIDFor(sink.Tags{"devid": "1", "cluster": "c1"})
	if a != b {
		t.Fatalf("sampleIDFor should be independent of map iteration order: %q != %q", a, b)
	}
}

func TestProcessStatRecordsSample(t *testing.T) {
	s := New(config.PrometheusConfig{}, ":0", nil)
	err := s.ProcessStat("cluster1", stats.RawStat{Key: "node.ifs.ops.in", Devid: 1, Time: 100, Value: 5.0})
	if err != nil {
		t.Fatalf("ProcessStat error: %v", err)
	}
	fam, ok := s.fam["clusterstatsd_stat_node_ifs_ops_in"]
	if !ok {
		t.Fatalf("expected a family to be recorded")
	}
	if len(fam.samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(fam.samples))
	}
}

func TestProcessStatRejectsNonNumericField(t *testing.T) {
	s := New(config.PrometheusConfig{}, ":0", nil)
	err := s.ProcessStat("cluster1", stats.RawStat{
		Key: "node.a", Devid: 1, Time: 1,
		Value: map[string]any{"flag": true},
	})
	if err == nil {
		t.Fatalf("expected an error for a non-numeric field value")
	}
}

func TestExpireRemovesStaleSamples(t *testing.T) {
	s := New(config.PrometheusConfig{}, ":0", nil)
	_ = s.ProcessStat("cluster1", stats.RawStat{Key: "node.a", Devid: 1, Time: 1, Value: 1.0})

	s.mu.Lock()
	for _, fam := range s.fam {
		for _, smp := range fam.samples {
			smp.expiration = smp.expiration.Add(-time.Hour)
		}
	}
	s.mu.Unlock()

	s.mu.Lock()
	s.expire()
	remaining := len(s.fam)
	s.mu.Unlock()

	if remaining != 0 {
		t.Fatalf("expire() left %d families, want 0", remaining)
	}
}
