package derive

import (
	"testing"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

func TestPercentChangeFirstIntervalIsZero(t *testing.T) {
	p := NewPercentChange(stats.PercentChangeSpec{Input: stats.NewInput("a"), Output: "a.pct"})
	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Value: 50.0})
	out := p.Compute()
	if len(out) != 1 || out[0].Value != 0.0 {
		t.Fatalf("first interval Compute() = %+v, want pct 0", out)
	}
	p.End("cluster1")
}

func TestPercentChangeAcrossTicks(t *testing.T) {
	p := NewPercentChange(stats.PercentChangeSpec{Input: stats.NewInput("a"), Output: "a.pct"})

	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Value: 100.0})
	p.Compute()
	p.End("cluster1")

	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 2, Value: 150.0})
	out := p.Compute()
	if len(out) != 1 {
		t.Fatalf("Compute() returned %d stats, want 1", len(out))
	}
	if out[0].Value != 50.0 {
		t.Fatalf("pct change 100->150 = %v, want 50", out[0].Value)
	}
}

func TestPercentChangeZeroToZeroIsZero(t *testing.T) {
	p := NewPercentChange(stats.PercentChangeSpec{Input: stats.NewInput("a"), Output: "a.pct"})

	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Value: 0.0})
	p.Compute()
	p.End("cluster1")

	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 2, Value: 0.0})
	out := p.Compute()
	if len(out) != 1 || out[0].Value != 0.0 {
		t.Fatalf("0 -> 0 pct change = %+v, want 0", out)
	}
}

func TestPercentChangeStateIsPerClusterAndPerNode(t *testing.T) {
	p := NewPercentChange(stats.PercentChangeSpec{Input: stats.NewInput("a"), Output: "a.pct"})

	p.Begin("clusterA")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Value: 100.0})
	p.Compute()
	p.End("clusterA")

	// A different cluster's first tick must still read as "first interval", 0%,
	// not inherit clusterA's previous value.
	p.Begin("clusterB")
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Value: 999.0})
	out := p.Compute()
	if len(out) != 1 || out[0].Value != 0.0 {
		t.Fatalf("clusterB first tick = %+v, want pct 0 (no cross-cluster state leak)", out)
	}
}

func TestPercentChangeIgnoresErroredAndUnrelatedStats(t *testing.T) {
	p := NewPercentChange(stats.PercentChangeSpec{Input: stats.NewInput("a"), Output: "a.pct"})
	p.Begin("cluster1")
	p.Select(stats.RawStat{Key: "b", Devid: 1, Time: 1, Value: 10.0})
	p.Select(stats.RawStat{Key: "a", Devid: 1, Time: 1, Err: errNonNumericInput})
	out := p.Compute()
	if out != nil {
		t.Fatalf("Compute() = %+v, want nil (nothing valid selected)", out)
	}
}
