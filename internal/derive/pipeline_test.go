package derive

import (
	"testing"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

type recordingSink struct {
	began, ended []string
	processed    []stats.Stat
}

func (r *recordingSink) BeginProcess(cluster string) { r.began = append(r.began, cluster) }
func (r *recordingSink) EndProcess(cluster string)   { r.ended = append(r.ended, cluster) }
func (r *recordingSink) ProcessStat(cluster string, s stats.Stat) {
	r.processed = append(r.processed, s)
}

func (r *recordingSink) valueFor(key string) (any, bool) {
	for _, s := range r.processed {
		if s.StatKey() == key {
			return s.StatValue(), true
		}
	}
	return nil, false
}

func TestPipelineOrdersTiersAndFeedsDownstream(t *testing.T) {
	composites := []stats.CompositeSpec{{Input: "node.a", Output: "cluster.a.avg", Op: stats.AggAvg}}
	equations := []stats.EquationSpec{{
		Inputs: []stats.Input{stats.NewInput("cluster.a.avg")},
		Output: "eq.out",
		Expr:   "a * 2",
	}}
	pctChanges := []stats.PercentChangeSpec{{Input: stats.NewInput("eq.out"), Output: "eq.out.pct"}}
	finals := []stats.FinalEquationSpec{{
		Inputs: []stats.Input{stats.NewInput("eq.out.pct")},
		Output: "final.out",
		Expr:   "a + 1",
	}}

	p, err := NewPipeline(nil, composites, equations, pctChanges, finals)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	raw := []stats.RawStat{
		{Key: "node.a", Devid: 1, Time: 1, Value: 10.0},
		{Key: "node.a", Devid: 2, Time: 1, Value: 20.0},
	}

	sink := &recordingSink{}
	p.Run("clusterA", raw, sink)

	if len(sink.began) != 1 || sink.began[0] != "clusterA" {
		t.Fatalf("BeginProcess calls = %+v", sink.began)
	}
	if len(sink.ended) != 1 || sink.ended[0] != "clusterA" {
		t.Fatalf("EndProcess calls = %+v", sink.ended)
	}

	avg, ok := sink.valueFor("cluster.a.avg")
	if !ok || avg != 15.0 {
		t.Fatalf("cluster.a.avg = %v, %v, want 15.0", avg, ok)
	}
	eqOut, ok := sink.valueFor("eq.out")
	if !ok || eqOut != 30.0 {
		t.Fatalf("eq.out = %v, %v, want 30.0 (15*2)", eqOut, ok)
	}
	pct, ok := sink.valueFor("eq.out.pct")
	if !ok || pct != 0.0 {
		t.Fatalf("eq.out.pct = %v, %v, want 0.0 (first interval)", pct, ok)
	}
	final, ok := sink.valueFor("final.out")
	if !ok || final != 1.0 {
		t.Fatalf("final.out = %v, %v, want 1.0 (0+1)", final, ok)
	}
}

func TestPipelineSkipsErroredRawStats(t *testing.T) {
	p, err := NewPipeline(nil, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}
	raw := []stats.RawStat{
		{Key: "a", Devid: 1, Err: errNonNumericInput},
		{Key: "b", Devid: 1, Time: 1, Value: 5.0},
	}
	sink := &recordingSink{}
	p.Run("clusterA", raw, sink)
	if len(sink.processed) != 1 {
		t.Fatalf("processed = %+v, want only the non-errored raw stat", sink.processed)
	}
}

func TestNewPipelinePropagatesCompileErrors(t *testing.T) {
	bad := []stats.EquationSpec{{Inputs: []stats.Input{stats.NewInput("a")}, Output: "c", Expr: "a +"}}
	if _, err := NewPipeline(nil, nil, bad, nil, nil); err == nil {
		t.Fatalf("expected NewPipeline to propagate equation compile error")
	}
}
