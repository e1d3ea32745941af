package derive

import (
	"fmt"
	"log/slog"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// StatSink is the subset of the processor adapter the pipeline drives
// directly: one raw or derived stat at a time, bracketed by begin/end
// markers for the cluster.
type StatSink interface {
	BeginProcess(cluster string)
	ProcessStat(cluster string, s stats.Stat)
	EndProcess(cluster string)
}

// Pipeline implements the derived-stat computation pipeline: a strict
// seven-step ordering across four computer tiers, where each tier observes
// every upstream tier's output but none of its own peers' or downstream
// tiers'.
type Pipeline struct {
	Composites     []*Composite
	Equations      []*Equation
	PercentChanges []*PercentChange
	FinalEquations []*FinalEquation

	Logger *slog.Logger
}

// NewPipeline compiles every spec into its computer and returns a ready
// Pipeline. A compile error (a malformed equation expression) is fatal to
// configuration, since a malformed expression can never become valid later
// and should fail fast rather than error on every tick.
func NewPipeline(logger *slog.Logger, composites []stats.CompositeSpec, equations []stats.EquationSpec, pctChanges []stats.PercentChangeSpec, finalEquations []stats.FinalEquationSpec) (*Pipeline, error) {
	p := &Pipeline{Logger: logger}
	for _, spec := range composites {
		p.Composites = append(p.Composites, NewComposite(spec))
	}
	for _, spec := range equations {
		eq, err := NewEquation(spec)
		if err != nil {
			return nil, err
		}
		p.Equations = append(p.Equations, eq)
	}
	for _, spec := range pctChanges {
		p.PercentChanges = append(p.PercentChanges, NewPercentChange(spec))
	}
	for _, spec := range finalEquations {
		fe, err := NewFinalEquation(spec)
		if err != nil {
			return nil, err
		}
		p.FinalEquations = append(p.FinalEquations, fe)
	}
	return p, nil
}

// Run drives one cluster's raw result set through the full seven-step
// ordering and into sink.
func (p *Pipeline) Run(cluster string, raw []stats.RawStat, sink StatSink) {
	// Step 1: begin on all four tiers.
	for _, c := range p.Composites {
		c.Begin(cluster)
	}
	for _, c := range p.Equations {
		c.Begin(cluster)
	}
	for _, c := range p.PercentChanges {
		c.Begin(cluster)
	}
	for _, c := range p.FinalEquations {
		c.Begin(cluster)
	}

	sink.BeginProcess(cluster)

	// Step 2: raw stats with no error go to the processor and to every
	// tier's select.
	for _, r := range raw {
		if r.Err != nil {
			p.logf(cluster, "raw stat %s (devid %d): %v", r.Key, r.Devid, r.Err)
			continue
		}
		sink.ProcessStat(cluster, r)
		for _, c := range p.Composites {
			c.Select(r)
		}
		for _, c := range p.Equations {
			c.Select(r)
		}
		for _, c := range p.PercentChanges {
			c.Select(r)
		}
		for _, c := range p.FinalEquations {
			c.Select(r)
		}
	}

	// Step 3: composites -> processor + equation/pct-change/final-equation select.
	composited := p.runTier(cluster, toComputers(p.Composites), sink)
	feedSelect(composited, p.Equations, p.PercentChanges, p.FinalEquations)

	// Step 4: equations -> processor + pct-change/final-equation select.
	equated := p.runTier(cluster, toComputers(p.Equations), sink)
	feedSelect(equated, nil, p.PercentChanges, p.FinalEquations)

	// Step 5: percent-change -> processor + final-equation select.
	changed := p.runTier(cluster, toComputers(p.PercentChanges), sink)
	feedSelect(changed, nil, nil, p.FinalEquations)

	// Step 6: final-equation -> processor only.
	p.runTier(cluster, toComputers(p.FinalEquations), sink)

	// Step 7: end on all four tiers, then end_process.
	for _, c := range p.Composites {
		c.End(cluster)
	}
	for _, c := range p.Equations {
		c.End(cluster)
	}
	for _, c := range p.PercentChanges {
		c.End(cluster)
	}
	for _, c := range p.FinalEquations {
		c.End(cluster)
	}
	sink.EndProcess(cluster)
}

// runTier calls Compute on every computer in the tier, sends non-error
// outputs to sink, logs and drops errored ones, and returns the
// successfully computed stats for downstream select calls.
func (p *Pipeline) runTier(cluster string, tier []Computer, sink StatSink) []stats.DerivedStat {
	var out []stats.DerivedStat
	for _, c := range tier {
		for _, ds := range c.Compute() {
			if ds.Err != nil {
				p.logf(cluster, "derived stat %s (devid %d): %v", ds.Key, ds.Devid, ds.Err)
				continue
			}
			sink.ProcessStat(cluster, ds)
			out = append(out, ds)
		}
	}
	return out
}

func (p *Pipeline) logf(cluster, format string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Warn("derived stat skipped", "cluster", cluster, "detail", fmt.Sprintf(format, args...))
}

func toComputers[T Computer](in []T) []Computer {
	out := make([]Computer, len(in))
	for i, c := range in {
		out[i] = c
	}
	return out
}

func feedSelect(ds []stats.DerivedStat, equations []*Equation, pctChanges []*PercentChange, finalEquations []*FinalEquation) {
	for _, s := range ds {
		for _, c := range equations {
			c.Select(s)
		}
		for _, c := range pctChanges {
			c.Select(s)
		}
		for _, c := range finalEquations {
			c.Select(s)
		}
	}
}
