package derive

import (
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// PercentChange emits, per node, the percent change of one input stat
// relative to its value at the previous interval firing. Previous values
// persist across ticks, keyed by cluster name then node id, so End must
// not be confused with Begin: Begin resets only the in-flight tick's
// selections.
type PercentChange struct {
	spec stats.PercentChangeSpec

	prev map[string]map[int]float64

	cluster string
	curr    map[int]any
	times   map[int]int64
}

// NewPercentChange returns a ready Computer for spec.
func NewPercentChange(spec stats.PercentChangeSpec) *PercentChange {
	return &PercentChange{spec: spec, prev: make(map[string]map[int]float64)}
}

func (p *PercentChange) Begin(cluster string) {
	p.cluster = cluster
	p.curr = make(map[int]any)
	p.times = make(map[int]int64)
}

func (p *PercentChange) Select(s stats.Stat) {
	if s.StatErr() != nil || s.StatKey() != p.spec.Input.Name {
		return
	}
	v, ok := p.spec.Input.GetValue(s.StatValue())
	if !ok {
		return
	}
	devid := s.StatDevid()
	p.curr[devid] = v
	p.times[devid] = s.StatTime()
}

func (p *PercentChange) Compute() []stats.DerivedStat {
	clusterPrev, hasCluster := p.prev[p.cluster]

	var out []stats.DerivedStat
	for devid, v := range p.curr {
		cur, ok := numberFrom(v)
		if !ok {
			out = append(out, stats.ErrorStat(p.spec.Output, devid, errNonNumericInput))
			continue
		}

		var pct float64
		if hasCluster {
			if prev, ok := clusterPrev[devid]; ok {
				switch {
				case prev == 0 && cur.float() == 0:
					pct = 0
				case prev == 0:
					pct = -((prev/cur.float() - 1) * 100)
				default:
					pct = (cur.float()/prev - 1) * 100
				}
			}
			// No previous value recorded for this node yet: treat as the
			// first interval it was ever seen, percent change 0.
		}

		out = append(out, stats.DerivedStat{Key: p.spec.Output, Devid: devid, Time: p.times[devid], Value: pct})
	}
	return out
}

func (p *PercentChange) End(cluster string) {
	dest, ok := p.prev[cluster]
	if !ok {
		dest = make(map[int]float64)
		p.prev[cluster] = dest
	}
	for devid, v := range p.curr {
		if n, ok := numberFrom(v); ok {
			dest[devid] = n.float()
		}
	}
}
