package derive

import (
	"fmt"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Composite aggregates every node's value of one base stat into a single
// cluster-level output.
type Composite struct {
	spec   stats.CompositeSpec
	values []number
	times  []int64
}

// NewComposite returns a ready Computer for spec.
func NewComposite(spec stats.CompositeSpec) *Composite {
	return &Composite{spec: spec}
}

func (c *Composite) Begin(string) {
	c.values = nil
	c.times = nil
}

func (c *Composite) Select(s stats.Stat) {
	if s.StatErr() != nil || s.StatKey() != c.spec.Input {
		return
	}
	n, ok := numberFrom(s.StatValue())
	if !ok {
		return
	}
	c.values = append(c.values, n)
	c.times = append(c.times, s.StatTime())
}

func (c *Composite) Compute() []stats.DerivedStat {
	if len(c.values) == 0 {
		return nil
	}
	t, ok := meanTime(c.times)
	if !ok {
		return []stats.DerivedStat{stats.ErrorStat(c.spec.Output, 0, fmt.Errorf("composite %s: no timestamps to average", c.spec.Output))}
	}

	var result float64
	switch c.spec.Op {
	case stats.AggAvg:
		var sum float64
		for _, v := range c.values {
			sum += v.float()
		}
		result = sum / float64(len(c.values))
	case stats.AggSum:
		var sum float64
		for _, v := range c.values {
			sum += v.float()
		}
		result = sum
	case stats.AggMin:
		result = c.values[0].float()
		for _, v := range c.values[1:] {
			if v.float() < result {
				result = v.float()
			}
		}
	case stats.AggMax:
		result = c.values[0].float()
		for _, v := range c.values[1:] {
			if v.float() > result {
				result = v.float()
			}
		}
	default:
		return []stats.DerivedStat{stats.ErrorStat(c.spec.Output, 0, fmt.Errorf("composite %s: unknown op %v", c.spec.Output, c.spec.Op))}
	}

	return []stats.DerivedStat{{Key: c.spec.Output, Devid: 0, Time: t, Value: result}}
}

func (c *Composite) End(string) {}
