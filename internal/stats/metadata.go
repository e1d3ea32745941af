package stats

// Policy is one entry of a stat's refresh-policy sequence, as returned by
// the cluster metadata endpoint.
type Policy struct {
	Interval float64 // seconds
}

// Metadata is the per-stat-key metadata used to compute an effective poll
// interval. DefaultCacheTime is a pointer so "absent" is distinguishable
// from "zero".
type Metadata struct {
	Key              string
	DefaultCacheTime *float64
	Policies         []Policy
}

// continuouslyUpdatedInterval is the sentinel effective interval (seconds)
// used when a stat has neither policies nor a default cache time - it is
// refreshed continuously on the cluster side.
const continuouslyUpdatedInterval = 1.0

// EffectiveInterval computes the refresh interval for this stat per
// min(policy intervals) if policies exist, else
// default_cache_time+1, else the "continuously updated" sentinel of 1
// second. The +1 compensates for a stat refreshed at time T not being
// visible until T+1.
func (m Metadata) EffectiveInterval() float64 {
	if len(m.Policies) > 0 {
		min := m.Policies[0].Interval
		for _, p := range m.Policies[1:] {
			if p.Interval < min {
				min = p.Interval
			}
		}
		return min
	}
	if m.DefaultCacheTime != nil {
		return *m.DefaultCacheTime + 1
	}
	return continuouslyUpdatedInterval
}
