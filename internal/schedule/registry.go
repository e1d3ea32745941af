package schedule

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// UpdateInterval is the scheduler's record of one distinct poll cadence:
// the interval itself and when it last fired. LastUpdate is stored as a
// monotonic-capable time.Time (time.Now() carries a monotonic reading) so
// the scheduler survives wall-clock steps.
type UpdateInterval struct {
	Interval   time.Duration
	LastUpdate time.Time
}

// clusterWork is the per-cluster StatSet for one UpdateInterval. StatSets
// are cluster-scoped (see stats.StatSet's doc comment on the corrected
// "open question" behavior): a StatsConfig's stats are never queried on
// clusters it did not name.
type clusterWork struct {
	cluster stats.ClusterConfig
	set     *stats.StatSet
}

// Registry owns the full set of UpdateIntervals and the per-(interval,
// cluster) StatSets the scheduler dispatches from.
type Registry struct {
	resolver *Resolver

	// order preserves first-seen interval order, so Tick visits due
	// intervals in a fixed order; clusters within one interval come from
	// a map, so the order of Tick's jobs across clusters is not fixed.
	order     []time.Duration
	intervals map[time.Duration]*UpdateInterval
	work      map[time.Duration]map[string]*clusterWork // interval -> cluster address -> work
}

// NewRegistry builds an empty Registry. resolver may be nil if no
// StatsConfig added to it ever uses Multiplier-based intervals.
func NewRegistry(resolver *Resolver) *Registry {
	return &Registry{
		resolver:  resolver,
		intervals: make(map[time.Duration]*UpdateInterval),
		work:      make(map[time.Duration]map[string]*clusterWork),
	}
}

// AddStats registers a StatsConfig. It is created at configuration time
// and consumed exactly once; the registry never mutates it afterward.
func (r *Registry) AddStats(ctx context.Context, cfg *stats.StatsConfig) error {
	if cfg.Multiplier != nil {
		return r.addResolvedStats(ctx, cfg)
	}
	return r.addFixedIntervalStats(cfg)
}

func (r *Registry) addFixedIntervalStats(cfg *stats.StatsConfig) error {
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("stats config: update interval must be positive")
	}
	d := time.Duration(cfg.UpdateInterval * float64(time.Second))
	for _, cc := range cfg.ClusterConfigs.List() {
		r.mergeInto(d, cc, cfg.Stats, cfg.Composites, cfg.Equations, cfg.PercentChanges, cfg.FinalEquations)
	}
	return nil
}

func (r *Registry) addResolvedStats(ctx context.Context, cfg *stats.StatsConfig) error {
	if r.resolver == nil {
		return fmt.Errorf("stats config: multiplier-based interval requires a metadata resolver")
	}
	buckets, err := r.resolver.Resolve(ctx, *cfg.Multiplier, cfg.ClusterConfigs.List(), cfg.Stats.ToSlice())
	if err != nil {
		return fmt.Errorf("resolving update intervals: %w", err)
	}
	for effectiveSecs, bucket := range buckets {
		d := time.Duration(effectiveSecs * float64(time.Second))
		for _, cc := range bucket.Clusters.List() {
			r.mergeInto(d, cc, bucket.Stats, cfg.Composites, cfg.Equations, cfg.PercentChanges, cfg.FinalEquations)
		}
	}
	return nil
}

func (r *Registry) mergeInto(d time.Duration, cc stats.ClusterConfig, statNames mapset.Set[string], composites []stats.CompositeSpec, equations []stats.EquationSpec, pctChanges []stats.PercentChangeSpec, finalEquations []stats.FinalEquationSpec) {
	if _, ok := r.intervals[d]; !ok {
		r.order = append(r.order, d)
		r.intervals[d] = &UpdateInterval{Interval: d}
		r.work[d] = make(map[string]*clusterWork)
	}
	byCluster := r.work[d]
	cw, ok := byCluster[cc.Address]
	if !ok {
		cw = &clusterWork{cluster: cc, set: stats.NewStatSet()}
		byCluster[cc.Address] = cw
	}
	cw.set.Merge(statNames, composites, equations, pctChanges, finalEquations)
}

// Intervals returns every distinct UpdateInterval in first-registered
// order.
func (r *Registry) Intervals() []time.Duration {
	return r.order
}

// Init sets every UpdateInterval's LastUpdate so all fire on the first
// tick.
func (r *Registry) Init(now time.Time) {
	for _, d := range r.order {
		r.intervals[d].LastUpdate = now.Add(-d)
	}
}

// NextDeadline returns the earliest time any interval next comes due: the
// scheduler sleeps max(0, min over intervals of (last_update + interval -
// now)) before its next tick.
func (r *Registry) NextDeadline() time.Time {
	var next time.Time
	for _, d := range r.order {
		ui := r.intervals[d]
		deadline := ui.LastUpdate.Add(ui.Interval)
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	return next
}

// ClusterJob is one cluster's merged work for a tick: the union of every
// due interval's StatSet that names this cluster.
type ClusterJob struct {
	Cluster stats.ClusterConfig
	Set     *stats.StatSet
}

// Tick advances every UpdateInterval whose deadline has passed (using the
// same now for all of them, so every due interval in one tick shares a
// single snapshot of "now") and returns the merged per-cluster work list
// to dispatch. LastUpdate is
// advanced before the caller queries the clusters, so query duration never
// shifts the schedule (fixed-rate, not fixed-delay).
func (r *Registry) Tick(now time.Time) []ClusterJob {
	merged := make(map[string]*ClusterJob)
	var order []string

	for _, d := range r.order {
		ui := r.intervals[d]
		if now.Sub(ui.LastUpdate) < d {
			continue
		}
		ui.LastUpdate = now
		for addr, cw := range r.work[d] {
			job, ok := merged[addr]
			if !ok {
				job = &ClusterJob{Cluster: cw.cluster, Set: stats.NewStatSet()}
				merged[addr] = job
				order = append(order, addr)
			}
			job.Set.Merge(cw.set.Stats, cw.set.Composites, cw.set.Equations, cw.set.PercentChanges, cw.set.FinalEquations)
		}
	}

	jobs := make([]ClusterJob, 0, len(order))
	for _, addr := range order {
		jobs = append(jobs, *merged[addr])
	}
	return jobs
}
