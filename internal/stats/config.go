package stats

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// StatsConfig is a user-provided request to poll: a set of clusters, a set
// of stat names, an update interval, and the four ordered derived-stat
// spec sequences. It is created at configuration time and is immutable
// once passed to a registry's AddStats.
//
// UpdateInterval and Multiplier are mutually exclusive: a config either
// names an absolute poll interval, or a multiplier of each stat's own
// native cache time (resolved via the StatMetadataResolver; see
// schedule.Resolver), following the "*2.5" vs "30"
// statgroup.update_interval syntax.
type StatsConfig struct {
	ClusterConfigs *ClusterSet
	Stats          mapset.Set[string]
	UpdateInterval float64  // seconds; zero if Multiplier is set instead
	Multiplier     *float64 // multiplier of each stat's native cache time
	Composites     []CompositeSpec
	Equations      []EquationSpec
	PercentChanges []PercentChangeSpec
	FinalEquations []FinalEquationSpec
}

// NewStatsConfig builds a StatsConfig from a list of stat names, deduplicating
// via a set, ready to have derived-stat specs and clusters attached.
func NewStatsConfig(clusters []ClusterConfig, statNames []string, updateInterval float64) *StatsConfig {
	cs := NewClusterSet()
	for _, c := range clusters {
		cs.Add(c)
	}
	ss := mapset.NewSet[string]()
	for _, n := range statNames {
		ss.Add(n)
	}
	return &StatsConfig{
		ClusterConfigs: cs,
		Stats:          ss,
		UpdateInterval: updateInterval,
	}
}

// StatSet is the merged work associated with one update interval, scoped to
// a single cluster (an explicit correction to the
// Python original's StatSet was accidentally cluster-global, causing a
// StatsConfig's stats to be polled on clusters it never named; here each
// (cluster, interval) pair gets its own StatSet so that never happens).
type StatSet struct {
	Stats          mapset.Set[string]
	Composites     []CompositeSpec
	Equations      []EquationSpec
	PercentChanges []PercentChangeSpec
	FinalEquations []FinalEquationSpec
}

// NewStatSet returns an empty StatSet.
func NewStatSet() *StatSet {
	return &StatSet{Stats: mapset.NewSet[string]()}
}

// Merge unions ss2's stat names into ss (idempotent - adding the same
// StatsConfig's contribution twice only unions names once) and
// concatenates the four derived-stat sequences (intentionally NOT
// deduplicated).
func (ss *StatSet) Merge(statNames mapset.Set[string], composites []CompositeSpec, equations []EquationSpec, pctChanges []PercentChangeSpec, finalEquations []FinalEquationSpec) {
	ss.Stats = ss.Stats.Union(statNames)
	ss.Composites = append(ss.Composites, composites...)
	ss.Equations = append(ss.Equations, equations...)
	ss.PercentChanges = append(ss.PercentChanges, pctChanges...)
	ss.FinalEquations = append(ss.FinalEquations, finalEquations...)
}
