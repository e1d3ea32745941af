package stats

import "testing"

func TestNewStatsConfigDedupesStatNames(t *testing.T) {
	clusters := []ClusterConfig{{Address: "10.0.0.1"}}
	cfg := NewStatsConfig(clusters, []string{"a", "b", "a"}, 30)
	if cfg.Stats.Cardinality() != 2 {
		t.Fatalf("Stats.Cardinality() = %d, want 2", cfg.Stats.Cardinality())
	}
	if cfg.ClusterConfigs.Len() != 1 {
		t.Fatalf("ClusterConfigs.Len() = %d, want 1", cfg.ClusterConfigs.Len())
	}
	if cfg.UpdateInterval != 30 {
		t.Fatalf("UpdateInterval = %v, want 30", cfg.UpdateInterval)
	}
}

func TestStatSetMergeUnionsStatsButConcatenatesSpecs(t *testing.T) {
	ss := NewStatSet()
	names1 := NewStatsConfig(nil, []string{"a", "b"}, 0).Stats
	names2 := NewStatsConfig(nil, []string{"b", "c"}, 0).Stats

	comp := CompositeSpec{Input: "a", Output: "cluster.a.avg", Op: AggAvg}
	ss.Merge(names1, []CompositeSpec{comp}, nil, nil, nil)
	ss.Merge(names2, []CompositeSpec{comp}, nil, nil, nil)

	if ss.Stats.Cardinality() != 3 {
		t.Fatalf("Stats.Cardinality() = %d, want 3 (a, b, c)", ss.Stats.Cardinality())
	}
	if len(ss.Composites) != 2 {
		t.Fatalf("len(Composites) = %d, want 2 (not deduplicated)", len(ss.Composites))
	}
}
