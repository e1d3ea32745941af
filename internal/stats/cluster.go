package stats

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// ClusterConfig is the stable identity for a cluster. Equality and hashing
// are on Address alone, so that duplicate cluster
// entries in configuration collapse into one.
type ClusterConfig struct {
	Address string
	Name    string
	Version float64 // 7.2 or 8.0+
	Handle  any     // opaque cluster-client handle
}

// SupportsBatchQuery reports whether this cluster's API version supports
// the v8.0+ batch query_stats endpoint.
func (c ClusterConfig) SupportsBatchQuery() bool {
	return c.Version >= 8.0
}

// ClusterSet is an insertion-ordered set of ClusterConfig, deduplicated on
// Address, as used for StatsConfig.ClusterConfigs.
type ClusterSet struct {
	order    []ClusterConfig
	byAddr   map[string]int
	addrsSet mapset.Set[string]
}

// NewClusterSet returns an empty ClusterSet.
func NewClusterSet() *ClusterSet {
	return &ClusterSet{
		byAddr:   make(map[string]int),
		addrsSet: mapset.NewSet[string](),
	}
}

// Add inserts cc, deduplicating on Address. Re-adding an already-present
// address is a no-op (idempotent union).
func (s *ClusterSet) Add(cc ClusterConfig) {
	if s.addrsSet.Contains(cc.Address) {
		return
	}
	s.addrsSet.Add(cc.Address)
	s.byAddr[cc.Address] = len(s.order)
	s.order = append(s.order, cc)
}

// Union merges other into s, in other's insertion order.
func (s *ClusterSet) Union(other *ClusterSet) {
	if other == nil {
		return
	}
	for _, cc := range other.order {
		s.Add(cc)
	}
}

// Contains reports whether a cluster with the given address is present.
func (s *ClusterSet) Contains(address string) bool {
	return s.addrsSet.Contains(address)
}

// List returns the clusters in insertion order. The returned slice must
// not be mutated by callers.
func (s *ClusterSet) List() []ClusterConfig {
	return s.order
}

// Len returns the number of distinct clusters in the set.
func (s *ClusterSet) Len() int {
	return len(s.order)
}
