// Package schedule owns the scheduling core: the metadata-driven update
// interval resolver, the StatSet/UpdateInterval registry, the main
// scheduler loop, and the bounded query fan-out.
package schedule

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tenortim/clusterstatsd/internal/isiapi"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// allKeysCutoff is the stat-count threshold above which the resolver fetches
// the cluster's entire metadata key dump and filters client-side, rather
// than fetching one key at a time. This cutoff minimizes HTTP round-trip
// time vs. response size on the target cluster API.
const allKeysCutoff = 200

// Bucket is the resolver's output for one effective interval: the set of
// (cluster, stat) pairs that share that cadence, reconstituted as a
// cluster set plus a stat-name set. Every input stat name appears in
// exactly one bucket per cluster, though the same stat name may appear in
// several buckets across different clusters.
type Bucket struct {
	Clusters *stats.ClusterSet
	Stats    mapset.Set[string]
}

// ClusterMetadataFetcher abstracts "fetch metadata for these stat names"
// so the resolver does not need to know whether the caller will hit the
// batch all-keys endpoint or fetch one key at a time.
type ClusterMetadataFetcher interface {
	GetStatisticsKey(ctx context.Context, id string) (stats.Metadata, error)
	GetStatisticsKeys(ctx context.Context, resume string) ([]stats.Metadata, string, error)
}

// Resolver implements the metadata-driven update interval resolution.
type Resolver struct {
	// ClientFor returns the metadata-fetching client for a cluster. Split
	// out as a field (rather than reading ClusterConfig.Handle directly)
	// so tests can substitute a fake without needing a real isiapi.Client.
	ClientFor func(stats.ClusterConfig) ClusterMetadataFetcher
}

// NewResolver builds a Resolver that reads isiapi.Client out of each
// cluster's opaque Handle.
func NewResolver() *Resolver {
	return &Resolver{
		ClientFor: func(cc stats.ClusterConfig) ClusterMetadataFetcher {
			c, _ := cc.Handle.(isiapi.Client)
			return c
		},
	}
}

// Resolve fetches metadata for statNames on each of clusters and buckets
// every (cluster, stat) pair by effective interval × multiplier. A
// metadata-fetch failure for any cluster is fatal to configuration.
func (r *Resolver) Resolve(ctx context.Context, multiplier float64, clusters []stats.ClusterConfig, statNames []string) (map[float64]*Bucket, error) {
	buckets := make(map[float64]*Bucket)
	bucket := func(interval float64) *Bucket {
		b, ok := buckets[interval]
		if !ok {
			b = &Bucket{Clusters: stats.NewClusterSet(), Stats: mapset.NewSet[string]()}
			buckets[interval] = b
		}
		return b
	}

	for _, cc := range clusters {
		fetcher := r.ClientFor(cc)
		if fetcher == nil {
			return nil, fmt.Errorf("cluster %s: no metadata client configured", cc.Name)
		}
		metaByName, err := fetchMetadata(ctx, fetcher, statNames)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: fetching stat metadata: %w", cc.Name, err)
		}
		for _, name := range statNames {
			md, ok := metaByName[name]
			if !ok {
				return nil, fmt.Errorf("cluster %s: unknown stat %q", cc.Name, name)
			}
			interval := md.EffectiveInterval() * multiplier
			b := bucket(interval)
			b.Clusters.Add(cc)
			b.Stats.Add(name)
		}
	}
	return buckets, nil
}

// fetchMetadata retrieves metadata for names, using the all-keys dump and
// client-side filtering above allKeysCutoff names, else one key at a time.
func fetchMetadata(ctx context.Context, fetcher ClusterMetadataFetcher, names []string) (map[string]stats.Metadata, error) {
	wanted := mapset.NewSet[string](names...)
	result := make(map[string]stats.Metadata, len(names))

	if len(names) > allKeysCutoff {
		resume := ""
		for {
			metas, next, err := fetcher.GetStatisticsKeys(ctx, resume)
			if err != nil {
				return nil, err
			}
			for _, md := range metas {
				if !wanted.Contains(md.Key) {
					continue
				}
				result[md.Key] = md
			}
			if next == "" {
				break
			}
			resume = next
		}
		return result, nil
	}

	for _, name := range names {
		md, err := fetcher.GetStatisticsKey(ctx, name)
		if err != nil {
			return nil, err
		}
		result[name] = md
	}
	return result, nil
}
