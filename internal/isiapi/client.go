// Package isiapi is the cluster statistics client the scheduling core
// depends on. Only the interface in this file is a
// dependency of the core packages (stats/derive/schedule); OneFSClient is
// one concrete implementation speaking the Dell PowerScale/Isilon OneFS
// PAPI statistics protocol.
package isiapi

import (
	"context"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// MaxKeyStringLen is the limit on the combined length of a comma-joined
// keys string for a single v8.0+ batch query_stats call.
const MaxKeyStringLen = 7000

// QueryOpts carries the optional parameters to a stats query:
// query_stats(keys, devid="all", timeout, degraded, expand_clientid).
type QueryOpts struct {
	Devid           string // default "all"
	Timeout         int    // seconds; 0 omits the timeout parameter from the query
	Degraded        bool
	ExpandClientID  bool
}

// DefaultQueryOpts returns the documented default query parameters.
func DefaultQueryOpts() QueryOpts {
	return QueryOpts{Devid: "all", Timeout: 60, Degraded: true}
}

// Client is the cluster statistics client the core consumes. Its two
// query methods exist so QueryFanOut can use the v8.0+ batch endpoint or
// fall back to one call per key on 7.2 clusters.
type Client interface {
	// QueryStats issues the v8.0+ batch statistics query for the given keys.
	QueryStats(ctx context.Context, keys []string, opts QueryOpts) ([]stats.RawStat, error)
	// QueryStat issues the v7.2 single-key statistics query.
	QueryStat(ctx context.Context, key string, opts QueryOpts) ([]stats.RawStat, error)
	// GetStatisticsKeys pages through the full metadata key dump, decoding
	// each entry's metadata inline. Pass an empty resume token to start; a
	// non-empty returned token means there are more pages.
	GetStatisticsKeys(ctx context.Context, resume string) (metas []stats.Metadata, next string, err error)
	// GetStatisticsKey fetches metadata for a single stat key.
	GetStatisticsKey(ctx context.Context, id string) (stats.Metadata, error)
}
