// Package discard implements the null processor: every stat is accepted
// and thrown away, useful for benchmarking the collection pipeline without
// a live backend.
package discard

import "github.com/tenortim/clusterstatsd/internal/stats"

// Sink is the discard processor. It implements processor.Streaming.
type Sink struct{}

// New returns a ready discard Sink.
func New() *Sink { return &Sink{} }

// ProcessStat discards s.
func (*Sink) ProcessStat(string, stats.Stat) error { return nil }
