// Package processor adapts a downstream stat sink - batch or streaming -
// behind the single interface the derived-stat pipeline drives.
package processor

import (
	"fmt"
	"log/slog"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Batch is the legacy shape: one call per cluster per tick with every raw
// stat collected. Derived stats are not supported in this mode.
type Batch interface {
	Process(cluster string, raw []stats.RawStat) error
}

// Streaming is the shape required for derived-stat support: one call per
// stat, bracketed by optional begin/end markers.
type Streaming interface {
	ProcessStat(cluster string, s stats.Stat) error
}

// Beginner and Ender are optional on a Streaming processor; the adapter
// installs a no-op for whichever is absent.
type Beginner interface {
	BeginProcess(cluster string)
}
type Ender interface {
	EndProcess(cluster string)
}

// Starter and Stopper are optional on either shape, called once at daemon
// configuration (before daemonization, so it may prompt interactively) and
// once at shutdown.
type Starter interface {
	Start(args map[string]string) error
}
type Stopper interface {
	Stop() error
}

// Adapter wraps a concrete sink (batch or streaming) behind the uniform
// derive.StatSink interface, detecting its shape once at registration.
type Adapter struct {
	streaming Streaming
	batch     Batch
	beginner  Beginner
	ender     Ender
	log       *slog.Logger

	batchBuf map[string][]stats.RawStat
}

// New inspects sink and returns a ready Adapter. A sink implementing
// neither Batch nor Streaming is a configuration error. log records any
// error the sink returns from ProcessStat/Process, since a write failure
// otherwise vanishes silently from the operator's view.
func New(sink any, log *slog.Logger) (*Adapter, error) {
	a := &Adapter{log: log}
	if s, ok := sink.(Streaming); ok {
		a.streaming = s
		a.beginner, _ = sink.(Beginner)
		a.ender, _ = sink.(Ender)
		return a, nil
	}
	if b, ok := sink.(Batch); ok {
		a.batch = b
		a.batchBuf = make(map[string][]stats.RawStat)
		return a, nil
	}
	return nil, fmt.Errorf("processor: sink implements neither Batch nor Streaming")
}

// SupportsDerivedStats reports whether this sink can receive derived
// stats (streaming mode only).
func (a *Adapter) SupportsDerivedStats() bool {
	return a.streaming != nil
}

// Start calls the sink's optional Start hook, if present.
func (a *Adapter) Start(args map[string]string) error {
	var s any = a.streaming
	if s == nil {
		s = a.batch
	}
	if starter, ok := s.(Starter); ok {
		return starter.Start(args)
	}
	return nil
}

// Stop calls the sink's optional Stop hook, if present.
func (a *Adapter) Stop() error {
	var s any = a.streaming
	if s == nil {
		s = a.batch
	}
	if stopper, ok := s.(Stopper); ok {
		return stopper.Stop()
	}
	return nil
}

// BeginProcess starts a cluster's delivery. In batch mode this just resets
// the per-cluster buffer; in streaming mode it forwards to the sink's
// optional BeginProcess.
func (a *Adapter) BeginProcess(cluster string) {
	if a.batch != nil {
		a.batchBuf[cluster] = a.batchBuf[cluster][:0]
		return
	}
	if a.beginner != nil {
		a.beginner.BeginProcess(cluster)
	}
}

// ProcessStat delivers one raw or derived stat, after the value
// pre-processing step below. In batch mode a non-RawStat (i.e. a
// derived stat) is silently dropped, since batch sinks cannot receive
// derived stats.
func (a *Adapter) ProcessStat(cluster string, s stats.Stat) {
	processed := preprocessValue(s)
	if a.batch != nil {
		raw, ok := processed.(stats.RawStat)
		if !ok {
			return
		}
		a.batchBuf[cluster] = append(a.batchBuf[cluster], raw)
		return
	}
	if err := a.streaming.ProcessStat(cluster, processed); err != nil {
		a.log.Error("processor failed to write stat", "cluster", cluster, "key", processed.StatKey(), "error", err)
	}
}

// EndProcess finishes a cluster's delivery: in batch mode it flushes the
// buffered raw stats with one Process call; in streaming mode it forwards
// to the sink's optional EndProcess.
func (a *Adapter) EndProcess(cluster string) {
	if a.batch != nil {
		if err := a.batch.Process(cluster, a.batchBuf[cluster]); err != nil {
			a.log.Error("processor failed to write batch", "cluster", cluster, "error", err)
		}
		delete(a.batchBuf, cluster)
		return
	}
	if a.ender != nil {
		a.ender.EndProcess(cluster)
	}
}

// preprocessValue implements the value pre-processing step: if a raw
// stat's value is a string, try to parse it as a literal; leave it as a
// string on any parse failure.
func preprocessValue(s stats.Stat) stats.Stat {
	str, ok := s.StatValue().(string)
	if !ok {
		return s
	}
	v, ok := parseLiteral(str)
	if !ok {
		return s
	}
	switch t := s.(type) {
	case stats.RawStat:
		t.Value = v
		return t
	case stats.DerivedStat:
		t.Value = v
		return t
	default:
		return s
	}
}
