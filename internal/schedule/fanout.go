package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tenortim/clusterstatsd/internal/derive"
	"github.com/tenortim/clusterstatsd/internal/isiapi"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// MaxAsyncQueries bounds the QueryFanOut worker pool.
const MaxAsyncQueries = 20

// FanOut implements QueryFanOut: a bounded worker pool that queries one
// cluster per job and hands the result to that cluster's derived-stat
// pipeline.
//
// isiapi.Client already reports every transport and API-level failure as a
// plain error (restGet folds HTTP status and connection errors alike into
// fmt.Errorf), so there's no second error category to distinguish an
// "unexpected" failure from an ordinary one at the type level. Instead
// that distinction maps onto Go's panic/recover: a goroutine that panics
// is the unexpected case (re-raised under Debug, otherwise logged), while
// an ordinary returned error is always logged and the job is skipped.
//
// A cluster's derived-stat spec set (which composites/equations/etc. apply
// to it) is fixed once the registry finishes configuration, even though
// Tick rebuilds the merged StatSet object on every firing - so the
// Pipeline per cluster is built lazily on first use and cached, letting
// PercentChange's previous-value state persist across ticks instead of
// resetting every time a fresh StatSet is merged in.
type FanOut struct {
	ClientFor func(stats.ClusterConfig) isiapi.Client
	Sink      derive.StatSink
	Logger    *slog.Logger
	Debug     bool

	sem chan struct{}

	mu        sync.Mutex
	pipelines map[string]*derive.Pipeline
}

// NewFanOut builds a FanOut with the default pool size.
func NewFanOut(clientFor func(stats.ClusterConfig) isiapi.Client, sink derive.StatSink, logger *slog.Logger, debug bool) *FanOut {
	return &FanOut{
		ClientFor: clientFor,
		Sink:      sink,
		Logger:    logger,
		Debug:     debug,
		sem:       make(chan struct{}, MaxAsyncQueries),
		pipelines: make(map[string]*derive.Pipeline),
	}
}

// Dispatch queries every job's cluster concurrently (bounded by
// MaxAsyncQueries) and blocks until all of them finish, so ticks never
// interleave (join before the next sleep). A panic
// recovered from one job's goroutine is logged (or, under Debug, re-raised
// from Dispatch once every job has finished) and never affects any other
// job.
func (f *FanOut) Dispatch(ctx context.Context, jobs []ClusterJob) {
	var wg sync.WaitGroup
	panics := make(chan any, len(jobs))
dispatch:
	for _, job := range jobs {
		job := job
		select {
		case f.sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-f.sem }()
			defer f.recoverJob(job.Cluster, panics)
			f.runJob(ctx, job)
		}()
	}
	wg.Wait()
	select {
	case r := <-panics:
		panic(r)
	default:
	}
}

func (f *FanOut) recoverJob(cc stats.ClusterConfig, panics chan<- any) {
	if r := recover(); r != nil {
		if f.Debug {
			panics <- r
			return
		}
		f.logf(cc, fmt.Sprintf("recovered from panic in query job: %v", r))
	}
}

func (f *FanOut) runJob(ctx context.Context, job ClusterJob) {
	client := f.ClientFor(job.Cluster)
	if client == nil {
		f.logf(job.Cluster, "no API client configured")
		return
	}

	keys := job.Set.Stats.ToSlice()
	opts := isiapi.DefaultQueryOpts()

	var raw []stats.RawStat
	var err error
	if job.Cluster.SupportsBatchQuery() {
		raw, err = client.QueryStats(ctx, keys, opts)
	} else {
		for _, key := range keys {
			part, perKeyErr := client.QueryStat(ctx, key, opts)
			if perKeyErr != nil {
				err = perKeyErr
				break
			}
			raw = append(raw, part...)
		}
	}

	if err != nil {
		f.logf(job.Cluster, fmt.Sprintf("query failed, skipping this tick: %v", err))
		return
	}

	pipeline, err := f.pipelineFor(job)
	if err != nil {
		f.logf(job.Cluster, fmt.Sprintf("building derived-stat pipeline: %v", err))
		return
	}
	pipeline.Run(job.Cluster.Name, raw, f.Sink)
}

func (f *FanOut) pipelineFor(job ClusterJob) (*derive.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pipelines[job.Cluster.Address]; ok {
		return p, nil
	}
	p, err := derive.NewPipeline(f.Logger, job.Set.Composites, job.Set.Equations, job.Set.PercentChanges, job.Set.FinalEquations)
	if err != nil {
		return nil, err
	}
	f.pipelines[job.Cluster.Address] = p
	return p, nil
}

func (f *FanOut) logf(cc stats.ClusterConfig, detail string) {
	if f.Logger == nil {
		return
	}
	f.Logger.Warn("cluster query", "cluster", cc.Name, "address", cc.Address, "detail", detail)
}
