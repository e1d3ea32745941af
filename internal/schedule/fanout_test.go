package schedule

import (
	"context"
	"fmt"
	"testing"

	"github.com/tenortim/clusterstatsd/internal/isiapi"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

type fakeClient struct {
	batchResult []stats.RawStat
	batchErr    error
	perKeyErr   error
	panicOnCall bool
}

func (f *fakeClient) QueryStats(ctx context.Context, keys []string, opts isiapi.QueryOpts) ([]stats.RawStat, error) {
	if f.panicOnCall {
		panic("boom")
	}
	return f.batchResult, f.batchErr
}

func (f *fakeClient) QueryStat(ctx context.Context, key string, opts isiapi.QueryOpts) ([]stats.RawStat, error) {
	if f.perKeyErr != nil {
		return nil, f.perKeyErr
	}
	return []stats.RawStat{{Key: key, Time: 1, Value: 1.0}}, nil
}

func (f *fakeClient) GetStatisticsKeys(ctx context.Context, resume string) ([]stats.Metadata, string, error) {
	return nil, "", nil
}

func (f *fakeClient) GetStatisticsKey(ctx context.Context, id string) (stats.Metadata, error) {
	return stats.Metadata{}, nil
}

type fakeFanOutSink struct {
	processed []stats.Stat
}

func (f *fakeFanOutSink) BeginProcess(cluster string) {}
func (f *fakeFanOutSink) EndProcess(cluster string)   {}
func (f *fakeFanOutSink) ProcessStat(cluster string, s stats.Stat) {
	f.processed = append(f.processed, s)
}

func TestFanOutDispatchesBatchQueryForV8Cluster(t *testing.T) {
	client := &fakeClient{batchResult: []stats.RawStat{{Key: "a", Time: 1, Value: 1.0}}}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, false)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 8.0}
	set := stats.NewStatSet()
	set.Stats.Add("a")
	fo.Dispatch(context.Background(), []ClusterJob{{Cluster: cc, Set: set}})

	if len(sink.processed) != 1 {
		t.Fatalf("processed = %d, want 1", len(sink.processed))
	}
}

func TestFanOutFallsBackToPerKeyQueryForV72Cluster(t *testing.T) {
	client := &fakeClient{}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, false)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 7.2}
	set := stats.NewStatSet()
	set.Stats.Add("a")
	fo.Dispatch(context.Background(), []ClusterJob{{Cluster: cc, Set: set}})

	if len(sink.processed) != 1 {
		t.Fatalf("processed = %d, want 1 (per-key query fallback)", len(sink.processed))
	}
}

func TestFanOutLogsAndSkipsOnQueryError(t *testing.T) {
	client := &fakeClient{batchErr: fmt.Errorf("connection refused")}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, false)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 8.0}
	set := stats.NewStatSet()
	set.Stats.Add("a")
	fo.Dispatch(context.Background(), []ClusterJob{{Cluster: cc, Set: set}})

	if len(sink.processed) != 0 {
		t.Fatalf("processed = %d, want 0 on query failure", len(sink.processed))
	}
}

func TestFanOutRecoversPanicWithoutDebug(t *testing.T) {
	client := &fakeClient{panicOnCall: true}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, false)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 8.0}
	set := stats.NewStatSet()
	set.Stats.Add("a")

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Dispatch should recover the panic when Debug is false, got: %v", r)
		}
	}()
	fo.Dispatch(context.Background(), []ClusterJob{{Cluster: cc, Set: set}})
}

func TestFanOutRePanicsUnderDebug(t *testing.T) {
	client := &fakeClient{panicOnCall: true}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, true)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 8.0}
	set := stats.NewStatSet()
	set.Stats.Add("a")

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Dispatch to re-panic under Debug")
		}
	}()
	fo.Dispatch(context.Background(), []ClusterJob{{Cluster: cc, Set: set}})
}

func TestFanOutCachesPipelinePerCluster(t *testing.T) {
	client := &fakeClient{batchResult: []stats.RawStat{{Key: "a", Time: 1, Value: 10.0}}}
	sink := &fakeFanOutSink{}
	fo := NewFanOut(func(stats.ClusterConfig) isiapi.Client { return client }, sink, nil, false)

	cc := stats.ClusterConfig{Address: "10.0.0.1", Name: "c1", Version: 8.0}
	set := stats.NewStatSet()
	set.Stats.Add("a")
	job := ClusterJob{Cluster: cc, Set: set}

	p1, err := fo.pipelineFor(job)
	if err != nil {
		t.Fatalf("pipelineFor error: %v", err)
	}
	p2, err := fo.pipelineFor(job)
	if err != nil {
		t.Fatalf("pipelineFor error: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("pipelineFor should return the cached pipeline for the same cluster address")
	}
}
