package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/logging"
	"luckengine/internal/reward"

	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu       sync.Mutex
	requests []reward.BatchRequest
	err      error
}

func (f *fakeProcessor) ProcessBatch(_ context.Context, req reward.BatchRequest) (*reward.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &reward.BatchResult{BatchID: req.BatchID}, nil
}

func (f *fakeProcessor) seen() []reward.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reward.BatchRequest(nil), f.requests...)
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	published []*reward.BatchResult
}

func (f *fakeBroadcaster) Publish(_ string, result *reward.BatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, result)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testLogger() logging.Logger {
	return logging.New(logging.Config{Level: "error"})
}

func TestAggregator_EnqueueThenFlushSubmitsOneBatch(t *testing.T) {
	proc := &fakeProcessor{}
	bcast := &fakeBroadcaster{}
	agg := New(proc, bcast, Config{TickPeriod: time.Hour, MaxBatchSize: 100}, testLogger())

	agg.Enqueue("game-1", "alice")
	agg.Enqueue("game-1", "bob")
	agg.flush(context.Background())

	require.Eventually(t, func() bool { return bcast.count() == 1 }, time.Second, time.Millisecond)
	reqs := proc.seen()
	require.Len(t, reqs, 1)
	require.ElementsMatch(t, []string{"alice", "bob"}, reqs[0].Usernames)
}

func TestAggregator_EnqueueDropsPastMaxBatchSize(t *testing.T) {
	proc := &fakeProcessor{}
	bcast := &fakeBroadcaster{}
	agg := New(proc, bcast, Config{TickPeriod: time.Hour, MaxBatchSize: 2}, testLogger())

	agg.Enqueue("game-1", "alice")
	agg.Enqueue("game-1", "bob")
	agg.Enqueue("game-1", "carol") // dropped, buffer at capacity

	batches := agg.snapshot()
	require.Len(t, batches["game-1"], 2)
}

func TestAggregator_FailedBatchBroadcastsDegradedAllLoss(t *testing.T) {
	proc := &fakeProcessor{err: require.AnError}
	bcast := &fakeBroadcaster{}
	agg := New(proc, bcast, Config{TickPeriod: time.Hour, MaxBatchSize: 100}, testLogger())

	agg.Enqueue("game-1", "alice")
	agg.flush(context.Background())

	require.Eventually(t, func() bool { return bcast.count() == 1 }, time.Second, time.Millisecond)
	bcast.mu.Lock()
	result := bcast.published[0]
	bcast.mu.Unlock()

	require.Len(t, result.Rewards, 1)
	require.Equal(t, domain.TxLoss, result.Rewards[0].Status)
}

func TestAggregator_SnapshotClearsBuffers(t *testing.T) {
	proc := &fakeProcessor{}
	bcast := &fakeBroadcaster{}
	agg := New(proc, bcast, Config{TickPeriod: time.Hour, MaxBatchSize: 100}, testLogger())

	agg.Enqueue("game-1", "alice")
	first := agg.snapshot()
	require.Len(t, first["game-1"], 1)

	second := agg.snapshot()
	require.Empty(t, second)
}

func TestAggregator_RunFlushesOnTickAndStopsOnStop(t *testing.T) {
	proc := &fakeProcessor{}
	bcast := &fakeBroadcaster{}
	agg := New(proc, bcast, Config{TickPeriod: 10 * time.Millisecond, MaxBatchSize: 100}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	agg.Enqueue("game-1", "alice")
	require.Eventually(t, func() bool { return bcast.count() >= 1 }, time.Second, 5*time.Millisecond)

	agg.Stop()
}
