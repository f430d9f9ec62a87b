package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/internal/channel"
	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/types"
)

var testNamespaceSeq uint64

func newTestCollector() *metrics.Collector {
	seq := atomic.AddUint64(&testNamespaceSeq, 1)
	return metrics.NewCollector(fmt.Sprintf("events_test_%d", seq), zap.NewNop())
}

type fakeSink struct {
	mu     sync.Mutex
	writes []types.NormalizedEvent
	err    error
}

func (f *fakeSink) Write(ctx context.Context, event types.NormalizedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, event)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func smallQueueConfig(size int) channel.TunableConfig {
	cfg := channel.DefaultTunableConfig()
	cfg.InitialSize = size
	cfg.MinSize = size
	return cfg
}

func TestEmitter_Emit_EnqueuesWithoutBlocking(t *testing.T) {
	sink := &fakeSink{}
	e := New(smallQueueConfig(8), sink, newTestCollector(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		e.Emit(context.Background(), types.NormalizedEvent{EventID: "evt-1", Project: "proj-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked")
	}
}

func TestEmitter_Run_DrainsQueueToSink(t *testing.T) {
	sink := &fakeSink{}
	e := New(smallQueueConfig(8), sink, newTestCollector(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	e.Emit(ctx, types.NormalizedEvent{EventID: "evt-1"})
	e.Emit(ctx, types.NormalizedEvent{EventID: "evt-2"})

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestEmitter_Emit_FallsBackToDirectWriteWhenQueueFull(t *testing.T) {
	sink := &fakeSink{}
	e := New(smallQueueConfig(1), sink, newTestCollector(), zap.NewNop())

	// fill the queue without a consumer draining it
	e.queue.TrySend(types.NormalizedEvent{EventID: "filler"})

	e.Emit(context.Background(), types.NormalizedEvent{EventID: "overflow"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "overflow", sink.writes[0].EventID)
}

func TestEmitter_Emit_DropsWhenQueueFullAndSinkFails(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink unreachable")}
	e := New(smallQueueConfig(1), sink, newTestCollector(), zap.NewNop())

	e.queue.TrySend(types.NormalizedEvent{EventID: "filler"})

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), types.NormalizedEvent{EventID: "dropped-one"})
	})
}
