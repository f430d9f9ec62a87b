// Package events implements the Event Emitter (C8): builds a
// NormalizedEvent and gets it to the analytics sink without ever
// blocking the request goroutine that produced it. Grounded on
// llm/observability/tracing.go's Tracer/TraceExporter split (an
// in-process buffer with an async export path) and internal/channel's
// TunableChannel non-blocking-select pattern for the observability
// queue itself.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/internal/channel"
	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/internal/pool"
	"github.com/gatewayflow/gatewayflow/types"
)

// sinkWorkerConfig bounds how many sink writes the drain loop has in flight
// at once, so a slow analytics sink backs up the goroutine pool's queue
// rather than opening an unbounded number of outbound HTTP connections.
func sinkWorkerConfig() pool.GoroutinePoolConfig {
	cfg := pool.DefaultGoroutinePoolConfig()
	cfg.MaxWorkers = 32
	cfg.QueueSize = 256
	return cfg
}

// Emitter owns the observability queue and drains it to a Sink.
type Emitter struct {
	queue   *channel.TunableChannel[types.NormalizedEvent]
	sink    Sink
	metrics *metrics.Collector
	logger  *zap.Logger
	workers *pool.GoroutinePool
}

// New creates an Emitter. queueConfig sizes and auto-tunes the buffered
// channel backing the observability queue.
func New(queueConfig channel.TunableConfig, sink Sink, collector *metrics.Collector, logger *zap.Logger) *Emitter {
	return &Emitter{
		queue:   channel.NewTunableChannel[types.NormalizedEvent](queueConfig),
		sink:    sink,
		metrics: collector,
		logger:  logger.With(zap.String("component", "events")),
		workers: pool.NewGoroutinePool(sinkWorkerConfig()),
	}
}

// Emit enqueues event without blocking the caller (spec: "never blocks
// the request path"). On a full queue it falls back to a direct,
// synchronous write to the sink; if that also fails, it logs a warning
// and drops the event.
func (e *Emitter) Emit(ctx context.Context, event types.NormalizedEvent) {
	if e.queue.TrySend(event) {
		e.metrics.RecordEventEmitted("queued")
		return
	}

	if err := e.sink.Write(ctx, event); err != nil {
		e.logger.Warn("event dropped: queue full and direct sink write failed",
			zap.String("event_id", event.EventID),
			zap.String("project", event.Project),
			zap.Error(err))
		e.metrics.RecordEventEmitted("dropped")
		return
	}
	e.metrics.RecordEventEmitted("sink_fallback")
}

// Run drains the observability queue to the sink until ctx is cancelled.
// It is the consumer side of the queue Emit feeds; call it once from a
// long-lived goroutine at process startup.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain(context.Background())
			return
		case <-ticker.C:
			e.queue.Tune()
		default:
			event, ok := e.queue.TryReceive()
			if !ok {
				select {
				case <-ctx.Done():
					e.drain(context.Background())
					return
				case <-ticker.C:
					e.queue.Tune()
				case <-time.After(50 * time.Millisecond):
				}
				continue
			}
			e.writeOne(ctx, event)
		}
	}
}

// writeOne dispatches event to the bounded worker pool so multiple sink
// writes can be in flight at once; a full or closed pool falls back to
// writing inline rather than dropping the event outright.
func (e *Emitter) writeOne(ctx context.Context, event types.NormalizedEvent) {
	submitErr := e.workers.Submit(ctx, func(taskCtx context.Context) error {
		return e.writeToSink(taskCtx, event)
	})
	if submitErr != nil {
		_ = e.writeToSink(ctx, event)
	}
}

func (e *Emitter) writeToSink(ctx context.Context, event types.NormalizedEvent) error {
	if err := e.sink.Write(ctx, event); err != nil {
		e.logger.Warn("queued event failed to reach sink, dropping",
			zap.String("event_id", event.EventID), zap.Error(err))
		e.metrics.RecordEventEmitted("dropped")
		return err
	}
	return nil
}

// drain flushes any remaining queued events on shutdown, best-effort,
// then waits for every in-flight sink write to finish.
func (e *Emitter) drain(ctx context.Context) {
	for {
		event, ok := e.queue.TryReceive()
		if !ok {
			break
		}
		e.writeOne(ctx, event)
	}
	e.workers.Close()
}
