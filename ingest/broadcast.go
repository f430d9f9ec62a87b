package ingest

import (
	"sync"

	"github.com/gatewayflow/gatewayflow/types"
)

// StepEvent is one AgentStep as published to live subscribers, paired
// with the run it belongs to.
type StepEvent struct {
	Project string          `json:"project"`
	RunID   string          `json:"run_id"`
	Step    types.AgentStep `json:"step"`
}

// Broadcaster fans out each ingested run's steps to live subscribers of
// that run's project, supplementing spec.md's synchronous ingestion with
// an optional live-tail view over /v1/agent-runs/stream.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan StepEvent]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan StepEvent]struct{})}
}

// Subscribe registers a channel to receive every StepEvent published for
// project. The returned func unsubscribes and must be called once the
// subscriber is done reading.
func (b *Broadcaster) Subscribe(project string) (<-chan StepEvent, func()) {
	ch := make(chan StepEvent, 32)

	b.mu.Lock()
	if b.subs[project] == nil {
		b.subs[project] = make(map[chan StepEvent]struct{})
	}
	b.subs[project][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[project], ch)
		if len(b.subs[project]) == 0 {
			delete(b.subs, project)
		}
		b.mu.Unlock()
		close(ch)
	}

	return ch, unsubscribe
}

// Publish fans out event to every subscriber of event.Project.
// Non-blocking: a subscriber too slow to keep up misses events rather
// than stalling ingestion, since Publish is always called from the
// synchronous Ingest request path.
func (b *Broadcaster) Publish(event StepEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.Project] {
		select {
		case ch <- event:
		default:
		}
	}
}
