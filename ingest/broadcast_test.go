package ingest

import (
	"testing"
	"time"

	"github.com/gatewayflow/gatewayflow/types"
)

func TestBroadcaster_DeliversToSubscriberOfSameProject(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("proj-a")
	defer unsubscribe()

	b.Publish(StepEvent{Project: "proj-a", RunID: "run-1", Step: types.AgentStep{StepIndex: 0}})

	select {
	case event := <-ch:
		if event.RunID != "run-1" {
			t.Fatalf("expected run-1, got %s", event.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_IsolatesProjects(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("proj-a")
	defer unsubscribe()

	b.Publish(StepEvent{Project: "proj-b", RunID: "run-1"})

	select {
	case event := <-ch:
		t.Fatalf("subscriber of proj-a should not receive proj-b's event, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("proj-a")
	unsubscribe()

	b.Publish(StepEvent{Project: "proj-a", RunID: "run-1"})

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestBroadcaster_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	done := make(chan struct{})
	go func() {
		b.Publish(StepEvent{Project: "proj-a", RunID: "run-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
