package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBroadcasterFanOut(t *testing.T) {
	b := NewMemoryBroadcaster(4)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Close()
	defer subB.Close()

	if err := b.Publish(context.Background(), Event{Type: EventJobProgress, EntityID: "job-1"}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case evt := <-subA.Events():
		if evt.EntityID != "job-1" {
			t.Fatalf("unexpected entity id %q", evt.EntityID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber A did not receive event")
	}

	select {
	case evt := <-subB.Events():
		if evt.EntityID != "job-1" {
			t.Fatalf("unexpected entity id %q", evt.EntityID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber B did not receive event")
	}
}

func TestMemoryBroadcasterRejectsEmptyType(t *testing.T) {
	b := NewMemoryBroadcaster(1)
	if err := b.Publish(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for empty event type")
	}
}

func TestMemoryBroadcasterCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBroadcaster(1)
	sub := b.Subscribe()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected channel to be closed")
	}
}
