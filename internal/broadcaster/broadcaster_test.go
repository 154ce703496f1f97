package broadcaster

import (
	"context"
	"testing"
	"time"
)

func TestBroadcastDisconnectsFullSubscriber(t *testing.T) {
	b := New(Samplers{}, time.Hour, 1, nil, "", nil)

	slow := b.Subscribe()
	// fill the bounded channel (depth 1) so the next push finds it full
	slow.send <- Snapshot{}

	b.broadcast(Snapshot{})

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("expected slow subscriber to be disconnected")
	}

	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.SubscriberCount())
	}
}

func TestBroadcastDeliversToSubscriber(t *testing.T) {
	b := New(Samplers{}, time.Hour, 4, nil, "", nil)
	sub := b.Subscribe()

	b.broadcast(Snapshot{})

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("subscriber never received a snapshot")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := New(Samplers{}, 10*time.Millisecond, 4, nil, "", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
