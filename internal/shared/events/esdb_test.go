package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// newStuckPublisher builds a StorePublisher whose writer sits on a
// blocked append until release is closed. No EventStoreDB involved.
func newStuckPublisher(queueSize int, release chan struct{}, appended *atomic.Int64) *StorePublisher {
	p := &StorePublisher{prefix: "health"}
	p.appendFn = func(ctx context.Context, event Event) error {
		<-release
		appended.Add(1)
		return nil
	}
	p.start(queueSize)
	return p
}

func TestStorePublisherNeverBlocksIngestion(t *testing.T) {
	release := make(chan struct{})
	var appended atomic.Int64
	p := newStuckPublisher(2, release, &appended)

	// Writer is stuck on the first event; the queue holds two more.
	// Everything past that is dropped, and no Publish call waits.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			p.Publish(context.Background(), NewEvent(TypeAlertOutbreak, "engine", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stuck event store")
	}

	close(release)
	p.Close()

	// The in-flight event plus at most the queue capacity survive.
	if got := appended.Load(); got < 1 || got > 3 {
		t.Errorf("expected 1-3 appended events, got %d", got)
	}
}

func TestStorePublisherCloseDrainsQueue(t *testing.T) {
	release := make(chan struct{})
	close(release)
	var appended atomic.Int64
	p := newStuckPublisher(8, release, &appended)

	for i := 0; i < 5; i++ {
		p.Publish(context.Background(), NewEvent(TypeCrisisUpdate, "engine", nil))
	}
	p.Close()

	if got := appended.Load(); got != 5 {
		t.Errorf("expected 5 appended events after drain, got %d", got)
	}
	// Idempotent
	p.Close()
}
