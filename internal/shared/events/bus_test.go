package events

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	event := NewEvent(TypeAlertOutbreak, "engine", map[string]any{"ward": "W-04"})
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.Type != TypeAlertOutbreak {
			t.Errorf("expected type %s, got %s", TypeAlertOutbreak, got.Type)
		}
		if got.ID == "" {
			t.Error("event ID should be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	// Subscriber that never reads
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), NewEvent(TypeCrisisUpdate, "engine", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	bus.Publish(context.Background(), NewEvent(TypeIngestHospital, "engine", nil))

	// Channel is closed after cancel
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := NewBus(4)
	ch, _ := bus.Subscribe()
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed subscriber channel after bus close")
	}
	if err := bus.Publish(context.Background(), NewEvent(TypeIngestLab, "engine", nil)); err != nil {
		t.Errorf("publish after close should be a no-op, got %v", err)
	}
}

func TestFanout(t *testing.T) {
	a := NewBus(4)
	b := NewBus(4)
	defer a.Close()
	defer b.Close()

	chA, cancelA := a.Subscribe()
	chB, cancelB := b.Subscribe()
	defer cancelA()
	defer cancelB()

	fan := Fanout{a, b}
	fan.Publish(context.Background(), NewEvent(TypeAlertSpike, "engine", nil))

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case got := <-ch:
			if got.Type != TypeAlertSpike {
				t.Errorf("expected %s, got %s", TypeAlertSpike, got.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("fanout did not deliver to all publishers")
		}
	}
}
