package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Broadcast event types consumed by dashboards and the notification
// collaborator.
const (
	TypeIngestHospital  = "ingest_hospital"
	TypeIngestPHC       = "ingest_phc"
	TypeIngestLab       = "ingest_lab"
	TypeIngestAmbulance = "ingest_ambulance"
	TypeAlertOutbreak   = "alert_outbreak"
	TypeAlertSpike      = "alert_spike"
	TypeCrisisUpdate    = "crisis_update"
)

// Event is a broadcast-worthy state change. The payload carries enough
// for a dashboard to render without a follow-up query.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// Publisher is the engine-facing broadcast interface. Publish must be
// best-effort and non-blocking with respect to slow consumers: a
// disconnected subscriber never stalls ingestion.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Fanout publishes each event to every wrapped publisher in order.
// Errors are collected but do not stop delivery to the rest.
type Fanout []Publisher

// Publish delivers the event to all wrapped publishers
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all wrapped publishers
func (f Fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
