package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/solapur-gov/healthgrid/internal/shared/config"
	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
)

const (
	storeQueueSize = 256
	appendTimeout  = 5 * time.Second
)

// StorePublisher appends broadcast events to EventStoreDB, one stream
// per event type. It is the durable sink behind the in-process bus;
// the notification collaborator replays streams from here. Appends go
// through a bounded queue with a single writer, so a slow or
// unreachable store drops events instead of stalling ingestion.
type StorePublisher struct {
	client *esdb.Client
	prefix string

	queue     chan Event
	appendFn  func(ctx context.Context, event Event) error
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStorePublisher connects to EventStoreDB and starts the writer
func NewStorePublisher(ctx context.Context, cfg config.EventStoreConfig) (*StorePublisher, error) {
	settings, err := esdb.ParseConnectionString(connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create EventStoreDB client: %w", err)
	}

	p := &StorePublisher{client: client, prefix: "health"}
	if err := p.Health(); err != nil {
		p.client.Close()
		return nil, err
	}
	p.appendFn = p.appendStream
	p.start(storeQueueSize)
	return p, nil
}

func (p *StorePublisher) start(queueSize int) {
	p.queue = make(chan Event, queueSize)
	p.wg.Add(1)
	go p.writer()
}

// connectionString builds the esdb:// connection string
func connectionString(cfg config.EventStoreConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
		params += "&keepAliveInterval=10000&keepAliveTimeout=10000&discoveryInterval=100&maxDiscoverAttempts=3&gossipTimeout=5"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish enqueues the event for the background writer. It never
// blocks; a full queue drops the event and counts it.
func (p *StorePublisher) Publish(_ context.Context, event Event) error {
	select {
	case p.queue <- event:
	default:
		metrics.RecordEventDropped()
		log.Printf("eventstore: queue full, dropping %s event %s", event.Type, event.ID)
	}
	return nil
}

func (p *StorePublisher) writer() {
	defer p.wg.Done()
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := p.appendFn(ctx, event)
		cancel()
		if err != nil {
			log.Printf("eventstore: append %s event %s failed: %v", event.Type, event.ID, err)
			continue
		}
		metrics.RecordEventPublished(event.Type)
	}
}

// appendStream appends the event to its type stream (e.g.
// health-alert_outbreak)
func (p *StorePublisher) appendStream(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	stream := fmt.Sprintf("%s-%s", p.prefix, event.Type)
	_, err = p.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains the queue, stops the writer and closes the connection.
func (p *StorePublisher) Close() {
	p.closeOnce.Do(func() {
		if p.queue != nil {
			close(p.queue)
			p.wg.Wait()
		}
		if p.client != nil {
			p.client.Close()
		}
	})
}

// Health checks the EventStoreDB connection
func (p *StorePublisher) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := p.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)

	if err != nil {
		return fmt.Errorf("EventStoreDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}

// Ensure StorePublisher implements Publisher
var _ Publisher = (*StorePublisher)(nil)
