// Package events publishes certificate lifecycle notifications. Delivery is
// best-effort: the ledger is the record of truth and a lost event never
// changes an operation's outcome.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/platform/kafka/producer"
)

// Type names a lifecycle event.
type Type string

const (
	TypeIssued     Type = "credential.issued"
	TypeRevoked    Type = "credential.revoked"
	TypeSuperseded Type = "credential.superseded"
)

// Event is the payload published for every committed ledger transition.
type Event struct {
	Type             Type          `json:"type"`
	CertID           models.CertID `json:"cert_id"`
	Status           models.Status `json:"status"`
	ContentID        string        `json:"content_id,omitempty"`
	ContentHash      string        `json:"content_hash,omitempty"`
	SupersededBy     models.CertID `json:"superseded_by,omitempty"`
	RevocationReason string        `json:"revocation_reason,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// ErrClosed is returned by Emit once the publisher has been closed.
var ErrClosed = errors.New("event publisher closed")

// Producer is the subset of the Kafka producer used here.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaPublisher writes events to a topic, keyed by certificate id so every
// event for one certificate lands on the same partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	events   chan Event
	wg       sync.WaitGroup
	async    bool
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

// Option configures the KafkaPublisher.
type Option func(*KafkaPublisher)

// WithAsyncBuffer queues events and publishes them from a background goroutine.
func WithAsyncBuffer(size int) Option {
	return func(p *KafkaPublisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithLogger sets the logger used for dropped or failed events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// WithPublishTimeout bounds each background produce call.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *KafkaPublisher) {
		p.timeout = d
	}
}

// NewKafkaPublisher creates a publisher for topic.
func NewKafkaPublisher(prod Producer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: prod,
		topic:    topic,
		logger:   slog.Default(),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// Emit publishes event, or enqueues it when the publisher is asynchronous.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("event emitted after close, event dropped",
			"type", event.Type,
			"cert_id", event.CertID,
		)
		return ErrClosed
	}
	if !p.async {
		return p.publish(ctx, event)
	}
	select {
	case p.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.Warn("event buffer full, event dropped",
			"type", event.Type,
			"cert_id", event.CertID,
		)
		return fmt.Errorf("event buffer full")
	}
}

// Close drains queued events. Later Emit calls return ErrClosed.
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.async {
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *KafkaPublisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.publish(ctx, event); err != nil {
			p.logger.Error("failed to publish certificate event",
				"error", err,
				"type", event.Type,
				"cert_id", event.CertID,
			)
		}
		cancel()
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.producer.Produce(ctx, &producer.Message{
		Topic: p.topic,
		Key:   []byte(event.CertID),
		Value: value,
		Headers: map[string]string{
			"event_type": string(event.Type),
		},
	})
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Emit(context.Context, Event) error { return nil }

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
