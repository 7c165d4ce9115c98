// Package kafka publishes audit events to a Kafka topic. Delivery is
// asynchronous and fail-open: a broker outage is logged and never blocks or
// fails the originating document operation.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"sigedoc/internal/audit"
)

const DefaultTopic = "sigedoc.audit"

// Publisher produces audit events to Kafka keyed by tenant so one tenant's
// trail stays ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic overrides the default audit topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topic = topic
	}
}

// WithLogger sets a logger for delivery errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New builds a Publisher over a client connected to the given brokers.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}
	p := &Publisher{client: client, topic: DefaultTopic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewWithClient wraps an existing client; used by integration tests.
func NewWithClient(client *kgo.Client, opts ...Option) *Publisher {
	p := &Publisher{client: client, topic: DefaultTopic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit serializes the event and produces it asynchronously. Errors surface in
// the produce callback only; the caller never fails because audit delivery
// lagged.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.TenantID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				"topic", p.topic,
				"event_type", string(event.Type),
				"error", err,
			)
		}
	})
	return nil
}

// Flush drains pending produces; call during shutdown.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close flushes and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
