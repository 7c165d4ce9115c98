// Package audit captures the append-only trail of document-control actions.
// Services emit events through a Publisher; sinks range from an in-memory
// store in tests to a Kafka topic in production.
package audit

import (
	"context"

	"github.com/google/uuid"

	id "sigedoc/pkg/domain"
)

// Store persists audit events. Append-only by contract.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]Event, error)
}

// Publisher captures structured audit events. It uses the storage layer for
// persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit stamps and appends the event. ID and Timestamp are filled when absent.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = timeNow()
	}
	return p.store.Append(ctx, event)
}

// List returns the trail for one tenant, oldest first.
func (p *Publisher) List(ctx context.Context, tenantID id.TenantID) ([]Event, error) {
	return p.store.ListByTenant(ctx, tenantID)
}
