package audit

import (
	"time"

	id "sigedoc/pkg/domain"
)

// EventType names an auditable document-control action.
type EventType string

const (
	EventStatusChanged   EventType = "document.status_changed"
	EventDocumentUpdated EventType = "document.updated"
	EventVersionCreated  EventType = "document.version_created"
	EventRowsSaved       EventType = "document.rows_saved"
	EventDownloadIssued  EventType = "document.download_issued"
)

// Event is one append-only audit record. Events are never mutated after
// emission; the trail is the compliance evidence for ISO audits.
type Event struct {
	ID         string        `json:"id"`
	TenantID   id.TenantID   `json:"tenant_id"`
	DocumentID id.DocumentID `json:"document_id"`
	Type       EventType     `json:"type"`
	ActorID    id.UserID     `json:"actor_id"`
	ActorName  string        `json:"actor_name"`
	Detail     string        `json:"detail,omitempty"`
	Client     string        `json:"client,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
