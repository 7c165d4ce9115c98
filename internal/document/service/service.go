// Package service hosts the Synchronizer: the single owner of the
// authoritative client-side document and KPI collections. Presentation
// collaborators read snapshots and trigger the sanctioned mutation operations;
// nothing else may touch the collections.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/engine"
	"sigedoc/internal/document/metrics"
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
	"sigedoc/pkg/requestcontext"
)

// RemoteStore is the remote persistence contract the synchronizer consumes.
// The store is the source of truth: confirmed documents it returns carry any
// server-side effects (history append, version increment) already applied.
type RemoteStore interface {
	ListDocuments(ctx context.Context, tenantID id.TenantID, perms []permission.Capability) ([]*models.Document, error)
	ListKPIs(ctx context.Context, tenantID id.TenantID) ([]*models.KPI, error)
	UpdateStatus(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error)
	UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error)
	CloneAsNewVersion(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	GetRows(ctx context.Context, docID id.DocumentID) ([]models.Row, error)
	PutRows(ctx context.Context, docID id.DocumentID, rows []models.Row, actor permission.Actor) error
}

// AuditPublisher records lifecycle events for the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Synchronizer owns the documents and KPI collections and keeps the derived
// expiring-soon set consistent with them. Every mutating remote call is
// awaited before the corresponding local apply: no transition or edit is
// visible locally until the remote store confirms it.
type Synchronizer struct {
	store   RemoteStore
	engine  *engine.Engine
	oracle  permission.Oracle
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
	tracer  trace.Tracer

	mu        sync.RWMutex
	documents []*models.Document
	kpis      []*models.KPI
	expiring  []*models.Document
	loading   bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Synchronizer) {
		s.auditor = publisher
	}
}

// New constructs a Synchronizer over the remote store and permission oracle.
func New(store RemoteStore, oracle permission.Oracle, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  store,
		engine: engine.New(oracle),
		oracle: oracle,
		logger: slog.Default(),
		tracer: otel.Tracer("sigedoc/internal/document/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the transition engine for action-menu rendering.
func (s *Synchronizer) Engine() *engine.Engine {
	return s.engine
}

// FetchAll replaces both collections wholesale from the remote store, scoped
// to the actor's tenant and filtered by its capability set. Documents and
// KPIs are fetched concurrently. Overlapping calls are not coalesced: the
// latest response observed wins, for the loading flag and the collections
// alike. Callers gate on actor identity change to avoid redundant fetches.
func (s *Synchronizer) FetchAll(ctx context.Context, actor permission.Actor) error {
	ctx, span := s.tracer.Start(ctx, "Synchronizer.FetchAll")
	defer span.End()
	start := time.Now()

	s.setLoading(true)
	defer s.setLoading(false)

	perms := grantedCapabilities(s.oracle, actor)

	var (
		docs []*models.Document
		kpis []*models.KPI
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.store.ListDocuments(gctx, actor.TenantID, perms)
		return err
	})
	g.Go(func() error {
		var err error
		kpis, err = s.store.ListKPIs(gctx, actor.TenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "collection fetch failed",
			"tenant_id", actor.TenantID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to fetch collections")
	}

	s.mu.Lock()
	s.documents = docs
	s.kpis = kpis
	s.recomputeExpiringLocked(ctx)
	s.mu.Unlock()

	s.observeFetch(start)
	return nil
}

// RequestTransition validates the lifecycle edge and the actor's capability,
// issues the remote status update, and applies the server-confirmed document
// by identity. Not optimistic: status changes are consequential (OBSOLETO is
// irreversible) and must reflect authoritative approval, so no local state
// moves before remote confirmation.
func (s *Synchronizer) RequestTransition(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "Synchronizer.RequestTransition")
	defer span.End()

	doc, err := s.findByID(docID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(doc, target, actor); err != nil {
		return nil, err
	}

	confirmed, err := s.store.UpdateStatus(ctx, docID, target, actor)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "status update failed",
			"document_id", docID,
			"target", string(target),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to update document status")
	}

	s.ApplyStatusUpdate(ctx, docID, confirmed)
	s.incrementTransition(target)
	s.emitAudit(ctx, audit.Event{
		TenantID:   actor.TenantID,
		DocumentID: docID,
		Type:       audit.EventStatusChanged,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Detail:     string(doc.Status) + " -> " + string(target),
	})
	return confirmed, nil
}

// UpdateDocument issues an edit-form save and applies the confirmed result.
func (s *Synchronizer) UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "Synchronizer.UpdateDocument")
	defer span.End()

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !s.oracle.HasPermission(actor, permission.CapabilityEdit) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "edit permission is required to update a document")
	}
	if _, err := s.findByID(docID); err != nil {
		return nil, err
	}

	confirmed, err := s.store.UpdateDocument(ctx, docID, patch, actor)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "document update failed",
			"document_id", docID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to update document")
	}

	s.ApplyFullUpdate(ctx, docID, confirmed)
	s.emitAudit(ctx, audit.Event{
		TenantID:   actor.TenantID,
		DocumentID: docID,
		Type:       audit.EventDocumentUpdated,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
	})
	return confirmed, nil
}

// ApplyStatusUpdate replaces the matching element in the documents collection
// by identity. A missing id is a silent no-op, not an error: it only occurs
// when a concurrent fetch dropped the document between call and confirmation.
func (s *Synchronizer) ApplyStatusUpdate(ctx context.Context, docID id.DocumentID, confirmed *models.Document) {
	s.replaceByID(ctx, docID, confirmed)
}

// ApplyFullUpdate has the same replace-by-identity semantics as
// ApplyStatusUpdate; it is used after an edit-form save.
func (s *Synchronizer) ApplyFullUpdate(ctx context.Context, docID id.DocumentID, confirmed *models.Document) {
	s.replaceByID(ctx, docID, confirmed)
}

// Prepend inserts a document at the head of the collection:
// most-recently-created first.
func (s *Synchronizer) Prepend(ctx context.Context, doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*models.Document, 0, len(s.documents)+1)
	next = append(next, doc)
	next = append(next, s.documents...)
	s.documents = next
	s.recomputeExpiringLocked(ctx)
}

// Documents returns a snapshot of the authoritative document collection.
func (s *Synchronizer) Documents() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Document{}, s.documents...)
}

// KPIs returns a snapshot of the KPI collection.
func (s *Synchronizer) KPIs() []*models.KPI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.KPI{}, s.kpis...)
}

// ExpiringSoon returns the derived expiring-soon set as of the last
// collection change. Owned and invalidated solely by the synchronizer.
func (s *Synchronizer) ExpiringSoon() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Document{}, s.expiring...)
}

// Loading reports whether a FetchAll is in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Synchronizer) findByID(docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.ID == docID {
			return doc.Clone(), nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
}

// replaceByID rebuilds the collection with the confirmed document in the
// former element's position. New slice, no in-place mutation, so previously
// handed-out snapshots stay stable.
func (s *Synchronizer) replaceByID(ctx context.Context, docID id.DocumentID, confirmed *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	next := make([]*models.Document, len(s.documents))
	for i, doc := range s.documents {
		if doc.ID == docID {
			next[i] = confirmed
			replaced = true
			continue
		}
		next[i] = doc
	}
	if !replaced {
		s.logger.DebugContext(ctx, "apply skipped, document absent from collection",
			"document_id", docID,
		)
		return
	}
	s.documents = next
	s.recomputeExpiringLocked(ctx)
}

// recomputeExpiringLocked rederives the expiring set. Callers hold s.mu.
func (s *Synchronizer) recomputeExpiringLocked(ctx context.Context) {
	today := models.DateOf(requestcontext.Now(ctx))
	s.expiring = ExpiringWithin(s.documents, today, ExpiryWindowDays)
}

func (s *Synchronizer) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

func (s *Synchronizer) emitAudit(ctx context.Context, event audit.Event) {
	s.logger.InfoContext(ctx, string(event.Type),
		"tenant_id", event.TenantID,
		"document_id", event.DocumentID,
		"actor", event.ActorName,
		"detail", event.Detail,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

func (s *Synchronizer) incrementTransition(target models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(target))
	}
}

func (s *Synchronizer) observeFetch(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveFetch(start)
	}
}

// grantedCapabilities materializes the actor's effective capability set for
// server-side list filtering.
func grantedCapabilities(oracle permission.Oracle, actor permission.Actor) []permission.Capability {
	all := []permission.Capability{
		permission.CapabilitySubmit,
		permission.CapabilityPublish,
		permission.CapabilityCreate,
		permission.CapabilityDownload,
		permission.CapabilityEdit,
	}
	var granted []permission.Capability
	for _, c := range all {
		if oracle.HasPermission(actor, c) {
			granted = append(granted, c)
		}
	}
	return granted
}
