// Package memory implements the remote document store contract with
// mutex-guarded maps. It stands in for the network service in tests and
// single-node development mode, and performs the same server-side effects the
// production store owns: history append on accepted writes, version increment
// and draft reset on clone.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	"sigedoc/pkg/platform/sentinel"
	"sigedoc/pkg/requestcontext"
)

// Store holds documents, KPIs and tabular rows per tenant.
type Store struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
	kpis map[id.TenantID][]*models.KPI
	rows map[id.DocumentID][]models.Row
}

func New() *Store {
	return &Store{
		docs: make(map[id.DocumentID]*models.Document),
		kpis: make(map[id.TenantID][]*models.KPI),
		rows: make(map[id.DocumentID][]models.Row),
	}
}

// Create registers a document. Not part of the synchronizer contract; used by
// seeding and tests.
func (s *Store) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// CreateKPI registers a KPI. Used by seeding and tests.
func (s *Store) CreateKPI(_ context.Context, tenantID id.TenantID, kpi *models.KPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *kpi
	s.kpis[tenantID] = append(s.kpis[tenantID], &cp)
	return nil
}

// ListDocuments returns the tenant's documents visible under the given
// permission set: drafts and documents under review require submit or publish,
// approved documents require publish, published and obsolete documents are
// visible to everyone. Results are ordered newest-created first.
func (s *Store) ListDocuments(_ context.Context, tenantID id.TenantID, perms []permission.Capability) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.docs {
		if doc.TenantID != tenantID {
			continue
		}
		if !visibleTo(doc.Status, perms) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func visibleTo(status models.Status, perms []permission.Capability) bool {
	switch status {
	case models.StatusBorrador, models.StatusRevision:
		return slices.Contains(perms, permission.CapabilitySubmit) ||
			slices.Contains(perms, permission.CapabilityPublish)
	case models.StatusAprobado:
		return slices.Contains(perms, permission.CapabilityPublish)
	default:
		return true
	}
}

// ListKPIs returns the tenant's indicators.
func (s *Store) ListKPIs(_ context.Context, tenantID id.TenantID) ([]*models.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.KPI, 0, len(s.kpis[tenantID]))
	for _, kpi := range s.kpis[tenantID] {
		cp := *kpi
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateStatus applies a lifecycle transition and appends the history entry.
// The transition table is enforced here as well: the store is the source of
// truth and refuses edges outside the table regardless of caller checks.
func (s *Store) UpdateStatus(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !doc.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s to %s", sentinel.ErrInvalidState, doc.Status, target)
	}

	now := requestcontext.Now(ctx)
	doc.ApplyStatus(target, now)
	doc.History = append(doc.History, models.HistoryEntry{
		ID:      uuid.NewString(),
		Date:    now,
		Version: doc.Version,
		Changes: fmt.Sprintf("Estado cambiado a %s", target),
		Author:  actor.Name,
	})
	return doc.Clone(), nil
}

// UpdateDocument applies an edit-form patch and appends the history entry.
func (s *Store) UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	now := requestcontext.Now(ctx)
	patch.Apply(doc, now)
	doc.History = append(doc.History, models.HistoryEntry{
		ID:      uuid.NewString(),
		Date:    now,
		Version: doc.Version,
		Changes: "Datos del documento actualizados",
		Author:  actor.Name,
	})
	return doc.Clone(), nil
}

// CloneAsNewVersion copies the document into a fresh draft with an incremented
// version and its own history lineage seeded with a creation entry. Tabular
// content is copied as well.
func (s *Store) CloneAsNewVersion(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	now := requestcontext.Now(ctx)
	clone := src.Clone()
	clone.ID = id.NewDocumentID()
	clone.Version = src.Version + 1
	clone.Status = models.StatusBorrador
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.History = append(clone.History, models.HistoryEntry{
		ID:      uuid.NewString(),
		Date:    now,
		Version: clone.Version,
		Changes: fmt.Sprintf("Nueva versión %d creada a partir de %s v%d", clone.Version, src.Code, src.Version),
		Author:  src.ResponsibleName,
	})
	s.docs[clone.ID] = clone

	if rows, ok := s.rows[docID]; ok {
		copied := make([]models.Row, 0, len(rows))
		for _, r := range rows {
			copied = append(copied, models.CloneRow(r))
		}
		s.rows[clone.ID] = copied
	}
	return clone.Clone(), nil
}

// GetRows returns the tabular content of a spreadsheet document. An empty
// result is a valid state, not an error.
func (s *Store) GetRows(_ context.Context, docID id.DocumentID) ([]models.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[docID]
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CloneRow(r))
	}
	return out, nil
}

// PutRows replaces the whole row set of a document and appends the history
// entry on the owning document when it exists.
func (s *Store) PutRows(ctx context.Context, docID id.DocumentID, rows []models.Row, actor permission.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		copied = append(copied, models.CloneRow(r))
	}
	s.rows[docID] = copied

	if doc, ok := s.docs[docID]; ok {
		now := requestcontext.Now(ctx)
		doc.UpdatedAt = now
		doc.History = append(doc.History, models.HistoryEntry{
			ID:      uuid.NewString(),
			Date:    now,
			Version: doc.Version,
			Changes: fmt.Sprintf("Contenido tabular guardado (%d filas)", len(rows)),
			Author:  actor.Name,
		})
	}
	return nil
}

// FindByCode locates a document by its code within a tenant. Test helper.
func (s *Store) FindByCode(_ context.Context, tenantID id.TenantID, code string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && strings.EqualFold(doc.Code, code) {
			return doc.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FailNext wraps a Store to inject one failure per operation name; tests use
// it to exercise remote-failure paths without a second implementation.
type FailNext struct {
	*Store

	mu       sync.Mutex
	failures map[string]error
}

func NewFailNext(inner *Store) *FailNext {
	return &FailNext{Store: inner, failures: make(map[string]error)}
}

// Fail schedules err for the next invocation of the named operation.
func (f *FailNext) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *FailNext) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failures[op]
	delete(f.failures, op)
	return err
}

func (f *FailNext) UpdateStatus(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error) {
	if err := f.take("UpdateStatus"); err != nil {
		return nil, err
	}
	return f.Store.UpdateStatus(ctx, docID, target, actor)
}

func (f *FailNext) UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error) {
	if err := f.take("UpdateDocument"); err != nil {
		return nil, err
	}
	return f.Store.UpdateDocument(ctx, docID, patch, actor)
}

func (f *FailNext) CloneAsNewVersion(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	if err := f.take("CloneAsNewVersion"); err != nil {
		return nil, err
	}
	return f.Store.CloneAsNewVersion(ctx, docID)
}

func (f *FailNext) ListDocuments(ctx context.Context, tenantID id.TenantID, perms []permission.Capability) ([]*models.Document, error) {
	if err := f.take("ListDocuments"); err != nil {
		return nil, err
	}
	return f.Store.ListDocuments(ctx, tenantID, perms)
}

func (f *FailNext) PutRows(ctx context.Context, docID id.DocumentID, rows []models.Row, actor permission.Actor) error {
	if err := f.take("PutRows"); err != nil {
		return err
	}
	return f.Store.PutRows(ctx, docID, rows, actor)
}
