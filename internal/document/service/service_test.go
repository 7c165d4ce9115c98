package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/models"
	"sigedoc/internal/document/store/memory"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
	"sigedoc/pkg/requestcontext"
)

type fixture struct {
	store *memory.FailNext
	sync  *Synchronizer
	audit *audit.InMemoryStore

	tenantID id.TenantID
	ctx      context.Context
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inner := memory.New()
	store := memory.NewFailNext(inner)
	auditStore := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	f := &fixture{
		store:    store,
		audit:    auditStore,
		tenantID: id.NewTenantID(),
		now:      time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
	f.ctx = requestcontext.WithTime(context.Background(), f.now)
	f.sync = New(store, permission.NewStaticOracle(),
		WithLogger(logger),
		WithAuditPublisher(audit.NewPublisher(auditStore)),
	)
	return f
}

func (f *fixture) actor(role permission.Role, caps ...permission.Capability) permission.Actor {
	return permission.Actor{
		ID:           id.NewUserID(),
		Name:         "Andrés Páez",
		TenantID:     f.tenantID,
		Role:         role,
		Capabilities: caps,
	}
}

// seed creates a document directly in the backing store with a distinct
// creation time so list ordering is deterministic.
func (f *fixture) seed(t *testing.T, code string, status models.Status, age time.Duration) *models.Document {
	t.Helper()
	doc, err := models.NewDocument(id.NewDocumentID(), f.tenantID, "Documento "+code, code,
		models.ProcessMisional, "", models.TypeProcedimiento, models.ContentFile, f.now.Add(-age))
	require.NoError(t, err)
	doc.Status = status
	require.NoError(t, f.store.Create(f.ctx, doc))
	return doc
}

func (f *fixture) fetch(t *testing.T, actor permission.Actor) {
	t.Helper()
	require.NoError(t, f.sync.FetchAll(f.ctx, actor))
}

func TestFetchAllReplacesCollections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	f.seed(t, "PR-02", models.StatusVigente, 2*time.Hour)
	require.NoError(t, f.store.CreateKPI(f.ctx, f.tenantID, &models.KPI{Name: "Cumplimiento", Process: models.ProcessMisional}))

	quality := f.actor(permission.RoleQuality)
	f.fetch(t, quality)

	require.Len(t, f.sync.Documents(), 2)
	require.Len(t, f.sync.KPIs(), 1)
	assert.False(t, f.sync.Loading())

	// A refetch replaces wholesale rather than accumulating.
	f.fetch(t, quality)
	assert.Len(t, f.sync.Documents(), 2)
}

func TestFetchAllFailureClearsLoadingAndKeepsState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	quality := f.actor(permission.RoleQuality)
	f.fetch(t, quality)

	f.store.Fail("ListDocuments", errors.New("boom"))
	err := f.sync.FetchAll(f.ctx, quality)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRemoteFailure))
	assert.False(t, f.sync.Loading())
	// Previous collections survive a failed refresh.
	assert.Len(t, f.sync.Documents(), 1)
}

func TestSubmitForReviewEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-00", models.StatusVigente, time.Hour)
	draft := f.seed(t, "PR-01", models.StatusBorrador, 2*time.Hour)
	f.seed(t, "PR-02", models.StatusVigente, 3*time.Hour)

	submitter := f.actor(permission.RoleViewer, permission.CapabilitySubmit)
	f.fetch(t, submitter)

	docs := f.sync.Documents()
	require.Len(t, docs, 3)
	position := -1
	for i, d := range docs {
		if d.ID == draft.ID {
			position = i
		}
	}
	require.NotEqual(t, -1, position)

	confirmed, err := f.sync.RequestTransition(f.ctx, draft.ID, models.StatusRevision, submitter)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevision, confirmed.Status)
	assert.NotEmpty(t, confirmed.History, "server appends the history entry")

	// The confirmed document occupies the draft's former position.
	after := f.sync.Documents()
	require.Len(t, after, 3)
	assert.Equal(t, draft.ID, after[position].ID)
	assert.Equal(t, models.StatusRevision, after[position].Status)

	// A publisher now sees Approve and Reject on it.
	publisher := f.actor(permission.RoleQuality)
	var kinds []string
	for _, a := range f.sync.Engine().VisibleActions(after[position], publisher) {
		kinds = append(kinds, string(a.Kind))
	}
	assert.Contains(t, kinds, "approve")
	assert.Contains(t, kinds, "reject")

	// The trail recorded the transition.
	events, err := audit.NewPublisher(f.audit).List(f.ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusChanged, events[0].Type)
}

func TestRequestTransitionRejectsBeforeRemoteCall(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, "PR-01", models.StatusBorrador, time.Hour)
	submitter := f.actor(permission.RoleViewer, permission.CapabilitySubmit)
	f.fetch(t, submitter)

	// Arm a failure: if a remote call were issued it would surface.
	f.store.Fail("UpdateStatus", errors.New("must not be called"))

	_, err := f.sync.RequestTransition(f.ctx, draft.ID, models.StatusVigente, submitter)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition), "got %v", err)

	_, err = f.sync.RequestTransition(f.ctx, draft.ID, models.StatusRevision, f.actor(permission.RoleViewer))
	assert.True(t, dErrors.HasCode(err, dErrors.CodePermissionDenied), "got %v", err)

	// Local state untouched either way.
	assert.Equal(t, models.StatusBorrador, f.sync.Documents()[0].Status)
}

func TestRequestTransitionRemoteFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, "PR-01", models.StatusBorrador, time.Hour)
	submitter := f.actor(permission.RoleViewer, permission.CapabilitySubmit)
	f.fetch(t, submitter)

	f.store.Fail("UpdateStatus", errors.New("connection reset"))
	_, err := f.sync.RequestTransition(f.ctx, draft.ID, models.StatusRevision, submitter)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRemoteFailure))

	assert.Equal(t, models.StatusBorrador, f.sync.Documents()[0].Status)
}

func TestRequestTransitionUnknownDocument(t *testing.T) {
	f := newFixture(t)
	f.fetch(t, f.actor(permission.RoleQuality))

	_, err := f.sync.RequestTransition(f.ctx, id.NewDocumentID(), models.StatusRevision, f.actor(permission.RoleQuality))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestApplyStatusUpdateSilentMissOnAbsentID(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	f.fetch(t, f.actor(permission.RoleQuality))

	ghost := &models.Document{ID: id.NewDocumentID(), Status: models.StatusVigente}
	f.sync.ApplyStatusUpdate(f.ctx, ghost.ID, ghost)

	docs := f.sync.Documents()
	require.Len(t, docs, 1)
	assert.NotEqual(t, ghost.ID, docs[0].ID)
}

func TestObsoleteTransitionEvictsFromExpiringSet(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	doc.ReviewDate = models.DateOf(f.now).AddDays(10)

	// Re-create with the review date set.
	inner := memory.New()
	f.store = memory.NewFailNext(inner)
	f.sync = New(f.store, permission.NewStaticOracle(), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, f.store.Create(f.ctx, doc))

	publisher := f.actor(permission.RoleQuality)
	f.fetch(t, publisher)

	expiring := f.sync.ExpiringSoon()
	require.Len(t, expiring, 1)
	assert.Equal(t, doc.ID, expiring[0].ID)

	_, err := f.sync.RequestTransition(f.ctx, doc.ID, models.StatusObsoleto, publisher)
	require.NoError(t, err)

	assert.Empty(t, f.sync.ExpiringSoon())
}

func TestUpdateDocumentAppliesConfirmedPatch(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	editor := f.actor(permission.RoleResponsible)
	f.fetch(t, editor)

	name := "Procedimiento de auditoría interna"
	confirmed, err := f.sync.UpdateDocument(f.ctx, doc.ID, &models.UpdatePatch{Name: &name}, editor)
	require.NoError(t, err)
	assert.Equal(t, name, confirmed.Name)
	assert.Equal(t, name, f.sync.Documents()[0].Name)
}

func TestUpdateDocumentValidatesPatchFirst(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	editor := f.actor(permission.RoleResponsible)
	f.fetch(t, editor)

	empty := "   "
	_, err := f.sync.UpdateDocument(f.ctx, doc.ID, &models.UpdatePatch{Name: &empty}, editor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUpdateDocumentRequiresEditPermission(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	viewer := f.actor(permission.RoleViewer)
	f.fetch(t, viewer)

	name := "x"
	_, err := f.sync.UpdateDocument(f.ctx, doc.ID, &models.UpdatePatch{Name: &name}, viewer)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func TestSnapshotsDoNotExposeInternalSlice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-01", models.StatusVigente, time.Hour)
	f.fetch(t, f.actor(permission.RoleQuality))

	snapshot := f.sync.Documents()
	snapshot[0] = nil
	require.NotNil(t, f.sync.Documents()[0])
}
