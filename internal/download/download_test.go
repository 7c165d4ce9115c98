package download

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
	"sigedoc/pkg/requestcontext"
)

func fileDocument() *models.Document {
	return &models.Document{
		ID:       id.NewDocumentID(),
		TenantID: id.NewTenantID(),
		Code:     "PR-01",
		Status:   models.StatusVigente,
		FileURL:  "https://files.example.com/pr-01.pdf",
	}
}

func downloader() permission.Actor {
	return permission.Actor{ID: id.NewUserID(), Name: "Nora Gil", Role: permission.RoleViewer, Capabilities: []permission.Capability{permission.CapabilityDownload}}
}

func TestIssueAndResolve(t *testing.T) {
	auditStore := audit.NewInMemoryStore()
	svc := New(NewMemoryStore(), permission.NewStaticOracle(), WithAuditPublisher(audit.NewPublisher(auditStore)))
	ctx := context.Background()
	doc := fileDocument()

	token, err := svc.Issue(ctx, doc, downloader(), "")
	require.NoError(t, err)
	require.NotEmpty(t, token.Value)

	grant, err := svc.Resolve(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, grant.DocumentID)
	assert.Equal(t, doc.FileURL, grant.FileURL)

	events, err := auditStore.ListByTenant(ctx, doc.TenantID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventDownloadIssued, events[0].Type)
}

func TestResolveIsSingleUse(t *testing.T) {
	svc := New(NewMemoryStore(), permission.NewStaticOracle())
	ctx := context.Background()

	token, err := svc.Issue(ctx, fileDocument(), downloader(), "")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, token.Value)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, token.Value)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestResolveExpiredToken(t *testing.T) {
	svc := New(NewMemoryStore(), permission.NewStaticOracle(), WithTTL(time.Minute))
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	token, err := svc.Issue(ctx, fileDocument(), downloader(), "")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), token.ExpiresAt)

	later := requestcontext.WithTime(context.Background(), now.Add(2*time.Minute))
	_, err = svc.Resolve(later, token.Value)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestIssueRequiresDownloadPermission(t *testing.T) {
	svc := New(NewMemoryStore(), permission.NewStaticOracle())
	ctx := context.Background()

	viewer := permission.Actor{ID: id.NewUserID(), Role: permission.RoleViewer}
	_, err := svc.Issue(ctx, fileDocument(), viewer, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePermissionDenied))

	// Admin bypasses the capability check.
	admin := permission.Actor{ID: id.NewUserID(), Role: permission.RoleAdmin}
	_, err = svc.Issue(ctx, fileDocument(), admin, "")
	require.NoError(t, err)
}

func TestIssueRejectsDocumentWithoutFile(t *testing.T) {
	svc := New(NewMemoryStore(), permission.NewStaticOracle())
	doc := fileDocument()
	doc.FileURL = ""

	_, err := svc.Issue(context.Background(), doc, downloader(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestIssueRecordsClient(t *testing.T) {
	auditStore := audit.NewInMemoryStore()
	svc := New(NewMemoryStore(), permission.NewStaticOracle(), WithAuditPublisher(audit.NewPublisher(auditStore)))
	doc := fileDocument()

	chrome := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	_, err := svc.Issue(context.Background(), doc, downloader(), chrome)
	require.NoError(t, err)

	events, err := auditStore.ListByTenant(context.Background(), doc.TenantID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Client, "Chrome")
	assert.Contains(t, events[0].Client, "Linux")
}

func TestResolveUnknownToken(t *testing.T) {
	svc := New(NewMemoryStore(), permission.NewStaticOracle())

	_, err := svc.Resolve(context.Background(), "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
