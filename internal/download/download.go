// Package download issues short-lived single-use tokens that resolve to a
// document's file location. Tokens are handed to the browser instead of the
// raw file URL so that access checks happen at issue time and links cannot be
// shared beyond their TTL.
package download

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
	"sigedoc/pkg/requestcontext"
)

// DefaultTTL bounds how long an issued link stays valid.
const DefaultTTL = 5 * time.Minute

// Grant is the resolved payload behind a token.
type Grant struct {
	DocumentID id.DocumentID `json:"document_id"`
	TenantID   id.TenantID   `json:"tenant_id"`
	FileURL    string        `json:"file_url"`
	IssuedTo   id.UserID     `json:"issued_to"`
}

// Token is the issued link material returned to the caller.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore holds grants keyed by token value. Take is single-use: a second
// Take of the same token misses.
type TokenStore interface {
	Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error
	Take(ctx context.Context, token string) (Grant, error)
}

// AuditPublisher records issued downloads for the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service gates token issuance on the permission oracle.
type Service struct {
	store   TokenStore
	oracle  permission.Oracle
	logger  *slog.Logger
	auditor AuditPublisher
	ttl     time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// New constructs a download service.
func New(store TokenStore, oracle permission.Oracle, opts ...Option) *Service {
	s := &Service{
		store:  store,
		oracle: oracle,
		logger: slog.Default(),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue validates the actor's download permission and mints a token for the
// document's file. Documents without a file location cannot be issued. The
// requesting client's User-Agent is recorded alongside the audit event.
func (s *Service) Issue(ctx context.Context, doc *models.Document, actor permission.Actor, clientUA string) (Token, error) {
	if !s.oracle.HasPermission(actor, permission.CapabilityDownload) && !actor.IsAdmin() {
		return Token{}, dErrors.New(dErrors.CodePermissionDenied, "download permission is required")
	}
	if doc.FileURL == "" {
		return Token{}, dErrors.New(dErrors.CodeBadRequest, "document has no downloadable file")
	}

	value, err := newTokenValue()
	if err != nil {
		return Token{}, err
	}
	grant := Grant{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		FileURL:    doc.FileURL,
		IssuedTo:   actor.ID,
	}
	if err := s.store.Put(ctx, value, grant, s.ttl); err != nil {
		s.logger.ErrorContext(ctx, "download token store failed",
			"document_id", doc.ID,
			"error", err,
		)
		return Token{}, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to issue download token")
	}

	s.emitAudit(ctx, doc, actor, describeClient(clientUA))
	return Token{
		Value:     value,
		ExpiresAt: requestcontext.Now(ctx).Add(s.ttl),
	}, nil
}

// Resolve consumes a token and returns its grant. Unknown, expired and
// already-used tokens are indistinguishable to the caller.
func (s *Service) Resolve(ctx context.Context, token string) (Grant, error) {
	grant, err := s.store.Take(ctx, token)
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeNotFound, "download link is invalid or expired")
	}
	return grant, nil
}

func (s *Service) emitAudit(ctx context.Context, doc *models.Document, actor permission.Actor, client string) {
	s.logger.InfoContext(ctx, string(audit.EventDownloadIssued),
		"tenant_id", doc.TenantID,
		"document_id", doc.ID,
		"actor", actor.Name,
		"client", client,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		Type:       audit.EventDownloadIssued,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Detail:     doc.Code,
		Client:     client,
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

// describeClient condenses a raw User-Agent header into a short label for the
// audit trail. Unparseable strings are kept verbatim.
func describeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	label := name
	if version != "" {
		label += " " + version
	}
	if os := ua.OS(); os != "" {
		label += " (" + os + ")"
	}
	return label
}

func newTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
