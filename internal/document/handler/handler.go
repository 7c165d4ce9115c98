// Package handler exposes the document-control HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/engine"
	"sigedoc/internal/document/metrics"
	"sigedoc/internal/document/models"
	"sigedoc/internal/document/tabular"
	"sigedoc/internal/download"
	"sigedoc/internal/permission"
	"sigedoc/internal/platform/middleware"
	"sigedoc/internal/transport/http/shared"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
)

// Synchronizer is the document service surface the handler consumes.
type Synchronizer interface {
	FetchAll(ctx context.Context, actor permission.Actor) error
	Documents() []*models.Document
	KPIs() []*models.KPI
	ExpiringSoon() []*models.Document
	Loading() bool
	RequestTransition(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error)
	UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error)
	CreateNewVersion(ctx context.Context, docID id.DocumentID, confirmed bool, actor permission.Actor) (*models.Document, error)
	Engine() *engine.Engine
}

// Downloads issues and resolves short-lived file links.
type Downloads interface {
	Issue(ctx context.Context, doc *models.Document, actor permission.Actor, clientUA string) (download.Token, error)
	Resolve(ctx context.Context, token string) (download.Grant, error)
}

// AuditPublisher records row saves; other events are emitted by the services.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Handler handles document-control endpoints.
type Handler struct {
	logger    *slog.Logger
	sync      Synchronizer
	rows      tabular.RowStore
	downloads Downloads
	oracle    permission.Oracle
	validator middleware.TokenValidator
	metrics   *metrics.Metrics
	auditor   AuditPublisher
}

// Option configures a Handler.
type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(h *Handler) {
		h.auditor = publisher
	}
}

// New creates a document Handler.
func New(
	sync Synchronizer,
	rows tabular.RowStore,
	downloads Downloads,
	oracle permission.Oracle,
	validator middleware.TokenValidator,
	logger *slog.Logger,
	opts ...Option,
) *Handler {
	h := &Handler{
		logger:    logger,
		sync:      sync,
		rows:      rows,
		downloads: downloads,
		oracle:    oracle,
		validator: validator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the document routes. Everything except download resolution
// sits behind bearer auth; for resolution the token itself is the credential.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.RequestTime)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.RequireAuth(h.validator, h.logger))

	api.Post("/sync", h.handleSync)
	api.Get("/documents", h.handleListDocuments)
	api.Get("/documents/expiring", h.handleListExpiring)
	api.Get("/kpis", h.handleListKPIs)
	api.Get("/documents/{documentID}", h.handleGetDocument)
	api.Put("/documents/{documentID}", h.handleUpdateDocument)
	api.Post("/documents/{documentID}/status", h.handleUpdateStatus)
	api.Post("/documents/{documentID}/versions", h.handleCreateVersion)
	api.Get("/documents/{documentID}/actions", h.handleListActions)
	api.Get("/documents/{documentID}/rows", h.handleGetRows)
	api.Put("/documents/{documentID}/rows", h.handlePutRows)
	api.Post("/documents/{documentID}/download", h.handleIssueDownload)

	public := chi.NewRouter()
	public.Use(middleware.Recovery(h.logger))
	public.Use(middleware.RequestID)
	public.Use(middleware.RequestTime)
	public.Use(middleware.Logger(h.logger))
	public.Get("/download/{token}", h.handleResolveDownload)

	r.Mount("/api/v1", api)
	r.Mount("/", public)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.ActorFrom(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	if err := h.sync.FetchAll(ctx, actor); err != nil {
		h.logger.ErrorContext(ctx, "sync failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"documentos":  len(h.sync.Documents()),
		"indicadores": len(h.sync.KPIs()),
	})
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	docs := h.tenantDocuments(actor)
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"documentos": docs,
		"cargando":   h.sync.Loading(),
	})
}

func (h *Handler) handleListExpiring(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	expiring := make([]*models.Document, 0)
	for _, doc := range h.sync.ExpiringSoon() {
		if doc.TenantID == actor.TenantID {
			expiring = append(expiring, doc)
		}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"documentos": expiring})
}

func (h *Handler) handleListKPIs(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.ActorFrom(r.Context()); !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	kpis := h.sync.KPIs()
	if kpis == nil {
		kpis = []*models.KPI{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"indicadores": kpis})
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

type statusRequest struct {
	Status models.Status `json:"estado"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	target, err := models.ParseStatus(string(req.Status))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	confirmed, err := h.sync.RequestTransition(ctx, doc.ID, target, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, confirmed)
}

func (h *Handler) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var patch models.UpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	confirmed, err := h.sync.UpdateDocument(ctx, doc.ID, &patch, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, confirmed)
}

type createVersionRequest struct {
	Confirmed bool `json:"confirmado"`
}

func (h *Handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	clone, err := h.sync.CreateNewVersion(ctx, doc.ID, req.Confirmed, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, clone)
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	actions := h.sync.Engine().VisibleActions(doc, actor)
	shared.WriteJSON(w, http.StatusOK, map[string]any{"acciones": actions})
}

func (h *Handler) handleGetRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	model := tabular.New(h.rows, doc.ID, tabular.WithLogger(h.logger))
	if err := model.Load(ctx); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"columnas": model.Columns(),
		"filas":    model.Rows(),
	})
}

type putRowsRequest struct {
	Rows []models.Row `json:"filas"`
}

func (h *Handler) handlePutRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if !h.oracle.HasPermission(actor, permission.CapabilityEdit) {
		shared.WriteError(w, dErrors.New(dErrors.CodePermissionDenied, "edit permission is required to save rows"))
		return
	}

	var req putRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Rows) == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "a spreadsheet document keeps at least one row"))
		return
	}

	// Submitted rows may carry differing key sets; persist them on one shared
	// column set so every stored row has every column.
	rows := tabular.Normalize(req.Rows)
	if err := h.rows.PutRows(ctx, doc.ID, rows, actor); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to save document rows"))
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementRowsSaved()
	}
	h.emitRowsSaved(ctx, doc, actor, len(req.Rows))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssueDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, doc, err := h.requestDocument(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.downloads.Issue(ctx, doc, actor, r.UserAgent())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, token)
}

func (h *Handler) handleResolveDownload(w http.ResponseWriter, r *http.Request) {
	grant, err := h.downloads.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	http.Redirect(w, r, grant.FileURL, http.StatusFound)
}

// requestDocument resolves the authenticated actor and the addressed document,
// scoped to the actor's tenant.
func (h *Handler) requestDocument(r *http.Request) (permission.Actor, *models.Document, error) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		return permission.Actor{}, nil, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		return actor, nil, dErrors.New(dErrors.CodeBadRequest, "invalid document id")
	}
	for _, doc := range h.sync.Documents() {
		if doc.ID == docID && doc.TenantID == actor.TenantID {
			return actor, doc, nil
		}
	}
	return actor, nil, dErrors.New(dErrors.CodeNotFound, "document not found")
}

func (h *Handler) tenantDocuments(actor permission.Actor) []*models.Document {
	docs := make([]*models.Document, 0)
	for _, doc := range h.sync.Documents() {
		if doc.TenantID == actor.TenantID {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (h *Handler) emitRowsSaved(ctx context.Context, doc *models.Document, actor permission.Actor, count int) {
	h.logger.InfoContext(ctx, string(audit.EventRowsSaved),
		"tenant_id", doc.TenantID,
		"document_id", doc.ID,
		"actor", actor.Name,
		"rows", count,
		"log_type", "audit",
	)
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Emit(ctx, audit.Event{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		Type:       audit.EventRowsSaved,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
	}); err != nil {
		h.logger.ErrorContext(ctx, "audit emit failed",
			"event_type", string(audit.EventRowsSaved),
			"error", err,
		)
	}
}
