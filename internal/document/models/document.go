package models

import (
	"strings"
	"time"

	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
)

// Process classifies a document within the quality system map.
type Process string

const (
	ProcessEstrategico Process = "ESTRATEGICO"
	ProcessMisional    Process = "MISIONAL"
	ProcessApoyo       Process = "APOYO"
	ProcessEvaluacion  Process = "EVALUACION"
)

// DocumentType is the controlled-document type enumeration.
type DocumentType string

const (
	TypeProcedimiento DocumentType = "PROCEDIMIENTO"
	TypeInstructivo   DocumentType = "INSTRUCTIVO"
	TypeFormato       DocumentType = "FORMATO"
	TypeManual        DocumentType = "MANUAL"
	TypePolitica      DocumentType = "POLITICA"
)

// ContentType distinguishes file-backed documents from spreadsheet documents
// whose content lives in the tabular row store.
type ContentType string

const (
	ContentFile        ContentType = "file"
	ContentSpreadsheet ContentType = "spreadsheet"
)

// HistoryEntry is one change-log record. The sequence on a document is
// append-only: entries are written by the remote store on accepted writes and
// are never mutated or removed afterwards.
type HistoryEntry struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"fecha"`
	Version int       `json:"version"`
	Changes string    `json:"cambios"`
	Author  string    `json:"autor"`
}

// Document is the aggregate root for a controlled document.
//
// Invariants:
//   - Version is a positive integer, monotonically non-decreasing across the
//     document's version lineage
//   - Status only changes through a legal lifecycle transition
//   - Subprocess is required exactly when Process is the support category
//   - History is append-only (enforced by the remote store)
type Document struct {
	ID              id.DocumentID  `json:"id"`
	TenantID        id.TenantID    `json:"tenant_id"`
	Name            string         `json:"nombre"`
	Code            string         `json:"codigo"`
	Version         int            `json:"version"`
	Process         Process        `json:"proceso"`
	Subprocess      string         `json:"subproceso,omitempty"`
	Type            DocumentType   `json:"tipo"`
	Status          Status         `json:"estado"`
	ResponsibleID   id.UserID      `json:"responsableId"`
	ResponsibleName string         `json:"responsableNombre"`
	ReviewDate      Date           `json:"fechaRevision"`
	FileURL         string         `json:"archivoUrl,omitempty"`
	ContentType     ContentType    `json:"contentType"`
	History         []HistoryEntry `json:"historial"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewDocument validates invariants and constructs a draft document.
func NewDocument(docID id.DocumentID, tenantID id.TenantID, name, code string, process Process, subprocess string, docType DocumentType, contentType ContentType, now time.Time) (*Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document code cannot be empty")
	}
	if process == ProcessApoyo && strings.TrimSpace(subprocess) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subprocess is required for support process documents")
	}
	if contentType == "" {
		contentType = ContentFile
	}
	return &Document{
		ID:          docID,
		TenantID:    tenantID,
		Name:        name,
		Code:        strings.TrimSpace(code),
		Version:     1,
		Process:     process,
		Subprocess:  strings.TrimSpace(subprocess),
		Type:        docType,
		Status:      StatusBorrador,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo checks the requested lifecycle edge against the transition
// table. Returns an invariant violation for pairs outside the table; callers
// at the service boundary translate it into the user-facing illegal-transition
// error.
func (d *Document) CanTransitionTo(target Status) error {
	if !d.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"no transition from %s to %s", d.Status, target)
	}
	return nil
}

// ApplyStatus records a confirmed transition. Call CanTransitionTo first; the
// store side applies the same check before persisting.
func (d *Document) ApplyStatus(target Status, now time.Time) {
	d.Status = target
	d.UpdatedAt = now
}

// Clone returns a deep copy so collection snapshots can be handed to callers
// without aliasing the authoritative state.
func (d *Document) Clone() *Document {
	cp := *d
	cp.History = append([]HistoryEntry(nil), d.History...)
	return &cp
}

// UpdatePatch carries the mutable descriptive fields of an edit-form save.
// Nil fields are left untouched.
type UpdatePatch struct {
	Name            *string       `json:"nombre,omitempty"`
	Code            *string       `json:"codigo,omitempty"`
	Process         *Process      `json:"proceso,omitempty"`
	Subprocess      *string       `json:"subproceso,omitempty"`
	Type            *DocumentType `json:"tipo,omitempty"`
	ResponsibleID   *id.UserID    `json:"responsableId,omitempty"`
	ResponsibleName *string       `json:"responsableNombre,omitempty"`
	ReviewDate      *Date         `json:"fechaRevision,omitempty"`
	FileURL         *string       `json:"archivoUrl,omitempty"`
}

// Validate rejects patches that would break document invariants.
func (p *UpdatePatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "document name cannot be empty")
	}
	if p.Code != nil && strings.TrimSpace(*p.Code) == "" {
		return dErrors.New(dErrors.CodeValidation, "document code cannot be empty")
	}
	return nil
}

// Apply copies the non-nil patch fields onto the document.
func (p *UpdatePatch) Apply(d *Document, now time.Time) {
	if p.Name != nil {
		d.Name = strings.TrimSpace(*p.Name)
	}
	if p.Code != nil {
		d.Code = strings.TrimSpace(*p.Code)
	}
	if p.Process != nil {
		d.Process = *p.Process
	}
	if p.Subprocess != nil {
		d.Subprocess = strings.TrimSpace(*p.Subprocess)
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.ResponsibleID != nil {
		d.ResponsibleID = *p.ResponsibleID
	}
	if p.ResponsibleName != nil {
		d.ResponsibleName = *p.ResponsibleName
	}
	if p.ReviewDate != nil {
		d.ReviewDate = *p.ReviewDate
	}
	if p.FileURL != nil {
		d.FileURL = *p.FileURL
	}
	d.UpdatedAt = now
}
