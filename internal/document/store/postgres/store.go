// Package postgres persists the document-control collections in PostgreSQL.
// It implements the same remote store contract as the memory store and owns
// the same server-side effects: history append on accepted writes, version
// increment and draft reset on clone.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	"sigedoc/pkg/platform/sentinel"
	"sigedoc/pkg/requestcontext"
)

// Store is the PostgreSQL-backed document store.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL through the pgx driver and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

const documentColumns = `
	id, tenant_id, name, code, version, process, subprocess, doc_type,
	status, responsible_id, responsible_name, review_date, file_url,
	content_type, created_at, updated_at
`

// Create inserts a document. Duplicate (tenant, code, version) pairs are
// reported as conflicts.
func (s *Store) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.TenantID),
		doc.Name,
		doc.Code,
		doc.Version,
		string(doc.Process),
		doc.Subprocess,
		string(doc.Type),
		string(doc.Status),
		uuid.UUID(doc.ResponsibleID),
		doc.ResponsibleName,
		nullableDate(doc.ReviewDate),
		doc.FileURL,
		string(doc.ContentType),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	for _, entry := range doc.History {
		if err := insertHistory(ctx, s.db, doc.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

// CreateKPI inserts an indicator for a tenant.
func (s *Store) CreateKPI(ctx context.Context, tenantID id.TenantID, kpi *models.KPI) error {
	kpiID := kpi.ID
	if kpiID == "" {
		kpiID = uuid.NewString()
	}
	query := `
		INSERT INTO kpis (id, tenant_id, name, process, subprocess, target, unit, periodicity, responsible_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		kpiID,
		uuid.UUID(tenantID),
		kpi.Name,
		string(kpi.Process),
		kpi.Subprocess,
		kpi.Target,
		kpi.Unit,
		kpi.Periodicity,
		kpi.ResponsibleName,
	)
	if err != nil {
		return fmt.Errorf("insert kpi: %w", err)
	}
	return nil
}

// ListDocuments returns the tenant's documents visible under the given
// permission set, newest-created first. The visibility rule matches the memory
// store: drafts and documents under review require submit or publish, approved
// documents require publish, published and obsolete documents are public.
func (s *Store) ListDocuments(ctx context.Context, tenantID id.TenantID, perms []permission.Capability) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC, code ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), visibleStatuses(perms))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	for _, doc := range docs {
		doc.History, err = s.listHistory(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func visibleStatuses(perms []permission.Capability) []string {
	statuses := []string{string(models.StatusVigente), string(models.StatusObsoleto)}
	var submit, publish bool
	for _, p := range perms {
		switch p {
		case permission.CapabilitySubmit:
			submit = true
		case permission.CapabilityPublish:
			publish = true
		}
	}
	if submit || publish {
		statuses = append(statuses, string(models.StatusBorrador), string(models.StatusRevision))
	}
	if publish {
		statuses = append(statuses, string(models.StatusAprobado))
	}
	return statuses
}

// ListKPIs returns the tenant's indicators.
func (s *Store) ListKPIs(ctx context.Context, tenantID id.TenantID) ([]*models.KPI, error) {
	query := `
		SELECT id, tenant_id, name, process, subprocess, target, unit, periodicity, responsible_name
		FROM kpis
		WHERE tenant_id = $1
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query kpis: %w", err)
	}
	defer rows.Close()

	var kpis []*models.KPI
	for rows.Next() {
		var kpi models.KPI
		var process string
		if err := rows.Scan(&kpi.ID, &kpi.TenantID, &kpi.Name, &process, &kpi.Subprocess,
			&kpi.Target, &kpi.Unit, &kpi.Periodicity, &kpi.ResponsibleName); err != nil {
			return nil, fmt.Errorf("scan kpi: %w", err)
		}
		kpi.Process = models.Process(process)
		kpis = append(kpis, &kpi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpis: %w", err)
	}
	return kpis, nil
}

// UpdateStatus applies a lifecycle transition inside a transaction: the
// current row is locked, the edge is checked against the transition table, and
// the history entry is appended atomically with the status change.
func (s *Store) UpdateStatus(ctx context.Context, docID id.DocumentID, target models.Status, actor permission.Actor) (*models.Document, error) {
	var confirmed *models.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc, err := lockDocument(ctx, tx, docID)
		if err != nil {
			return err
		}
		if !doc.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s to %s", sentinel.ErrInvalidState, doc.Status, target)
		}

		now := requestcontext.Now(ctx)
		doc.ApplyStatus(target, now)
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`,
			uuid.UUID(docID), string(target), now,
		); err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		entry := models.HistoryEntry{
			ID:      uuid.NewString(),
			Date:    now,
			Version: doc.Version,
			Changes: fmt.Sprintf("Estado cambiado a %s", target),
			Author:  actor.Name,
		}
		if err := insertHistory(ctx, tx, docID, entry); err != nil {
			return err
		}
		doc.History = append(doc.History, entry)
		confirmed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// UpdateDocument applies an edit-form patch and appends the history entry.
func (s *Store) UpdateDocument(ctx context.Context, docID id.DocumentID, patch *models.UpdatePatch, actor permission.Actor) (*models.Document, error) {
	var confirmed *models.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc, err := lockDocument(ctx, tx, docID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		patch.Apply(doc, now)
		query := `
			UPDATE documents
			SET name = $2, code = $3, process = $4, subprocess = $5, doc_type = $6,
			    responsible_id = $7, responsible_name = $8, review_date = $9,
			    file_url = $10, updated_at = $11
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query,
			uuid.UUID(docID),
			doc.Name,
			doc.Code,
			string(doc.Process),
			doc.Subprocess,
			string(doc.Type),
			uuid.UUID(doc.ResponsibleID),
			doc.ResponsibleName,
			nullableDate(doc.ReviewDate),
			doc.FileURL,
			now,
		); err != nil {
			return fmt.Errorf("update document: %w", err)
		}

		entry := models.HistoryEntry{
			ID:      uuid.NewString(),
			Date:    now,
			Version: doc.Version,
			Changes: "Datos del documento actualizados",
			Author:  actor.Name,
		}
		if err := insertHistory(ctx, tx, docID, entry); err != nil {
			return err
		}
		doc.History = append(doc.History, entry)
		confirmed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// CloneAsNewVersion copies the document into a fresh draft with an incremented
// version. History lineage and tabular content are copied, and a creation
// entry is appended to the clone.
func (s *Store) CloneAsNewVersion(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	var confirmed *models.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		src, err := lockDocument(ctx, tx, docID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		clone := src.Clone()
		clone.ID = id.NewDocumentID()
		clone.Version = src.Version + 1
		clone.Status = models.StatusBorrador
		clone.CreatedAt = now
		clone.UpdatedAt = now

		query := `
			INSERT INTO documents (` + documentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		if _, err := tx.ExecContext(ctx, query,
			uuid.UUID(clone.ID),
			uuid.UUID(clone.TenantID),
			clone.Name,
			clone.Code,
			clone.Version,
			string(clone.Process),
			clone.Subprocess,
			string(clone.Type),
			string(clone.Status),
			uuid.UUID(clone.ResponsibleID),
			clone.ResponsibleName,
			nullableDate(clone.ReviewDate),
			clone.FileURL,
			string(clone.ContentType),
			clone.CreatedAt,
			clone.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert clone: %w", err)
		}

		for _, entry := range clone.History {
			if err := insertHistory(ctx, tx, clone.ID, entry); err != nil {
				return err
			}
		}
		creation := models.HistoryEntry{
			ID:      uuid.NewString(),
			Date:    now,
			Version: clone.Version,
			Changes: fmt.Sprintf("Nueva versión %d creada a partir de %s v%d", clone.Version, src.Code, src.Version),
			Author:  src.ResponsibleName,
		}
		if err := insertHistory(ctx, tx, clone.ID, creation); err != nil {
			return err
		}
		clone.History = append(clone.History, creation)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_rows (document_id, position, data)
			SELECT $2, position, data FROM document_rows WHERE document_id = $1
		`, uuid.UUID(docID), uuid.UUID(clone.ID)); err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}

		confirmed = clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// GetRows returns the tabular content of a spreadsheet document in stored
// order. An empty result is a valid state, not an error.
func (s *Store) GetRows(ctx context.Context, docID id.DocumentID) ([]models.Row, error) {
	query := `
		SELECT data FROM document_rows
		WHERE document_id = $1
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(docID))
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.Row, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var row models.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// PutRows replaces the whole row set of a document and appends the history
// entry on the owning document when it exists.
func (s *Store) PutRows(ctx context.Context, docID id.DocumentID, rowSet []models.Row, actor permission.Actor) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM document_rows WHERE document_id = $1`, uuid.UUID(docID),
		); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		for i, row := range rowSet {
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode row: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO document_rows (document_id, position, data)
				VALUES ($1, $2, $3)
			`, uuid.UUID(docID), i, data); err != nil {
				return fmt.Errorf("insert row: %w", err)
			}
		}

		doc, err := lockDocument(ctx, tx, docID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET updated_at = $2 WHERE id = $1`,
			uuid.UUID(docID), now,
		); err != nil {
			return fmt.Errorf("touch document: %w", err)
		}
		return insertHistory(ctx, tx, docID, models.HistoryEntry{
			ID:      uuid.NewString(),
			Date:    now,
			Version: doc.Version,
			Changes: fmt.Sprintf("Contenido tabular guardado (%d filas)", len(rowSet)),
			Author:  actor.Name,
		})
	})
}

// FindByCode locates a document by its code within a tenant.
func (s *Store) FindByCode(ctx context.Context, tenantID id.TenantID, code string) (*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND lower(code) = lower($2)
		ORDER BY version DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), code)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}
	doc.History, err = s.listHistory(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc           models.Document
		docID         uuid.UUID
		tenantID      uuid.UUID
		responsibleID uuid.UUID
		process       string
		docType       string
		status        string
		contentType   string
		reviewDate    sql.NullTime
	)
	err := row.Scan(
		&docID,
		&tenantID,
		&doc.Name,
		&doc.Code,
		&doc.Version,
		&process,
		&doc.Subprocess,
		&docType,
		&status,
		&responsibleID,
		&doc.ResponsibleName,
		&reviewDate,
		&doc.FileURL,
		&contentType,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.TenantID = id.TenantID(tenantID)
	doc.ResponsibleID = id.UserID(responsibleID)
	doc.Process = models.Process(process)
	doc.Type = models.DocumentType(docType)
	doc.Status = models.Status(status)
	doc.ContentType = models.ContentType(contentType)
	if reviewDate.Valid {
		doc.ReviewDate = models.DateOf(reviewDate.Time.UTC())
	}
	return &doc, nil
}

func lockDocument(ctx context.Context, tx *sql.Tx, docID id.DocumentID) (*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1
		FOR UPDATE
	`
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		return nil, err
	}
	doc.History, err = listHistoryTx(ctx, tx, docID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) listHistory(ctx context.Context, docID id.DocumentID) ([]models.HistoryEntry, error) {
	return queryHistory(ctx, s.db, docID)
}

func listHistoryTx(ctx context.Context, tx *sql.Tx, docID id.DocumentID) ([]models.HistoryEntry, error) {
	return queryHistory(ctx, tx, docID)
}

func queryHistory(ctx context.Context, q queryer, docID id.DocumentID) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, entry_date, version, changes, author
		FROM document_history
		WHERE document_id = $1
		ORDER BY entry_date, id
	`
	rows, err := q.QueryContext(ctx, query, uuid.UUID(docID))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Date, &entry.Version, &entry.Changes, &entry.Author); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func insertHistory(ctx context.Context, e execer, docID id.DocumentID, entry models.HistoryEntry) error {
	query := `
		INSERT INTO document_history (id, document_id, entry_date, version, changes, author)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := e.ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(docID),
		entry.Date,
		entry.Version,
		entry.Changes,
		entry.Author,
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func nullableDate(d models.Date) sql.NullTime {
	if d.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d.Time(time.UTC), Valid: true}
}
