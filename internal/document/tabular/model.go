// Package tabular backs spreadsheet-type documents with a dynamic-schema
// row/column model. All rows of one document share one ordered column list;
// saves replace the whole row set on the remote store, there is no
// incremental diffing.
package tabular

import (
	"context"
	"log/slog"
	"sort"

	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
)

// DefaultColumns is the schema applied when a document has no stored rows yet.
var DefaultColumns = []string{"codigo", "descripcion", "responsable", "observaciones"}

// RowStore is the remote persistence slice the model consumes.
type RowStore interface {
	GetRows(ctx context.Context, docID id.DocumentID) ([]models.Row, error)
	PutRows(ctx context.Context, docID id.DocumentID, rows []models.Row, actor permission.Actor) error
}

// Model is the editable tabular content of one spreadsheet document.
//
// Invariants:
//   - at least one row always exists after Load
//   - every row carries exactly the shared column set
type Model struct {
	store  RowStore
	logger *slog.Logger

	docID   id.DocumentID
	columns []string
	rows    []models.Row
}

// Option configures a Model.
type Option func(*Model)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// New constructs an unloaded model for one document.
func New(store RowStore, docID id.DocumentID, opts ...Option) *Model {
	m := &Model{store: store, docID: docID, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches the document's rows. An empty remote result initializes the
// default schema with one blank row: the model never holds zero rows or zero
// columns. The column order is taken from the default schema when the stored
// rows match it, otherwise from the first row's keys sorted lexicographically,
// and every row is normalized to that shared set.
func (m *Model) Load(ctx context.Context) error {
	rows, err := m.store.GetRows(ctx, m.docID)
	if err != nil {
		m.logger.ErrorContext(ctx, "row fetch failed",
			"document_id", m.docID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to load document rows")
	}

	if len(rows) == 0 {
		m.columns = append([]string{}, DefaultColumns...)
		m.rows = []models.Row{models.BlankRow(m.columns)}
		return nil
	}

	m.columns = columnsOf(rows[0])
	m.rows = make([]models.Row, 0, len(rows))
	for _, r := range rows {
		normalized := models.BlankRow(m.columns)
		for _, c := range m.columns {
			normalized[c] = r[c]
		}
		m.rows = append(m.rows, normalized)
	}
	return nil
}

// Normalize coerces submitted rows onto one shared column set before a save:
// the union of every row's keys, ordered the way Load orders columns. Cells a
// row lacks become empty strings, so no submitted cell is dropped. Rows with
// no keys at all fall back to the default schema.
func Normalize(rows []models.Row) []models.Row {
	union := models.Row{}
	for _, r := range rows {
		for c := range r {
			union[c] = ""
		}
	}
	var cols []string
	if len(union) == 0 {
		cols = append([]string{}, DefaultColumns...)
	} else {
		cols = columnsOf(union)
	}

	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		normalized := models.BlankRow(cols)
		for c, v := range r {
			normalized[c] = v
		}
		out = append(out, normalized)
	}
	return out
}

// columnsOf establishes the shared column list from the first loaded row.
func columnsOf(first models.Row) []string {
	if len(first) == len(DefaultColumns) {
		matches := true
		for _, c := range DefaultColumns {
			if _, ok := first[c]; !ok {
				matches = false
				break
			}
		}
		if matches {
			return append([]string{}, DefaultColumns...)
		}
	}
	cols := make([]string, 0, len(first))
	for c := range first {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Columns returns the shared ordered column list.
func (m *Model) Columns() []string {
	return append([]string{}, m.columns...)
}

// Rows returns a copy of the current row sequence.
func (m *Model) Rows() []models.Row {
	out := make([]models.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, models.CloneRow(r))
	}
	return out
}

// RowCount returns the number of rows.
func (m *Model) RowCount() int {
	return len(m.rows)
}

// SetCell replaces one cell value; every other cell is untouched.
func (m *Model) SetCell(rowIndex int, column, value string) error {
	if rowIndex < 0 || rowIndex >= len(m.rows) {
		return dErrors.Newf(dErrors.CodeBadRequest, "row index %d out of range", rowIndex)
	}
	if _, ok := m.rows[rowIndex][column]; !ok {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown column %q", column)
	}
	row := models.CloneRow(m.rows[rowIndex])
	row[column] = value
	m.rows[rowIndex] = row
	return nil
}

// AddRow appends a row with every existing column set to empty.
func (m *Model) AddRow() {
	m.rows = append(m.rows, models.BlankRow(m.columns))
}

// RemoveRow removes the row at the index. Removing the last remaining row is
// a no-op: at least one row always exists.
func (m *Model) RemoveRow(rowIndex int) {
	if len(m.rows) <= 1 {
		return
	}
	if rowIndex < 0 || rowIndex >= len(m.rows) {
		return
	}
	m.rows = append(m.rows[:rowIndex:rowIndex], m.rows[rowIndex+1:]...)
}

// Save pushes the full row sequence to the remote store as a whole-document
// replacement.
func (m *Model) Save(ctx context.Context, actor permission.Actor) error {
	if err := m.store.PutRows(ctx, m.docID, m.Rows(), actor); err != nil {
		m.logger.ErrorContext(ctx, "row save failed",
			"document_id", m.docID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to save document rows")
	}
	return nil
}
