package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the idempotent DDL for the document store tables. Applied at
// startup and by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id               UUID PRIMARY KEY,
	tenant_id        UUID NOT NULL,
	name             TEXT NOT NULL,
	code             TEXT NOT NULL,
	version          INT NOT NULL CHECK (version > 0),
	process          TEXT NOT NULL,
	subprocess       TEXT NOT NULL DEFAULT '',
	doc_type         TEXT NOT NULL,
	status           TEXT NOT NULL,
	responsible_id   UUID NOT NULL,
	responsible_name TEXT NOT NULL DEFAULT '',
	review_date      DATE,
	file_url         TEXT NOT NULL DEFAULT '',
	content_type     TEXT NOT NULL DEFAULT 'file',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, code, version)
);

CREATE INDEX IF NOT EXISTS documents_tenant_status_idx
	ON documents (tenant_id, status);

CREATE TABLE IF NOT EXISTS document_history (
	id          TEXT PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	entry_date  TIMESTAMPTZ NOT NULL,
	version     INT NOT NULL,
	changes     TEXT NOT NULL,
	author      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS document_history_document_idx
	ON document_history (document_id, entry_date);

CREATE TABLE IF NOT EXISTS kpis (
	id               TEXT PRIMARY KEY,
	tenant_id        UUID NOT NULL,
	name             TEXT NOT NULL,
	process          TEXT NOT NULL,
	subprocess       TEXT NOT NULL DEFAULT '',
	target           DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit             TEXT NOT NULL DEFAULT '',
	periodicity      TEXT NOT NULL DEFAULT '',
	responsible_name TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS kpis_tenant_idx ON kpis (tenant_id);

CREATE TABLE IF NOT EXISTS document_rows (
	document_id UUID NOT NULL,
	position    INT NOT NULL,
	data        JSONB NOT NULL,
	PRIMARY KEY (document_id, position)
);
`

// EnsureSchema applies the DDL. Safe to call on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
