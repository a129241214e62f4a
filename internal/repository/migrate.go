package repository

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

const (
	tableUploads         = "uploads"
	tableReceiptData     = "receipt_data"
	tableUserRequests    = "user_requests"
	tableReceiptRequests = "receipt_requests"
)

// {{json}} is replaced with the dialect's JSON column type.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS uploads (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS receipt_data (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		image_url   TEXT NOT NULL,
		items       {{json}} NOT NULL,
		uploaded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS receipt_data_user_uploaded_idx ON receipt_data (user_id, uploaded_at)`,
	`CREATE TABLE IF NOT EXISTS user_requests (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		action     TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS user_requests_window_idx ON user_requests (user_id, action, created_at)`,
	`CREATE TABLE IF NOT EXISTS receipt_requests (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		upload_id  TEXT,
		raw        {{json}} NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// Migrate creates the tables and indexes when they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	jsonType := "TEXT"
	if d.dialect == dialect.Postgres {
		jsonType = "JSONB"
	}
	for _, stmt := range schemaStatements {
		stmt = strings.ReplaceAll(stmt, "{{json}}", jsonType)
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			d.logger.Error("migration failed", "error", err)
			return fmt.Errorf("%w: migrate: %w", ErrMigration, err)
		}
	}
	d.logger.Info("schema is up to date", "dialect", d.dialect)
	return nil
}

// Tables lists the managed tables in creation order.
func Tables() []string {
	return []string{tableUploads, tableReceiptData, tableUserRequests, tableReceiptRequests}
}

// CountRows returns the number of rows in table.
func (d *DB) CountRows(ctx context.Context, table string) (int, error) {
	b := d.builder()
	query, args := b.Select().Count().From(b.Table(table)).Query()
	var n int
	if err := d.sql.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, dbError("count "+table, err)
	}
	return n, nil
}
