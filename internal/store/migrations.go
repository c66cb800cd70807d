package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all labexec tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT '',
		workflow_id          TEXT NOT NULL,
		inputs               TEXT NOT NULL DEFAULT '[]',
		state                TEXT NOT NULL DEFAULT 'NEW',
		cleaned_state        TEXT NOT NULL DEFAULT 'NOT_CLEANED',
		remote_analysis_id   TEXT NOT NULL DEFAULT '',
		remote_input_data_id TEXT NOT NULL DEFAULT '',
		remote_workflow_id   TEXT NOT NULL DEFAULT '',
		progress             REAL NOT NULL DEFAULT 0,
		error_message        TEXT NOT NULL DEFAULT '',
		submitted_by         TEXT NOT NULL DEFAULT '',
		version              INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		completed_at         TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS results (
		id            TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL UNIQUE REFERENCES submissions(id),
		workflow_type TEXT NOT NULL DEFAULT '',
		outputs       TEXT NOT NULL DEFAULT '[]',
		created_at    TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_submissions_workflow_id ON submissions(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_state ON submissions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_cleaned_state ON submissions(cleaned_state)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "submissions",
		column:   "remote_invocation_id",
		alterSQL: "ALTER TABLE submissions ADD COLUMN remote_invocation_id TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
