package repository

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// timeLayout is used for every stored timestamp so lexical order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Each pooled connection to ":memory:" would be a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reconciliation_runs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			as_of TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payment_count INTEGER NOT NULL,
			invoice_count INTEGER NOT NULL,
			match_count INTEGER NOT NULL,
			exception_count INTEGER NOT NULL,
			matched_amount INTEGER NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_tenant ON reconciliation_runs(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON reconciliation_runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS run_matches (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payment_id TEXT NOT NULL,
			invoice_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			match_type TEXT NOT NULL,
			note TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES reconciliation_runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_matches_payment ON run_matches(payment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_matches_invoice ON run_matches(invoice_id)`,

		`CREATE TABLE IF NOT EXISTS run_exceptions (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			payment_id TEXT,
			invoice_id TEXT,
			invoice_ids TEXT,
			amount INTEGER,
			currency TEXT,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES reconciliation_runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_exceptions_type ON run_exceptions(type)`,
		`CREATE INDEX IF NOT EXISTS idx_run_exceptions_severity ON run_exceptions(severity)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
