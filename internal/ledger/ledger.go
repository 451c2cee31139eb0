// Package ledger persists activity history to SQLite. Recording is
// best-effort: a ledger failure is logged and swallowed, never surfaced
// to the pipeline.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS activity_history (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_mode ON activity_history(mode);
CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_history(created_at);
`

// SQLite is the Ledger implementation backed by a local database file.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the ledger database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// RecordActivity inserts one history row. Errors are returned for the
// caller to log, but callers must treat them as non-fatal.
func (l *SQLite) RecordActivity(ctx context.Context, mode, action, details string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO activity_history (id, mode, action, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), mode, action, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLite) Close() error {
	return l.db.Close()
}

// Nop is a Ledger that records nothing, for tests and disabled configs.
type Nop struct{}

func (Nop) RecordActivity(context.Context, string, string, string) error { return nil }
func (Nop) Close() error                                                 { return nil }
