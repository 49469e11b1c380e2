// Package store persists per-(intent, mode) simulation summaries in a
// local sqlite database, one row per batch boundary, last writer wins.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"botsim/internal/schema"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS simulation_summary (
	run_id       TEXT NOT NULL,
	intent       TEXT NOT NULL,
	mode         TEXT NOT NULL,
	total        INTEGER NOT NULL,
	success      INTEGER NOT NULL,
	intent_err   INTEGER NOT NULL,
	ner_err      INTEGER NOT NULL,
	other_err    INTEGER NOT NULL,
	success_rate REAL NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, intent, mode)
);`

// SummaryStore wraps the sqlite handle.
type SummaryStore struct {
	db *sql.DB
}

// Open creates the database file and its schema if needed.
func Open(path string) (*SummaryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open summary db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init summary schema: %w", err)
	}
	return &SummaryStore{db: db}, nil
}

func (s *SummaryStore) Close() error {
	return s.db.Close()
}

// Upsert writes the running summary for one (run, intent, mode).
func (s *SummaryStore) Upsert(ctx context.Context, runID, intent, mode string, summary schema.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO simulation_summary
	(run_id, intent, mode, total, success, intent_err, ner_err, other_err, success_rate, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, intent, mode) DO UPDATE SET
	total = excluded.total,
	success = excluded.success,
	intent_err = excluded.intent_err,
	ner_err = excluded.ner_err,
	other_err = excluded.other_err,
	success_rate = excluded.success_rate,
	updated_at = excluded.updated_at`,
		runID, intent, mode,
		summary.TotalEpisodes, summary.Success, summary.IntentErrors, summary.NERErrors, summary.OtherErrors,
		summary.SuccessRate, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Get reads one summary row back; sql.ErrNoRows when absent.
func (s *SummaryStore) Get(ctx context.Context, runID, intent, mode string) (schema.RunSummary, error) {
	var out schema.RunSummary
	err := s.db.QueryRowContext(ctx, `
SELECT total, success, intent_err, ner_err, other_err, success_rate
FROM simulation_summary WHERE run_id = ? AND intent = ? AND mode = ?`,
		runID, intent, mode).
		Scan(&out.TotalEpisodes, &out.Success, &out.IntentErrors, &out.NERErrors, &out.OtherErrors, &out.SuccessRate)
	return out, err
}
