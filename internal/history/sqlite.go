// Package history keeps a local ledger of finished runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"transcript-cleaner/internal/runner"
)

const DefaultFileName = "history.db"

type Entry struct {
	SessionID    string          `json:"session_id"`
	JobID        string          `json:"job_id"`
	Title        string          `json:"title"`
	Status       string          `json:"status"`
	UnitsDone    int             `json:"units_done"`
	UnitsTotal   int             `json:"units_total"`
	Cost         decimal.Decimal `json:"cost"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Model        string          `json:"model"`
	Error        string          `json:"error,omitempty"`
	FinishedAt   time.Time       `json:"finished_at"`
}

type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  session_id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  title TEXT NOT NULL,
  status TEXT NOT NULL,
  units_done INTEGER NOT NULL,
  units_total INTEGER NOT NULL,
  cost TEXT NOT NULL,
  input_tokens INTEGER NOT NULL,
  output_tokens INTEGER NOT NULL,
  model TEXT NOT NULL,
  error TEXT,
  finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_job_id ON runs(job_id);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Record implements runner.Recorder.
func (s *SQLite) Record(ctx context.Context, rec runner.RunRecord) error {
	var errMsg sql.NullString
	if rec.Error != "" {
		errMsg = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
         (session_id, job_id, title, status, units_done, units_total, cost, input_tokens, output_tokens, model, error, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.JobID,
		rec.Title,
		rec.Status,
		rec.UnitsDone,
		rec.UnitsTotal,
		rec.Cost.String(),
		rec.InputTokens,
		rec.OutputTokens,
		rec.Model,
		errMsg,
		rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.SessionID, err)
	}
	return nil
}

// List returns the newest runs first. An empty jobID lists every job.
func (s *SQLite) List(ctx context.Context, jobID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 25
	}
	query := `SELECT session_id, job_id, title, status, units_done, units_total, cost, input_tokens, output_tokens, model, error, finished_at
       FROM runs`
	args := []any{}
	if jobID != "" {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY finished_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			cost       string
			errMsg     sql.NullString
			finishedMs int64
		)
		if err := rows.Scan(&e.SessionID, &e.JobID, &e.Title, &e.Status, &e.UnitsDone, &e.UnitsTotal, &cost, &e.InputTokens, &e.OutputTokens, &e.Model, &errMsg, &finishedMs); err != nil {
			return nil, err
		}
		e.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad cost %q: %w", e.SessionID, cost, err)
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		e.FinishedAt = time.UnixMilli(finishedMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
