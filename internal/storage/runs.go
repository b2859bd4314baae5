// Package storage persists task run results in Postgres.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

var _ scheduler.Recorder = (*RunStorage)(nil)

type RunStorage struct {
	db *sqlx.DB
}

func NewRunStorage(db *sqlx.DB) *RunStorage {
	return &RunStorage{db: db}
}

// Run is one final task result as stored in task_runs.
type Run struct {
	ID         string         `db:"id"`
	Task       string         `db:"task"`
	State      string         `db:"state"`
	Attempts   int            `db:"attempts"`
	Entries    int            `db:"entries"`
	Title      string         `db:"title"`
	Error      sql.NullString `db:"error"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt time.Time      `db:"finished_at"`
}

func (s *RunStorage) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS task_runs (
    id          TEXT PRIMARY KEY,
    task        TEXT NOT NULL,
    state       TEXT NOT NULL,
    attempts    INT NOT NULL DEFAULT 0,
    entries     INT NOT NULL DEFAULT 0,
    title       TEXT NOT NULL DEFAULT '',
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS task_runs_task_finished_at ON task_runs (task, finished_at DESC);
`)
	return err
}

func (s *RunStorage) Record(ctx context.Context, r scheduler.Result) error {
	run := Run{
		ID:         r.JobID,
		Task:       r.Task,
		State:      string(r.State),
		Attempts:   r.Attempts,
		Entries:    r.Summary.Entries,
		Title:      r.Summary.Title,
		Error:      sql.NullString{String: r.ErrorText(), Valid: r.Err != nil},
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
	}

	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO task_runs (id, task, state, attempts, entries, title, error, started_at, finished_at)
VALUES (:id, :task, :state, :attempts, :entries, :title, :error, :started_at, :finished_at)
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    attempts = EXCLUDED.attempts,
    entries = EXCLUDED.entries,
    title = EXCLUDED.title,
    error = EXCLUDED.error,
    finished_at = EXCLUDED.finished_at`, run)
	return err
}

// Latest returns the most recent runs of task, newest first.
func (s *RunStorage) Latest(ctx context.Context, task string, limit int) ([]Run, error) {
	var runs []Run

	limit = lo.Ternary(limit > 0, limit, 20)
	if err := s.db.SelectContext(ctx, &runs,
		`SELECT id, task, state, attempts, entries, title, error, started_at, finished_at
		FROM task_runs WHERE task = $1 ORDER BY finished_at DESC LIMIT $2`,
		task, limit,
	); err != nil {
		return nil, err
	}

	return runs, nil
}
