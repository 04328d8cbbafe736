package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/dailyquestion/internal/model"
)

// RunStore keeps the log of progression runs and their per-family failures.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func scanRun(scanner interface{ Scan(...any) error }) (*model.ProgressionRun, error) {
	var (
		r          model.ProgressionRun
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := scanner.Scan(
		&r.ID, &r.Trigger, &startedAt, &finishedAt,
		&r.Families, &r.Advanced, &r.Penalized, &r.Exhausted, &r.Skipped, &r.Failed,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = fromMillis(startedAt)
	r.FinishedAt = nullMillis(finishedAt)
	return &r, nil
}

const runCols = `id, triggered_by, started_at, finished_at, families, advanced, penalized, exhausted, skipped, failed`

func (s *RunStore) Start(ctx context.Context, id, trigger string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progression_runs (id, triggered_by, started_at) VALUES (?, ?, ?)`,
		id, trigger, toMillis(startedAt),
	)
	if err != nil {
		return fmt.Errorf("insert progression run: %w", err)
	}
	return nil
}

// Finish stores the final counters of a run.
func (s *RunStore) Finish(ctx context.Context, run model.ProgressionRun, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE progression_runs
		 SET finished_at = ?, families = ?, advanced = ?, penalized = ?, exhausted = ?, skipped = ?, failed = ?
		 WHERE id = ?`,
		toMillis(finishedAt), run.Families, run.Advanced, run.Penalized, run.Exhausted, run.Skipped, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish progression run: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*model.ProgressionRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM progression_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progression run: %w", err)
	}
	return r, nil
}

func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]model.ProgressionRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runCols+` FROM progression_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list progression runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ProgressionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progression run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RecordFailure adds a failure to the run log. A (run, family, stage) triple
// is recorded at most once; recorded reports whether this call inserted it.
func (s *RunStore) RecordFailure(ctx context.Context, f model.RunFailure) (recorded bool, err error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO run_failures (run_id, family_id, stage, error, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, family_id, stage) DO NOTHING`,
		f.RunID, f.FamilyID, f.Stage, f.Error, toMillis(f.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert run failure: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *RunStore) ListFailures(ctx context.Context, runID string) ([]model.RunFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, family_id, stage, error, created_at FROM run_failures WHERE run_id = ? ORDER BY family_id ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run failures: %w", err)
	}
	defer rows.Close()

	var failures []model.RunFailure
	for rows.Next() {
		var f model.RunFailure
		var createdAt int64
		if err := rows.Scan(&f.RunID, &f.FamilyID, &f.Stage, &f.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run failure: %w", err)
		}
		f.CreatedAt = fromMillis(createdAt)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
