package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/dailyquestion/internal/model"
)

type ProgressStore struct {
	db *sql.DB
}

func NewProgressStore(db *sql.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

func scanProgress(scanner interface{ Scan(...any) error }) (*model.FamilyProgress, error) {
	var p model.FamilyProgress
	if err := scanner.Scan(&p.FamilyID, &p.SequenceID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const progressCols = `family_id, sequence_id, created_at, updated_at`

// Create inserts the progress record for a family. It returns ErrConflict if
// the family already has one.
func (s *ProgressStore) Create(ctx context.Context, familyID, sequenceID int64, now time.Time) (*model.FamilyProgress, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_progress (family_id, sequence_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		familyID, sequenceID, now.UTC(), now.UTC(),
	)
	if isUniqueConstraintError(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert family progress: %w", err)
	}
	return s.Get(ctx, familyID)
}

func (s *ProgressStore) Get(ctx context.Context, familyID int64) (*model.FamilyProgress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressCols+` FROM family_progress WHERE family_id = ?`, familyID)
	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family progress: %w", err)
	}
	return p, nil
}

// CompareAndAdvance moves a family from sequence from to sequence to only if
// the stored sequence still equals from. The given effects are enqueued in the
// same transaction; the ones actually inserted are returned. When the stored
// sequence differs, nothing is written and ok is false.
func (s *ProgressStore) CompareAndAdvance(ctx context.Context, familyID, from, to int64, now time.Time, effects []model.Effect) (inserted []model.Effect, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE family_progress SET sequence_id = ?, updated_at = ? WHERE family_id = ? AND sequence_id = ?`,
		to, now.UTC(), familyID, from,
	)
	if err != nil {
		return nil, false, fmt.Errorf("advance family progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	inserted, err = insertEffects(ctx, tx, effects, now)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit advance: %w", err)
	}
	return inserted, true, nil
}
