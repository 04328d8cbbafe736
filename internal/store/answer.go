package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/dailyquestion/internal/model"
)

// AnswerStore is the answer ledger. Each member answers a family position at
// most once; the UNIQUE(family_id, sequence_id, member_id) constraint enforces
// it under concurrent submissions.
type AnswerStore struct {
	db *sql.DB
}

func NewAnswerStore(db *sql.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

func scanAnswer(scanner interface{ Scan(...any) error }) (*model.Answer, error) {
	var a model.Answer
	err := scanner.Scan(&a.ID, &a.FamilyID, &a.SequenceID, &a.MemberID, &a.Content, &a.CreatedAt, &a.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const answerCols = `id, family_id, sequence_id, member_id, content, created_at, modified_at`

func (s *AnswerStore) Exists(ctx context.Context, ref model.SequenceRef, memberID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM answers WHERE family_id = ? AND sequence_id = ? AND member_id = ?)`,
		ref.FamilyID, ref.SequenceID, memberID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check answer exists: %w", err)
	}
	return exists, nil
}

// Create records a member's answer. It returns ErrConflict if the member has
// already answered this position.
func (s *AnswerStore) Create(ctx context.Context, ref model.SequenceRef, memberID int64, content string, now time.Time) (*model.Answer, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (family_id, sequence_id, member_id, content, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ref.FamilyID, ref.SequenceID, memberID, content, now.UTC(), now.UTC(),
	)
	if isUniqueConstraintError(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert answer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AnswerStore) GetByID(ctx context.Context, id int64) (*model.Answer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+answerCols+` FROM answers WHERE id = ?`, id)
	a, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (s *AnswerStore) Get(ctx context.Context, ref model.SequenceRef, memberID int64) (*model.Answer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE family_id = ? AND sequence_id = ? AND member_id = ?`,
		ref.FamilyID, ref.SequenceID, memberID,
	)
	a, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

// Update replaces the content of an existing answer. Only content and
// modified_at change. It returns nil if there is no such answer.
func (s *AnswerStore) Update(ctx context.Context, ref model.SequenceRef, memberID int64, content string, now time.Time) (*model.Answer, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE answers SET content = ?, modified_at = ? WHERE family_id = ? AND sequence_id = ? AND member_id = ?`,
		content, now.UTC(), ref.FamilyID, ref.SequenceID, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Get(ctx, ref, memberID)
}

// ListByRef returns every answer made against a family position.
func (s *AnswerStore) ListByRef(ctx context.Context, ref model.SequenceRef) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE family_id = ? AND sequence_id = ? ORDER BY id ASC`,
		ref.FamilyID, ref.SequenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// AnsweredMemberIDs returns the ids of members who answered a family position.
func (s *AnswerStore) AnsweredMemberIDs(ctx context.Context, ref model.SequenceRef) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM answers WHERE family_id = ? AND sequence_id = ?`,
		ref.FamilyID, ref.SequenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answered members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
