package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/dailyquestion/internal/model"
)

type QuestionStore struct {
	db *sql.DB
}

func NewQuestionStore(db *sql.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

func scanQuestion(scanner interface{ Scan(...any) error }) (*model.Question, error) {
	var q model.Question
	if err := scanner.Scan(&q.SequenceID, &q.Content, &q.CreatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

const questionCols = `sequence_id, content, created_at`

// Get returns the question with the given sequence id, or nil if the catalog
// has no such entry.
func (s *QuestionStore) Get(ctx context.Context, sequenceID int64) (*model.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE sequence_id = ?`, sequenceID)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// ListUpTo returns questions with sequence ids in [1, maxSeq], ordered by
// sequence id, as one page of at most limit entries.
func (s *QuestionStore) ListUpTo(ctx context.Context, maxSeq int64, desc bool, limit, offset int) ([]model.Question, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE sequence_id <= ? ORDER BY sequence_id `+order+` LIMIT ? OFFSET ?`,
		maxSeq, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// MaxSequence returns the highest sequence id in the catalog, or 0 when empty.
func (s *QuestionStore) MaxSequence(ctx context.Context) (int64, error) {
	var maxSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence_id) FROM questions`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("max question sequence: %w", err)
	}
	return maxSeq.Int64, nil
}

// Seed inserts questions that are not yet in the catalog. Existing entries
// are never modified. It returns the number of questions inserted.
func (s *QuestionStore) Seed(ctx context.Context, questions []model.Question) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO questions (sequence_id, content) VALUES (?, ?) ON CONFLICT(sequence_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, q := range questions {
		result, err := stmt.ExecContext(ctx, q.SequenceID, q.Content)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", q.SequenceID, err)
		}
		n, _ := result.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}
