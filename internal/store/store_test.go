package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dukerupert/dailyquestion/internal/database"
	"github.com/dukerupert/dailyquestion/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFileDB opens a file-backed database for tests that need more than
// one connection.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedQuestions(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	qs := make([]model.Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, model.Question{SequenceID: int64(i), Content: fmt.Sprintf("Question %d", i)})
	}
	if _, err := NewQuestionStore(db).Seed(context.Background(), qs); err != nil {
		t.Fatalf("seed questions: %v", err)
	}
}
