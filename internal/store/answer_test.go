package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/dailyquestion/internal/model"
)

func TestAnswerCreateAndExists(t *testing.T) {
	db := setupTestDB(t)
	seedQuestions(t, db, 1)
	as := NewAnswerStore(db)
	ctx := context.Background()
	ref := model.SequenceRef{FamilyID: 1, SequenceID: 1}

	exists, err := as.Exists(ctx, ref, 10)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("expected no answer yet")
	}

	a, err := as.Create(ctx, ref, 10, "blue", time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if a.Content != "blue" {
		t.Errorf("content = %q, want %q", a.Content, "blue")
	}

	exists, _ = as.Exists(ctx, ref, 10)
	if !exists {
		t.Error("expected answer to exist")
	}

	_, err = as.Create(ctx, ref, 10, "green", time.Now())
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}
}

func TestAnswerUpdate(t *testing.T) {
	db := setupTestDB(t)
	seedQuestions(t, db, 1)
	as := NewAnswerStore(db)
	ctx := context.Background()
	ref := model.SequenceRef{FamilyID: 1, SequenceID: 1}
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	orig, err := as.Create(ctx, ref, 10, "blue", created)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := as.Update(ctx, ref, 10, "red", created.Add(time.Hour))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "red" {
		t.Errorf("content = %q, want %q", updated.Content, "red")
	}
	if updated.ID != orig.ID {
		t.Errorf("id changed: %d != %d", updated.ID, orig.ID)
	}
	if !updated.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("created_at changed: %v != %v", updated.CreatedAt, orig.CreatedAt)
	}
	if !updated.ModifiedAt.After(orig.ModifiedAt) {
		t.Errorf("modified_at = %v, want after %v", updated.ModifiedAt, orig.ModifiedAt)
	}

	missing, err := as.Update(ctx, ref, 11, "red", time.Now())
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing answer, got %+v", missing)
	}
}

func TestAnswersScopedToSequenceRef(t *testing.T) {
	db := setupTestDB(t)
	seedQuestions(t, db, 2)
	as := NewAnswerStore(db)
	ctx := context.Background()

	as.Create(ctx, model.SequenceRef{FamilyID: 1, SequenceID: 1}, 10, "a", time.Now())
	as.Create(ctx, model.SequenceRef{FamilyID: 1, SequenceID: 1}, 11, "b", time.Now())
	as.Create(ctx, model.SequenceRef{FamilyID: 1, SequenceID: 2}, 10, "c", time.Now())
	as.Create(ctx, model.SequenceRef{FamilyID: 2, SequenceID: 1}, 20, "d", time.Now())

	ids, err := as.AnsweredMemberIDs(ctx, model.SequenceRef{FamilyID: 1, SequenceID: 1})
	if err != nil {
		t.Fatalf("answered members: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("answered = %v, want 2 members", ids)
	}

	answers, err := as.ListByRef(ctx, model.SequenceRef{FamilyID: 1, SequenceID: 2})
	if err != nil {
		t.Fatalf("list by ref: %v", err)
	}
	if len(answers) != 1 || answers[0].Content != "c" {
		t.Errorf("answers = %+v, want one answer %q", answers, "c")
	}
}

func TestAnswerConcurrentSubmitOnlyOneWins(t *testing.T) {
	db := setupFileDB(t)
	seedQuestions(t, db, 1)
	as := NewAnswerStore(db)
	ctx := context.Background()
	ref := model.SequenceRef{FamilyID: 1, SequenceID: 1}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := as.Create(ctx, ref, 10, fmt.Sprintf("answer %d", i), time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
}
