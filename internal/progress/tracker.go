// Package progress tracks each family's position in the question sequence.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/store"
)

// FirstSequence is where every family starts.
const FirstSequence int64 = 1

// Current is a family's position together with the question it points at.
type Current struct {
	Progress model.FamilyProgress
	Question model.Question
}

// Ref returns the reference answers to the current question carry.
func (c Current) Ref() model.SequenceRef {
	return c.Progress.Ref()
}

// EffectsFunc builds the side effects owed once a family reaches next.
type EffectsFunc func(next model.Question) []model.Effect

// Tracker owns the FamilyProgress records.
type Tracker struct {
	progress  *store.ProgressStore
	questions *store.QuestionStore
	now       func() time.Time
}

func NewTracker(progress *store.ProgressStore, questions *store.QuestionStore) *Tracker {
	return &Tracker{progress: progress, questions: questions, now: time.Now}
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Initialize places a new family at the first question.
func (t *Tracker) Initialize(ctx context.Context, familyID int64) (*model.FamilyProgress, error) {
	existing, err := t.progress.Get(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.ErrAlreadyInitialized
	}

	first, err := t.questions.Get(ctx, FirstSequence)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, apperr.ErrQuestionNotFound
	}

	p, err := t.progress.Create(ctx, familyID, FirstSequence, t.now())
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.ErrAlreadyInitialized
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CurrentQuestion returns the family's position and its question.
func (t *Tracker) CurrentQuestion(ctx context.Context, familyID int64) (*Current, error) {
	p, err := t.progress.Get(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ErrProgressNotFound
	}

	q, err := t.questions.Get(ctx, p.SequenceID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apperr.ErrQuestionNotFound
	}
	return &Current{Progress: *p, Question: *q}, nil
}

// Advance moves a family from sequence from to from+1, provided the family
// is still at from. Effects built for the new question are committed in the
// same transaction and returned for immediate delivery.
//
// It returns apperr.ErrQuestionNotFound when the catalog has no next question
// yet and apperr.ErrAdvanceConflict when the family moved since from was read.
func (t *Tracker) Advance(ctx context.Context, familyID, from int64, effects EffectsFunc) (*model.Question, []model.Effect, error) {
	next, err := t.questions.Get(ctx, from+1)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, nil, apperr.ErrQuestionNotFound
	}

	var owed []model.Effect
	if effects != nil {
		owed = effects(*next)
	}

	inserted, ok, err := t.progress.CompareAndAdvance(ctx, familyID, from, next.SequenceID, t.now(), owed)
	if err != nil {
		return nil, nil, fmt.Errorf("advance family %d: %w", familyID, err)
	}
	if !ok {
		return nil, nil, apperr.ErrAdvanceConflict
	}
	return next, inserted, nil
}
