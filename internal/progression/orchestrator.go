// Package progression runs the daily batch that advances or penalizes every
// family according to how many members answered the current question.
package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/gateway"
	"github.com/dukerupert/dailyquestion/internal/metrics"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/outbox"
	"github.com/dukerupert/dailyquestion/internal/participation"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/store"
	"github.com/dukerupert/dailyquestion/internal/websocket"
)

// Family outcomes
const (
	OutcomeAdvanced  = "advanced"
	OutcomePenalized = "penalized"
	OutcomeExhausted = "exhausted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Config controls the shape of a run.
type Config struct {
	Workers          int
	PageSize         int
	CompletionReward int
	// Location decides the calendar day penalties are keyed by.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.CompletionReward == 0 {
		c.CompletionReward = 10
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Broadcaster pushes live updates to a family's connected members.
type Broadcaster interface {
	BroadcastFamily(familyID int64, msg websocket.Message)
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Tracker     *progress.Tracker
	Answers     *store.AnswerStore
	Effects     *store.EffectStore
	Runs        *store.RunStore
	Roster      gateway.Roster
	Relay       *outbox.Relay
	Evaluator   participation.Evaluator
	Broadcaster Broadcaster
}

// Report summarizes one run.
type Report struct {
	Run      model.ProgressionRun `json:"run"`
	Failures []model.RunFailure   `json:"failures"`
}

// Orchestrator evaluates every family once per run. Families are processed
// concurrently and independently; a failing family never stops the batch.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the orchestrator's time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

type runState struct {
	mu       sync.Mutex
	run      model.ProgressionRun
	failures []model.RunFailure
	day      string
	logger   *slog.Logger
}

func (s *runState) count(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case OutcomeAdvanced:
		s.run.Advanced++
	case OutcomePenalized:
		s.run.Penalized++
	case OutcomeExhausted:
		s.run.Exhausted++
	case OutcomeSkipped:
		s.run.Skipped++
	case OutcomeFailed:
		s.run.Failed++
	}
	metrics.RecordFamilyOutcome(outcome)
}

// RunDailyProgression evaluates every family listed by the roster. It
// returns an error only when the run cannot be recorded or ctx ends before
// the batch completes; per-family failures are reported in the Report.
func (o *Orchestrator) RunDailyProgression(ctx context.Context, trigger string) (*Report, error) {
	started := o.now()
	state := &runState{
		run: model.ProgressionRun{
			ID:        uuid.NewString(),
			Trigger:   trigger,
			StartedAt: started,
		},
		day: started.In(o.cfg.Location).Format(time.DateOnly),
	}
	state.logger = o.logger.With("run_id", state.run.ID, "trigger", trigger)

	if err := o.deps.Runs.Start(ctx, state.run.ID, trigger, started); err != nil {
		return nil, err
	}
	state.logger.Info("progression run started")

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	// Each family is evaluated at most once per run, and listing stops as
	// soon as the cursor fails to move forward.
	seen := make(map[int64]struct{})
	var after int64
	for ctx.Err() == nil {
		ids, err := o.deps.Roster.ListFamilyIDs(ctx, after, o.cfg.PageSize)
		if err != nil {
			o.fail(ctx, state, 0, model.StageList, err)
			break
		}
		for _, familyID := range ids {
			if _, ok := seen[familyID]; ok {
				continue
			}
			seen[familyID] = struct{}{}
			g.Go(func() error {
				o.progressFamily(ctx, state, familyID)
				return nil
			})
		}
		if len(ids) < o.cfg.PageSize {
			break
		}
		last := ids[len(ids)-1]
		if last <= after {
			state.logger.Warn("family listing did not advance, stopping", "after", after, "last", last)
			break
		}
		after = last
	}
	g.Wait()

	finished := o.now()
	state.run.FinishedAt = &finished
	// The run log is written even when the batch was cancelled.
	if err := o.deps.Runs.Finish(context.WithoutCancel(ctx), state.run, finished); err != nil {
		return nil, err
	}
	metrics.RecordRun(trigger, finished.Sub(started))

	state.logger.Info("progression run finished",
		"families", state.run.Families,
		"advanced", state.run.Advanced,
		"penalized", state.run.Penalized,
		"exhausted", state.run.Exhausted,
		"skipped", state.run.Skipped,
		"failed", state.run.Failed,
		"duration", finished.Sub(started),
	)

	report := &Report{Run: state.run, Failures: state.failures}
	if report.Failures == nil {
		report.Failures = []model.RunFailure{}
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("progression run %s interrupted: %w", state.run.ID, err)
	}
	return report, nil
}

func (o *Orchestrator) progressFamily(ctx context.Context, state *runState, familyID int64) {
	if ctx.Err() != nil {
		return
	}
	state.mu.Lock()
	state.run.Families++
	state.mu.Unlock()

	logger := state.logger.With("family_id", familyID)

	cur, err := o.deps.Tracker.CurrentQuestion(ctx, familyID)
	if err != nil {
		o.fail(ctx, state, familyID, model.StageProgress, err)
		state.count(OutcomeFailed)
		return
	}

	members, err := o.deps.Roster.FamilyMembers(ctx, familyID)
	if err != nil {
		o.fail(ctx, state, familyID, model.StageRoster, err)
		state.count(OutcomeFailed)
		return
	}
	roster := model.MemberIDs(members)

	answeredIDs, err := o.deps.Answers.AnsweredMemberIDs(ctx, cur.Ref())
	if err != nil {
		o.fail(ctx, state, familyID, model.StageAnswers, err)
		state.count(OutcomeFailed)
		return
	}
	answered := participation.NewAnswerSet(answeredIDs...)

	if o.deps.Evaluator.IsComplete(roster, answered) {
		state.count(o.advance(ctx, state, logger, cur, roster))
		return
	}
	state.count(o.penalize(ctx, state, logger, cur, roster, answered))
}

func (o *Orchestrator) advance(ctx context.Context, state *runState, logger *slog.Logger, cur *progress.Current, roster []int64) string {
	familyID := cur.Progress.FamilyID
	from := cur.Progress.SequenceID

	next, owed, err := o.deps.Tracker.Advance(ctx, familyID, from, func(next model.Question) []model.Effect {
		key := fmt.Sprintf("advance:%d:%d", familyID, next.SequenceID)
		return []model.Effect{
			pointsEffect(familyID, o.cfg.CompletionReward, key+":points"),
			notificationEffect(familyID, key+":notification", model.Notification{
				Type:          model.NotifTypeRandomQuestion,
				ReceiverIDs:   roster,
				DestinationID: strconv.FormatInt(next.SequenceID, 10),
				Title:         "A new question has arrived",
				Message:       "Everyone answered! Today's family question is waiting for you.",
			}),
		}
	})
	switch {
	case errors.Is(err, apperr.ErrQuestionNotFound):
		logger.Info("question catalog exhausted, family paused", "sequence_id", from)
		return OutcomeExhausted
	case errors.Is(err, apperr.ErrAdvanceConflict):
		logger.Info("family already advanced by another run", "sequence_id", from)
		return OutcomeSkipped
	case err != nil:
		o.fail(ctx, state, familyID, model.StageAdvance, err)
		return OutcomeFailed
	}

	logger.Info("family advanced", "from", from, "to", next.SequenceID)
	o.deliver(ctx, state, familyID, owed)

	if o.deps.Broadcaster != nil {
		o.deps.Broadcaster.BroadcastFamily(familyID, websocket.QuestionAdvanced(next.SequenceID))
	}
	return OutcomeAdvanced
}

func (o *Orchestrator) penalize(ctx context.Context, state *runState, logger *slog.Logger, cur *progress.Current, roster []int64, answered participation.AnswerSet) string {
	familyID := cur.Progress.FamilyID
	missing := participation.NonRespondentCount(roster, answered)

	key := fmt.Sprintf("penalty:%d:%d:%s", familyID, cur.Progress.SequenceID, state.day)
	inserted, err := o.deps.Effects.Enqueue(ctx, o.now(), pointsEffect(familyID, -missing, key))
	if err != nil {
		o.fail(ctx, state, familyID, model.StagePoints, err)
		return OutcomeFailed
	}
	if len(inserted) == 0 {
		logger.Info("family already penalized today", "sequence_id", cur.Progress.SequenceID)
		return OutcomeSkipped
	}

	logger.Info("family penalized", "sequence_id", cur.Progress.SequenceID, "non_respondents", missing)
	o.deliver(ctx, state, familyID, inserted)
	return OutcomePenalized
}

// deliver attempts each effect once. Failures are recorded per stage and
// left in the outbox for later retry; one failing effect never stops the
// next.
func (o *Orchestrator) deliver(ctx context.Context, state *runState, familyID int64, effects []model.Effect) {
	for _, e := range effects {
		if err := o.deps.Relay.Deliver(ctx, e); err != nil {
			stage := model.StagePoints
			if e.Kind == model.EffectNotification {
				stage = model.StageNotification
			}
			o.fail(ctx, state, familyID, stage, err)
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, state *runState, familyID int64, stage string, err error) {
	state.logger.Error("family progression failed", "family_id", familyID, "stage", stage, "error", err)

	f := model.RunFailure{
		RunID:     state.run.ID,
		FamilyID:  familyID,
		Stage:     stage,
		Error:     err.Error(),
		CreatedAt: o.now(),
	}
	recorded, rerr := o.deps.Runs.RecordFailure(context.WithoutCancel(ctx), f)
	if rerr != nil {
		state.logger.Error("record run failure", "family_id", familyID, "stage", stage, "error", rerr)
	}
	if rerr == nil && !recorded {
		return
	}

	state.mu.Lock()
	state.failures = append(state.failures, f)
	state.mu.Unlock()
}

func pointsEffect(familyID int64, amount int, key string) model.Effect {
	return newEffect(familyID, model.EffectPoints, key, model.PointsDelta{FamilyID: familyID, Amount: amount})
}

func notificationEffect(familyID int64, key string, n model.Notification) model.Effect {
	return newEffect(familyID, model.EffectNotification, key, n)
}

func newEffect(familyID int64, kind, key string, payload any) model.Effect {
	// plain structs always marshal
	data, _ := json.Marshal(payload)
	return model.Effect{FamilyID: familyID, Kind: kind, DedupeKey: key, Payload: data}
}
