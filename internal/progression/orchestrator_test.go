package progression

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/database"
	"github.com/dukerupert/dailyquestion/internal/gateway"
	"github.com/dukerupert/dailyquestion/internal/gateway/gatewaytest"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/outbox"
	"github.com/dukerupert/dailyquestion/internal/participation"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/store"
	"github.com/dukerupert/dailyquestion/internal/websocket"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs map[int64][]websocket.Message
}

func (b *recordingBroadcaster) BroadcastFamily(familyID int64, msg websocket.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[familyID] = append(b.msgs[familyID], msg)
}

func (b *recordingBroadcaster) sent(familyID int64) []websocket.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgs[familyID]
}

type fixture struct {
	tracker   *progress.Tracker
	answers   *store.AnswerStore
	effects   *store.EffectStore
	runs      *store.RunStore
	roster    *gatewaytest.Roster
	points    *gatewaytest.Points
	notifier  *gatewaytest.Notifier
	broadcast *recordingBroadcaster
	orch      *Orchestrator
	now       time.Time
}

type fixtureOpts struct {
	questions int
	policy    participation.EmptyRosterPolicy
	pageSize  int
	// roster overrides the roster the orchestrator lists families from.
	roster func(*gatewaytest.Roster) gateway.Roster
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "progression.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	qs := store.NewQuestionStore(db)
	var catalog []model.Question
	for i := 1; i <= opts.questions; i++ {
		catalog = append(catalog, model.Question{SequenceID: int64(i), Content: fmt.Sprintf("Q%d", i)})
	}
	_, err = qs.Seed(ctx, catalog)
	require.NoError(t, err)

	f := &fixture{
		answers:   store.NewAnswerStore(db),
		effects:   store.NewEffectStore(db),
		runs:      store.NewRunStore(db),
		roster:    gatewaytest.NewRoster(),
		points:    gatewaytest.NewPoints(),
		notifier:  gatewaytest.NewNotifier(),
		broadcast: &recordingBroadcaster{msgs: make(map[int64][]websocket.Message)},
		now:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.tracker = progress.NewTracker(store.NewProgressStore(db), qs).WithClock(clock)
	relay := outbox.NewRelay(f.effects, f.points, f.notifier, outbox.Config{}, logger).WithClock(clock)
	var roster gateway.Roster = f.roster
	if opts.roster != nil {
		roster = opts.roster(f.roster)
	}
	f.orch = NewOrchestrator(Deps{
		Tracker:     f.tracker,
		Answers:     f.answers,
		Effects:     f.effects,
		Runs:        f.runs,
		Roster:      roster,
		Relay:       relay,
		Evaluator:   participation.Evaluator{EmptyRoster: opts.policy},
		Broadcaster: f.broadcast,
	}, Config{Workers: 4, PageSize: opts.pageSize, Location: time.UTC}, logger).WithClock(clock)
	return f
}

// family registers and initializes a family with the given member ids.
func (f *fixture) family(t *testing.T, familyID int64, memberIDs ...int64) {
	t.Helper()
	var members []model.FamilyMember
	for _, id := range memberIDs {
		members = append(members, model.FamilyMember{ID: id, Nickname: fmt.Sprintf("m%d", id)})
	}
	f.roster.AddFamily(familyID, members...)
	_, err := f.tracker.Initialize(context.Background(), familyID)
	require.NoError(t, err)
}

func (f *fixture) answer(t *testing.T, familyID, seq int64, memberIDs ...int64) {
	t.Helper()
	for _, id := range memberIDs {
		_, err := f.answers.Create(context.Background(), model.SequenceRef{FamilyID: familyID, SequenceID: seq}, id, "answer", f.now)
		require.NoError(t, err)
	}
}

func (f *fixture) sequence(t *testing.T, familyID int64) int64 {
	t.Helper()
	cur, err := f.tracker.CurrentQuestion(context.Background(), familyID)
	require.NoError(t, err)
	return cur.Progress.SequenceID
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	report, err := f.orch.RunDailyProgression(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	return report
}

func TestCompleteFamilyAdvances(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10, 11)
	f.answer(t, 1, 1, 10, 11)

	report := f.run(t)

	assert.Equal(t, int64(2), f.sequence(t, 1))
	assert.Equal(t, []int{10}, f.points.Deltas(1))

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.NotifTypeRandomQuestion, sent[0].Type)
	assert.Equal(t, []int64{10, 11}, sent[0].ReceiverIDs)
	assert.Equal(t, "2", sent[0].DestinationID)
	assert.Nil(t, sent[0].SenderID)

	assert.Equal(t, 1, report.Run.Families)
	assert.Equal(t, 1, report.Run.Advanced)
	assert.Empty(t, report.Failures)

	msgs := f.broadcast.sent(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "question_advanced", msgs[0].Type)
	assert.Equal(t, int64(2), msgs[0].ID)
}

func TestIncompleteFamilyPenalized(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10, 11)
	f.answer(t, 1, 1, 10)

	report := f.run(t)

	assert.Equal(t, int64(1), f.sequence(t, 1))
	assert.Equal(t, []int{-1}, f.points.Deltas(1))
	assert.Zero(t, f.notifier.Calls())
	assert.Equal(t, 1, report.Run.Penalized)
	assert.Empty(t, f.broadcast.sent(1))
}

func TestPenaltyAppliedOncePerDay(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10, 11, 12)

	first := f.run(t)
	second := f.run(t)

	assert.Equal(t, []int{-3}, f.points.Deltas(1))
	assert.Equal(t, 1, first.Run.Penalized)
	assert.Equal(t, 1, second.Run.Skipped)

	f.now = f.now.Add(24 * time.Hour)
	f.run(t)
	assert.Equal(t, []int{-3, -3}, f.points.Deltas(1))
}

func TestCatalogExhausted(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 1})
	f.family(t, 1, 10)
	f.answer(t, 1, 1, 10)

	report := f.run(t)

	assert.Equal(t, int64(1), f.sequence(t, 1))
	assert.Zero(t, f.points.Calls())
	assert.Zero(t, f.notifier.Calls())
	assert.Equal(t, 1, report.Run.Exhausted)
	assert.Empty(t, report.Failures)
}

func TestFailingFamilyDoesNotStopBatch(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10)
	f.family(t, 2, 20)
	f.family(t, 3, 30)
	f.answer(t, 1, 1, 10)
	f.answer(t, 3, 1, 30)
	f.roster.FailMembers(2, apperr.Upstream("get family members", errors.New("connection refused")))

	report := f.run(t)

	assert.Equal(t, int64(2), f.sequence(t, 1))
	assert.Equal(t, int64(1), f.sequence(t, 2))
	assert.Equal(t, int64(2), f.sequence(t, 3))
	assert.Equal(t, 2, report.Run.Advanced)
	assert.Equal(t, 1, report.Run.Failed)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].FamilyID)
	assert.Equal(t, model.StageRoster, report.Failures[0].Stage)

	logged, err := f.runs.ListFailures(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, int64(2), logged[0].FamilyID)
}

func TestNotificationFailureKeepsPoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10, 11)
	f.answer(t, 1, 1, 10, 11)
	f.notifier.Fail(apperr.Upstream("dispatch notification", errors.New("timeout")))

	report := f.run(t)

	assert.Equal(t, int64(2), f.sequence(t, 1))
	assert.Equal(t, []int{10}, f.points.Deltas(1))
	assert.Equal(t, 1, f.notifier.Calls())
	assert.Equal(t, 1, report.Run.Advanced)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, model.StageNotification, report.Failures[0].Stage)

	effects, err := f.effects.ListByFamily(context.Background(), 1)
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, e := range effects {
		statuses[e.Kind] = e.Status
	}
	assert.Equal(t, model.EffectDelivered, statuses[model.EffectPoints])
	assert.Equal(t, model.EffectFailed, statuses[model.EffectNotification])
}

func TestPointsFailureStillNotifies(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10)
	f.answer(t, 1, 1, 10)
	f.points.Fail(1, apperr.Upstream("apply points", errors.New("503")))

	report := f.run(t)

	assert.Equal(t, int64(2), f.sequence(t, 1))
	assert.Len(t, f.notifier.Sent(), 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, model.StagePoints, report.Failures[0].Stage)
}

func TestMissingProgressIsRecorded(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.roster.AddFamily(5, model.FamilyMember{ID: 50})

	report := f.run(t)

	assert.Equal(t, 1, report.Run.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, model.StageProgress, report.Failures[0].Stage)
	assert.Equal(t, int64(5), report.Failures[0].FamilyID)
	assert.NotEmpty(t, report.Failures[0].Error)
}

func TestListFailureEndsRunCleanly(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10)
	f.roster.FailList(apperr.Upstream("list family ids", errors.New("refused")))

	report := f.run(t)

	assert.Zero(t, report.Run.Families)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, model.StageList, report.Failures[0].Stage)
	assert.Zero(t, report.Failures[0].FamilyID)

	stored, err := f.runs.Get(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FinishedAt)
}

func TestPagesThroughAllFamilies(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3, pageSize: 2})
	for id := int64(1); id <= 5; id++ {
		f.family(t, id, id*10)
		f.answer(t, id, 1, id*10)
	}

	report := f.run(t)

	assert.Equal(t, 5, report.Run.Families)
	assert.Equal(t, 5, report.Run.Advanced)
	for id := int64(1); id <= 5; id++ {
		assert.Equal(t, int64(2), f.sequence(t, id), "family %d", id)
	}
}

// fixedPageRoster answers every listing with the same page, whatever the
// cursor.
type fixedPageRoster struct {
	*gatewaytest.Roster
	page []int64

	mu    sync.Mutex
	calls int
}

func (r *fixedPageRoster) ListFamilyIDs(ctx context.Context, after int64, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.page, nil
}

func TestListingThatIgnoresCursorEnds(t *testing.T) {
	var lister *fixedPageRoster
	f := newFixture(t, fixtureOpts{questions: 3, pageSize: 2, roster: func(r *gatewaytest.Roster) gateway.Roster {
		lister = &fixedPageRoster{Roster: r, page: []int64{1, 2}}
		return lister
	}})
	f.family(t, 1, 10)
	f.family(t, 2, 20)
	f.answer(t, 1, 1, 10)
	f.answer(t, 2, 1, 20)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := f.orch.RunDailyProgression(ctx, model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Run.Families)
	assert.Equal(t, 2, report.Run.Advanced)
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, int64(2), f.sequence(t, 1))
	assert.Equal(t, int64(2), f.sequence(t, 2))
}

func TestListingWithRepeatedIDsEvaluatesOnce(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3, pageSize: 4, roster: func(r *gatewaytest.Roster) gateway.Roster {
		return &fixedPageRoster{Roster: r, page: []int64{3, 3, 3}}
	}})
	f.family(t, 3, 30)
	f.answer(t, 3, 1, 30)

	report := f.run(t)

	assert.Equal(t, 1, report.Run.Families)
	assert.Equal(t, 1, report.Run.Advanced)
	assert.Equal(t, int64(2), f.sequence(t, 3))
}

func TestEmptyRosterPolicy(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{questions: 3})
		f.family(t, 1)

		report := f.run(t)
		assert.Equal(t, 1, report.Run.Advanced)
		assert.Equal(t, int64(2), f.sequence(t, 1))
	})

	t.Run("stalled", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{questions: 3, policy: participation.EmptyRosterStalled})
		f.family(t, 1)

		report := f.run(t)
		assert.Equal(t, 1, report.Run.Penalized)
		assert.Equal(t, int64(1), f.sequence(t, 1))
		assert.Equal(t, []int{0}, f.points.Deltas(1))
	})
}

func TestConcurrentRunsAdvanceOnce(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 5})
	for id := int64(1); id <= 4; id++ {
		f.family(t, id, id*10, id*10+1)
		f.answer(t, id, 1, id*10, id*10+1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.RunDailyProgression(context.Background(), model.TriggerManual)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for id := int64(1); id <= 4; id++ {
		assert.Equal(t, int64(2), f.sequence(t, id), "family %d", id)
		rewards := 0
		for _, d := range f.points.Deltas(id) {
			if d == 10 {
				rewards++
			}
		}
		assert.Equal(t, 1, rewards, "family %d rewards", id)
	}

	var advances int
	for _, n := range f.notifier.Sent() {
		if n.Type == model.NotifTypeRandomQuestion {
			advances++
		}
	}
	assert.Equal(t, 4, advances)
}

func TestCancelledRun(t *testing.T) {
	f := newFixture(t, fixtureOpts{questions: 3})
	f.family(t, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.RunDailyProgression(ctx, model.TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(1), f.sequence(t, 1))
	assert.Zero(t, f.points.Calls())
}
