package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/dailyquestion/internal/model"
)

// Runner starts one progression run.
type Runner interface {
	RunDailyProgression(ctx context.Context, trigger string) (*Report, error)
}

// Scheduler fires a progression run on a cron schedule. A tick that comes
// due while the previous run is still going is skipped.
type Scheduler struct {
	mu     sync.RWMutex
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec, a standard five-field cron expression or a
// descriptor such as @daily, evaluated in loc.
func NewScheduler(runner Runner, spec string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("parse progression schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	if entries := s.cron.Entries(); len(entries) > 0 {
		s.logger.Info("progression scheduler started", "next", entries[0].Next)
	}
}

// Stop cancels a run in flight and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		return
	}

	if _, err := s.runner.RunDailyProgression(ctx, model.TriggerSchedule); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduled progression run", "error", err)
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
