// Package outbox delivers side effects recorded by the progression engine to
// the remote points and notification services.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/dailyquestion/internal/gateway"
	"github.com/dukerupert/dailyquestion/internal/metrics"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/store"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

// errPermanent marks effects that can never be delivered as stored.
var errPermanent = errors.New("permanent delivery failure")

// Config controls delivery and retry behavior.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Interval    time.Duration
	// Lease is how long a claimed effect stays invisible to other deliverers.
	Lease time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 6 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	return c
}

// Relay delivers outbox effects. Each Deliver call makes exactly one attempt;
// failed effects are retried by later Drain ticks after a backoff.
type Relay struct {
	mu       sync.RWMutex
	effects  *store.EffectStore
	points   gateway.Points
	notifier gateway.Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRelay(effects *store.EffectStore, points gateway.Points, notifier gateway.Notifier, cfg Config, logger *slog.Logger) *Relay {
	return &Relay{
		effects:  effects,
		points:   points,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the relay's time source.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// Deliver makes one delivery attempt for e. It returns nil when the effect
// was delivered or is currently claimed by another deliverer, and the
// delivery error otherwise.
func (r *Relay) Deliver(ctx context.Context, e model.Effect) error {
	now := r.now()
	claimed, err := r.effects.Claim(ctx, e.ID, now, r.cfg.Lease)
	if err != nil {
		return err
	}
	if !claimed {
		r.logger.Debug("effect not claimable", "effect_id", e.ID, "kind", e.Kind)
		return nil
	}

	attempts := e.AttemptCount + 1
	sendErr := r.send(ctx, e)
	metrics.RecordDelivery(e.Kind, sendErr == nil)

	now = r.now()
	if sendErr == nil {
		return r.effects.MarkDelivered(ctx, e.ID, attempts, now)
	}

	var markErr error
	if errors.Is(sendErr, errPermanent) || attempts >= r.cfg.MaxAttempts {
		markErr = r.effects.MarkDead(ctx, e.ID, attempts, sendErr.Error(), now)
		r.logger.Error("effect dead-lettered", "effect_id", e.ID, "family_id", e.FamilyID, "kind", e.Kind, "attempts", attempts, "error", sendErr)
	} else {
		next := now.Add(r.Backoff(attempts))
		markErr = r.effects.MarkFailed(ctx, e.ID, attempts, next, sendErr.Error(), now)
	}
	return multierr.Append(sendErr, markErr)
}

// Backoff returns the delay before the attempt following the given number of
// failed attempts: BaseDelay doubled per failure, capped at MaxDelay.
func (r *Relay) Backoff(failedAttempts int) time.Duration {
	b := retry.WithCappedDuration(r.cfg.MaxDelay, retry.NewExponential(r.cfg.BaseDelay))
	var d time.Duration
	for i := 0; i < failedAttempts; i++ {
		d, _ = b.Next()
	}
	return d
}

func (r *Relay) send(ctx context.Context, e model.Effect) error {
	switch e.Kind {
	case model.EffectPoints:
		var delta model.PointsDelta
		if err := json.Unmarshal(e.Payload, &delta); err != nil {
			return fmt.Errorf("%w: decode points payload: %v", errPermanent, err)
		}
		return r.points.ApplyDelta(ctx, delta.FamilyID, delta.Amount)
	case model.EffectNotification:
		var n model.Notification
		if err := json.Unmarshal(e.Payload, &n); err != nil {
			return fmt.Errorf("%w: decode notification payload: %v", errPermanent, err)
		}
		return r.notifier.Dispatch(ctx, n)
	default:
		return fmt.Errorf("%w: unknown effect kind %q", errPermanent, e.Kind)
	}
}

// Drain delivers effects that are due now, one batch at a time, until no due
// effects remain or ctx is done. The first attempt of an effect belongs to
// whoever enqueued it for one lease period, so that caller sees its own
// delivery failures; Drain only picks such an effect up after that.
func (r *Relay) Drain(ctx context.Context) (delivered, failed int, err error) {
	seen := make(map[string]struct{})
	for {
		now := r.now()
		due, err := r.effects.ListDue(ctx, now, r.cfg.BatchSize)
		if err != nil {
			return delivered, failed, err
		}

		progressed := false
		for _, e := range due {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			progressed = true

			if e.AttemptCount == 0 && now.Sub(e.CreatedAt) < r.cfg.Lease {
				continue
			}

			if err := r.Deliver(ctx, e); err != nil {
				failed++
				r.logger.Warn("effect delivery failed", "effect_id", e.ID, "family_id", e.FamilyID, "kind", e.Kind, "error", err)
				continue
			}
			delivered++
		}

		if !progressed || len(due) < r.cfg.BatchSize {
			return delivered, failed, nil
		}
		if err := ctx.Err(); err != nil {
			return delivered, failed, err
		}
	}
}

// Start begins the relay loop.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the relay loop.
func (r *Relay) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Relay) tick(ctx context.Context) {
	delivered, failed, err := r.Drain(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("outbox drain", "error", err)
	}
	if delivered > 0 || failed > 0 {
		r.logger.Info("outbox drained", "delivered", delivered, "failed", failed)
	}

	counts, err := r.effects.CountByStatus(ctx)
	if err != nil {
		r.logger.Warn("count outbox effects", "error", err)
		return
	}
	metrics.SetOutboxBacklog(counts)
}
