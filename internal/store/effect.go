package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/google/uuid"
)

// EffectStore is the outbox of side effects owed to remote collaborators.
type EffectStore struct {
	db *sql.DB
}

func NewEffectStore(db *sql.DB) *EffectStore {
	return &EffectStore{db: db}
}

func scanEffect(scanner interface{ Scan(...any) error }) (*model.Effect, error) {
	var (
		e           model.Effect
		payload     string
		nextAt      int64
		createdAt   int64
		updatedAt   int64
		deliveredAt sql.NullInt64
	)
	err := scanner.Scan(
		&e.ID, &e.FamilyID, &e.Kind, &e.DedupeKey, &payload, &e.Status,
		&e.AttemptCount, &nextAt, &e.LastError, &createdAt, &updatedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	e.NextAttemptAt = fromMillis(nextAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	e.DeliveredAt = nullMillis(deliveredAt)
	return &e, nil
}

const effectCols = `id, family_id, kind, dedupe_key, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at, delivered_at`

// insertEffects writes pending effects that are due immediately. Effects
// whose dedupe key already exists are skipped; the inserted ones are returned
// with their stored fields populated.
func insertEffects(ctx context.Context, ex execer, effects []model.Effect, now time.Time) ([]model.Effect, error) {
	var inserted []model.Effect
	for _, e := range effects {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.Status = model.EffectPending
		e.AttemptCount = 0
		e.NextAttemptAt = now.UTC()
		e.CreatedAt = now.UTC()
		e.UpdatedAt = now.UTC()

		result, err := ex.ExecContext(ctx,
			`INSERT INTO effects (id, family_id, kind, dedupe_key, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, '', ?, ?)
			 ON CONFLICT(dedupe_key) DO NOTHING`,
			e.ID, e.FamilyID, e.Kind, e.DedupeKey, string(e.Payload), e.Status,
			toMillis(now), toMillis(now), toMillis(now),
		)
		if err != nil {
			return nil, fmt.Errorf("insert effect %s: %w", e.DedupeKey, err)
		}
		if n, _ := result.RowsAffected(); n == 1 {
			inserted = append(inserted, e)
		}
	}
	return inserted, nil
}

// Enqueue records effects in the outbox and returns the ones not already present.
func (s *EffectStore) Enqueue(ctx context.Context, now time.Time, effects ...model.Effect) ([]model.Effect, error) {
	return insertEffects(ctx, s.db, effects, now)
}

func (s *EffectStore) Get(ctx context.Context, id string) (*model.Effect, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+effectCols+` FROM effects WHERE id = ?`, id)
	e, err := scanEffect(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get effect: %w", err)
	}
	return e, nil
}

// ListDue returns undelivered effects whose next attempt is at or before now,
// oldest first.
func (s *EffectStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Effect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+effectCols+` FROM effects
		 WHERE status IN ('pending', 'failed') AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, created_at ASC
		 LIMIT ?`,
		toMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due effects: %w", err)
	}
	defer rows.Close()
	return scanEffects(rows)
}

func (s *EffectStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Effect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+effectCols+` FROM effects WHERE family_id = ? ORDER BY created_at ASC, kind ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list effects by family: %w", err)
	}
	defer rows.Close()
	return scanEffects(rows)
}

func scanEffects(rows *sql.Rows) ([]model.Effect, error) {
	var effects []model.Effect
	for rows.Next() {
		e, err := scanEffect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		effects = append(effects, *e)
	}
	return effects, rows.Err()
}

// Claim leases a due effect to the caller until now+lease. It reports false
// when the effect is not due, already delivered, or leased by someone else.
func (s *EffectStore) Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE effects SET next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'failed') AND next_attempt_at <= ?`,
		toMillis(now.Add(lease)), toMillis(now), id, toMillis(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim effect: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *EffectStore) MarkDelivered(ctx context.Context, id string, attempts int, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE effects SET status = 'delivered', attempt_count = ?, last_error = '', delivered_at = ?, updated_at = ? WHERE id = ?`,
		attempts, toMillis(now), toMillis(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark effect delivered: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and schedules the next one.
func (s *EffectStore) MarkFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE effects SET status = 'failed', attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		attempts, toMillis(next), lastErr, toMillis(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark effect failed: %w", err)
	}
	return nil
}

// MarkDead parks an effect that exhausted its attempts.
func (s *EffectStore) MarkDead(ctx context.Context, id string, attempts int, lastErr string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE effects SET status = 'dead', attempt_count = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		attempts, lastErr, toMillis(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark effect dead: %w", err)
	}
	return nil
}

// CountByStatus returns the number of effects in each status.
func (s *EffectStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM effects GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count effects: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan effect count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
