package model

import (
	"encoding/json"
	"time"
)

// Effect kinds
const (
	EffectPoints       = "points"
	EffectNotification = "notification"
)

// Effect delivery states
const (
	EffectPending   = "pending"
	EffectFailed    = "failed"
	EffectDelivered = "delivered"
	EffectDead      = "dead"
)

// Effect is an outbound side effect recorded in the outbox. It is committed
// with the state change that caused it and delivered afterwards.
type Effect struct {
	ID            string          `json:"id"`
	FamilyID      int64           `json:"family_id"`
	Kind          string          `json:"kind"`
	DedupeKey     string          `json:"dedupe_key"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	AttemptCount  int             `json:"attempt_count"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
}
