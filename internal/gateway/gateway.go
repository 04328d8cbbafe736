// Package gateway defines the remote collaborators of the progression engine
// and their HTTP clients. The family service owns rosters and point
// balances; the notification service fans messages out to devices.
package gateway

import (
	"context"

	"github.com/dukerupert/dailyquestion/internal/model"
)

// Roster reads family membership.
type Roster interface {
	// ListFamilyIDs returns up to limit family ids greater than after, in
	// ascending order. An empty result ends the stream.
	ListFamilyIDs(ctx context.Context, after int64, limit int) ([]int64, error)
	FamilyMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error)
	// FamilyOf returns the family a member belongs to.
	FamilyOf(ctx context.Context, memberID int64) (int64, error)
}

// Points adjusts a family's shared point balance.
type Points interface {
	ApplyDelta(ctx context.Context, familyID int64, amount int) error
}

// Notifier delivers one notification to its receivers.
type Notifier interface {
	Dispatch(ctx context.Context, n model.Notification) error
}
