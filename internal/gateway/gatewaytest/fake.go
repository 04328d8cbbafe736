// Package gatewaytest provides in-memory gateway implementations for tests.
package gatewaytest

import (
	"context"
	"slices"
	"sync"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
)

// Roster is an in-memory gateway.Roster.
type Roster struct {
	mu           sync.Mutex
	families     map[int64][]model.FamilyMember
	membersErr   map[int64]error
	listErr      error
	membersCalls map[int64]int
}

func NewRoster() *Roster {
	return &Roster{
		families:     make(map[int64][]model.FamilyMember),
		membersErr:   make(map[int64]error),
		membersCalls: make(map[int64]int),
	}
}

// AddFamily registers a family with the given members.
func (r *Roster) AddFamily(familyID int64, members ...model.FamilyMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[familyID] = members
}

// FailMembers makes FamilyMembers fail for one family.
func (r *Roster) FailMembers(familyID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.membersErr[familyID] = err
}

// FailList makes ListFamilyIDs fail.
func (r *Roster) FailList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

// MembersCalls returns how often FamilyMembers was called for a family.
func (r *Roster) MembersCalls(familyID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersCalls[familyID]
}

func (r *Roster) ListFamilyIDs(ctx context.Context, after int64, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	var ids []int64
	for id := range r.families {
		if id > after {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *Roster) FamilyMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.membersCalls[familyID]++
	if err := r.membersErr[familyID]; err != nil {
		return nil, err
	}
	return slices.Clone(r.families[familyID]), nil
}

func (r *Roster) FamilyOf(ctx context.Context, memberID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for familyID, members := range r.families {
		for _, m := range members {
			if m.ID == memberID {
				return familyID, nil
			}
		}
	}
	return 0, apperr.ErrMemberNotFound
}

// Points is an in-memory gateway.Points that records applied deltas.
type Points struct {
	mu     sync.Mutex
	deltas []model.PointsDelta
	errs   map[int64]error
	calls  int
}

func NewPoints() *Points {
	return &Points{errs: make(map[int64]error)}
}

// Fail makes ApplyDelta fail for one family until cleared with a nil error.
func (p *Points) Fail(familyID int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[familyID] = err
}

func (p *Points) ApplyDelta(ctx context.Context, familyID int64, amount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.errs[familyID]; err != nil {
		return err
	}
	p.deltas = append(p.deltas, model.PointsDelta{FamilyID: familyID, Amount: amount})
	return nil
}

// Deltas returns every applied delta for a family in order.
func (p *Points) Deltas(familyID int64) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for _, d := range p.deltas {
		if d.FamilyID == familyID {
			out = append(out, d.Amount)
		}
	}
	return out
}

// Calls returns the number of ApplyDelta calls, failed ones included.
func (p *Points) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Notifier is an in-memory gateway.Notifier.
type Notifier struct {
	mu    sync.Mutex
	sent  []model.Notification
	err   error
	calls int
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Fail makes every Dispatch fail with err until cleared with nil.
func (n *Notifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *Notifier) Dispatch(ctx context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns the successfully dispatched notifications.
func (n *Notifier) Sent() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

// Calls returns the number of Dispatch calls, failed ones included.
func (n *Notifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}
