// Package participation decides whether a family finished its current
// question. All functions are pure over a roster snapshot and an answer set.
package participation

import (
	"fmt"
	"strings"
)

// AnswerSet is the set of member ids that answered a family position.
type AnswerSet map[int64]struct{}

// NewAnswerSet builds a set from member ids.
func NewAnswerSet(memberIDs ...int64) AnswerSet {
	s := make(AnswerSet, len(memberIDs))
	for _, id := range memberIDs {
		s[id] = struct{}{}
	}
	return s
}

func (s AnswerSet) Has(memberID int64) bool {
	_, ok := s[memberID]
	return ok
}

// EmptyRosterPolicy decides the outcome for a family with no members.
type EmptyRosterPolicy string

const (
	// EmptyRosterComplete treats an empty roster as vacuously complete, so
	// the family keeps advancing.
	EmptyRosterComplete EmptyRosterPolicy = "complete"
	// EmptyRosterStalled treats an empty roster as incomplete with zero
	// non-respondents, so the family holds its position.
	EmptyRosterStalled EmptyRosterPolicy = "stalled"
)

// ParseEmptyRosterPolicy parses a configured policy name.
func ParseEmptyRosterPolicy(s string) (EmptyRosterPolicy, error) {
	switch p := EmptyRosterPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case EmptyRosterComplete, EmptyRosterStalled:
		return p, nil
	case "":
		return EmptyRosterComplete, nil
	default:
		return "", fmt.Errorf("unknown empty roster policy %q", s)
	}
}

// Evaluator evaluates participation for one roster snapshot.
type Evaluator struct {
	EmptyRoster EmptyRosterPolicy
}

// IsComplete reports whether every roster member answered. Answers from
// members no longer on the roster are ignored.
func (e Evaluator) IsComplete(roster []int64, answered AnswerSet) bool {
	if len(roster) == 0 {
		return e.EmptyRoster != EmptyRosterStalled
	}
	return NonRespondentCount(roster, answered) == 0
}

// RespondentCount returns how many roster members answered.
func RespondentCount(roster []int64, answered AnswerSet) int {
	n := 0
	for _, id := range dedupe(roster) {
		if answered.Has(id) {
			n++
		}
	}
	return n
}

// NonRespondentCount returns how many roster members have not answered.
func NonRespondentCount(roster []int64, answered AnswerSet) int {
	members := dedupe(roster)
	return len(members) - RespondentCount(members, answered)
}

func dedupe(roster []int64) []int64 {
	seen := make(map[int64]struct{}, len(roster))
	out := roster[:0:0]
	for _, id := range roster {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
