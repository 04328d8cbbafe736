package participation

import "testing"

func TestEvaluator(t *testing.T) {
	tests := []struct {
		name           string
		policy         EmptyRosterPolicy
		roster         []int64
		answered       AnswerSet
		wantComplete   bool
		wantRespond    int
		wantNonRespond int
	}{
		{"all answered", EmptyRosterComplete, []int64{1, 2}, NewAnswerSet(1, 2), true, 2, 0},
		{"one missing", EmptyRosterComplete, []int64{1, 2}, NewAnswerSet(1), false, 1, 1},
		{"nobody answered", EmptyRosterComplete, []int64{1, 2, 3}, NewAnswerSet(), false, 0, 3},
		{"single member answered", EmptyRosterComplete, []int64{1}, NewAnswerSet(1), true, 1, 0},
		{"departed member answer ignored", EmptyRosterComplete, []int64{1, 2}, NewAnswerSet(1, 9), false, 1, 1},
		{"duplicate roster entry", EmptyRosterComplete, []int64{1, 1, 2}, NewAnswerSet(1), false, 1, 1},
		{"empty roster complete policy", EmptyRosterComplete, nil, NewAnswerSet(), true, 0, 0},
		{"empty roster stalled policy", EmptyRosterStalled, nil, NewAnswerSet(), false, 0, 0},
		{"zero value policy", "", []int64{}, nil, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Evaluator{EmptyRoster: tt.policy}
			if got := e.IsComplete(tt.roster, tt.answered); got != tt.wantComplete {
				t.Errorf("IsComplete = %v, want %v", got, tt.wantComplete)
			}
			if got := RespondentCount(tt.roster, tt.answered); got != tt.wantRespond {
				t.Errorf("RespondentCount = %d, want %d", got, tt.wantRespond)
			}
			if got := NonRespondentCount(tt.roster, tt.answered); got != tt.wantNonRespond {
				t.Errorf("NonRespondentCount = %d, want %d", got, tt.wantNonRespond)
			}
		})
	}
}

func TestCountsPartitionRoster(t *testing.T) {
	roster := []int64{1, 2, 3, 4, 5}
	answered := NewAnswerSet(2, 4)
	if got := RespondentCount(roster, answered) + NonRespondentCount(roster, answered); got != len(roster) {
		t.Errorf("respondents + non-respondents = %d, want %d", got, len(roster))
	}
}

func TestParseEmptyRosterPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    EmptyRosterPolicy
		wantErr bool
	}{
		{"", EmptyRosterComplete, false},
		{"complete", EmptyRosterComplete, false},
		{" Stalled ", EmptyRosterStalled, false},
		{"skip", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEmptyRosterPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEmptyRosterPolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEmptyRosterPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
