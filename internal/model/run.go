package model

import "time"

// Run triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Failure stages recorded in the run log.
const (
	StageList         = "list"
	StageProgress     = "progress"
	StageRoster       = "roster"
	StageAnswers      = "answers"
	StageAdvance      = "advance"
	StagePoints       = "points"
	StageNotification = "notification"
)

// ProgressionRun is the summary of one daily progression batch.
type ProgressionRun struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Families   int        `json:"families"`
	Advanced   int        `json:"advanced"`
	Penalized  int        `json:"penalized"`
	Exhausted  int        `json:"exhausted"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// RunFailure is one per-family failure inside a run.
type RunFailure struct {
	RunID     string    `json:"run_id"`
	FamilyID  int64     `json:"family_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}
