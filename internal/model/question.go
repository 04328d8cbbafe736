package model

import "time"

// Question is one entry of the global, ordered question catalog.
type Question struct {
	SequenceID int64     `json:"question_id"`
	Content    string    `json:"question_content"`
	CreatedAt  time.Time `json:"created_at"`
}

// FamilyProgress is the family's position in the question sequence.
type FamilyProgress struct {
	FamilyID   int64     `json:"family_id"`
	SequenceID int64     `json:"question_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ref returns the reference answers made against this position carry.
func (p FamilyProgress) Ref() SequenceRef {
	return SequenceRef{FamilyID: p.FamilyID, SequenceID: p.SequenceID}
}

// SequenceRef identifies a family's position at one question.
type SequenceRef struct {
	FamilyID   int64 `json:"family_id"`
	SequenceID int64 `json:"question_id"`
}
