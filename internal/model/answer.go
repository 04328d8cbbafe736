package model

import "time"

type Answer struct {
	ID         int64     `json:"answer_id"`
	FamilyID   int64     `json:"family_id"`
	SequenceID int64     `json:"question_id"`
	MemberID   int64     `json:"user_id"`
	Content    string    `json:"answer_content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

func (a Answer) Ref() SequenceRef {
	return SequenceRef{FamilyID: a.FamilyID, SequenceID: a.SequenceID}
}
