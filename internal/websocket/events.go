package websocket

// QuestionAdvanced announces that a family moved to a new question.
func QuestionAdvanced(sequenceID int64) Message {
	return NewMessage("question", "advanced", sequenceID, nil)
}

// AnswerChanged announces that a member created or updated an answer.
func AnswerChanged(action string, answerID, memberID, sequenceID int64) Message {
	return NewMessage("answer", action, answerID, map[string]any{
		"member_id":   memberID,
		"question_id": sequenceID,
	})
}
