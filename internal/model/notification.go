package model

// Notification type constants
const (
	NotifTypeRandomQuestion = "RANDOM_QUESTION"
	NotifTypeKnock          = "KNOCK"
)

// Notification is one fan-out request to the notification service.
type Notification struct {
	Type          string  `json:"notification_type"`
	ReceiverIDs   []int64 `json:"receiver_user_ids"`
	SenderID      *int64  `json:"sender_user_id"`
	DestinationID string  `json:"destination_id"`
	Title         string  `json:"title"`
	Message       string  `json:"message"`
}

// PointsDelta is a request to adjust a family's shared point balance.
type PointsDelta struct {
	FamilyID int64 `json:"family_id"`
	Amount   int   `json:"amount"`
}
