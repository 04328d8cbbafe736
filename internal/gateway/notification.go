package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
)

// NotificationClient talks to the notification service.
type NotificationClient struct {
	client
}

func NewNotificationClient(baseURL string, opts ...Option) *NotificationClient {
	return &NotificationClient{client: newClient(baseURL, opts)}
}

type notificationRequest struct {
	NotificationType string  `json:"notificationType"`
	ReceiverUserIDs  []int64 `json:"receiverUserIds"`
	SenderUserID     *int64  `json:"senderUserId"`
	DestinationID    string  `json:"destinationId"`
	Title            string  `json:"title"`
	Message          string  `json:"message"`
}

func (c *NotificationClient) Dispatch(ctx context.Context, n model.Notification) error {
	req := notificationRequest{
		NotificationType: n.Type,
		ReceiverUserIDs:  n.ReceiverIDs,
		SenderUserID:     n.SenderID,
		DestinationID:    n.DestinationID,
		Title:            n.Title,
		Message:          n.Message,
	}
	err := c.do(ctx, http.MethodPost, "/client/notifications", nil, req, nil)
	if errors.Is(err, errNotFound) {
		return apperr.Upstream("dispatch notification", err)
	}
	return err
}
