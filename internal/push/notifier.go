package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/store"
)

// Notifier fans a notification out to every device its receivers
// subscribed. It stands in for the remote notification service when
// NOTIFY_TRANSPORT=webpush.
type Notifier struct {
	service *Service
	push    *store.PushStore
	logger  *slog.Logger
}

func NewNotifier(svc *Service, pushStore *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: svc, push: pushStore, logger: logger}
}

// Dispatch sends n to all receivers' devices. Expired subscriptions are
// removed. It fails only when no device accepted the message and at least
// one send failed, so a retry cannot spam devices that already got it.
func (n *Notifier) Dispatch(ctx context.Context, msg model.Notification) error {
	subs, err := n.push.ListByMembers(ctx, msg.ReceiverIDs)
	if err != nil {
		return err
	}

	payload := Payload{
		Title: msg.Title,
		Body:  msg.Message,
		URL:   destinationURL(msg),
		Tag:   strings.ToLower(msg.Type),
	}

	var (
		sent    int
		sendErr error
	)
	for _, sub := range subs {
		err := n.service.Send(ctx, &sub, payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrExpired):
			if err := n.push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Warn("delete expired subscription", "member_id", sub.MemberID, "error", err)
			}
		default:
			sendErr = multierr.Append(sendErr, fmt.Errorf("member %d: %w", sub.MemberID, err))
		}
	}

	if sendErr != nil {
		if sent == 0 {
			return apperr.Upstream("web push delivery failed", sendErr)
		}
		n.logger.Warn("partial push delivery", "type", msg.Type, "sent", sent, "error", sendErr)
	}
	return nil
}

func destinationURL(msg model.Notification) string {
	if msg.DestinationID == "" {
		return "/questions"
	}
	return "/questions?questionId=" + msg.DestinationID
}
