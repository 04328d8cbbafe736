package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/auth"
)

// FamilyResolver finds the family a member belongs to.
type FamilyResolver interface {
	FamilyOf(ctx context.Context, memberID int64) (int64, error)
}

// HandleWebSocket returns an HTTP handler that upgrades an authenticated
// member's connection and subscribes it to the member's family.
func HandleWebSocket(hub *Hub, families FamilyResolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID := auth.MemberID(r.Context())
		familyID, err := families.FamilyOf(r.Context(), memberID)
		if err != nil {
			http.Error(w, err.Error(), apperr.HTTPStatus(err))
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // mobile clients send no Origin the browser checks expect
		})
		if err != nil {
			logger.Warn("websocket accept", "member_id", memberID, "error", err)
			return
		}

		client := NewClient(hub, conn, familyID, memberID)
		client.Run(r.Context())
	}
}
