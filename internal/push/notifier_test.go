package push

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/database"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/store"
)

type pushServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

// newPushServer answers 410 for paths containing "gone", 500 for paths
// containing "broken" and 201 otherwise.
func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{hits: make(map[string]int)}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.hits[r.URL.Path]++
		ps.mu.Unlock()
		switch {
		case strings.Contains(r.URL.Path, "gone"):
			w.WriteHeader(http.StatusGone)
		case strings.Contains(r.URL.Path, "broken"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) count(path string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.hits[path]
}

func setupNotifier(t *testing.T, srv *pushServer) (*Notifier, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ps := store.NewPushStore(db)
	svc := testService(t).WithHTTPClient(srv.Client())
	return NewNotifier(svc, ps, slog.Default()), ps
}

func subscribe(t *testing.T, ps *store.PushStore, memberID int64, endpoint string) {
	t.Helper()
	sub := testSubscription(t, memberID, endpoint)
	if _, err := ps.CreateSubscription(context.Background(), memberID, sub.Endpoint, sub.P256dhKey, sub.AuthKey, "test"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestDispatchFansOut(t *testing.T) {
	srv := newPushServer(t)
	n, ps := setupNotifier(t, srv)
	ctx := context.Background()

	subscribe(t, ps, 1, srv.URL+"/a")
	subscribe(t, ps, 2, srv.URL+"/b")
	subscribe(t, ps, 3, srv.URL+"/c")

	err := n.Dispatch(ctx, model.Notification{
		Type:          model.NotifTypeRandomQuestion,
		ReceiverIDs:   []int64{1, 2},
		DestinationID: "4",
		Title:         "New question",
		Message:       "Today's question is ready",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if srv.count("/a") != 1 || srv.count("/b") != 1 {
		t.Errorf("expected one push each to /a and /b, got %d and %d", srv.count("/a"), srv.count("/b"))
	}
	if srv.count("/c") != 0 {
		t.Errorf("member 3 is not a receiver, got %d pushes", srv.count("/c"))
	}
}

func TestDispatchRemovesExpired(t *testing.T) {
	srv := newPushServer(t)
	n, ps := setupNotifier(t, srv)
	ctx := context.Background()

	subscribe(t, ps, 1, srv.URL+"/gone")
	subscribe(t, ps, 1, srv.URL+"/ok")

	if err := n.Dispatch(ctx, model.Notification{Type: model.NotifTypeKnock, ReceiverIDs: []int64{1}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	subs, err := ps.ListByMember(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || !strings.HasSuffix(subs[0].Endpoint, "/ok") {
		t.Errorf("expected only the live subscription to remain, got %+v", subs)
	}
}

func TestDispatchAllFailed(t *testing.T) {
	srv := newPushServer(t)
	n, ps := setupNotifier(t, srv)

	subscribe(t, ps, 1, srv.URL+"/broken")

	err := n.Dispatch(context.Background(), model.Notification{Type: model.NotifTypeKnock, ReceiverIDs: []int64{1}})
	if apperr.KindOf(err) != apperr.KindUpstreamUnavailable {
		t.Errorf("kind = %v, want upstream unavailable (err %v)", apperr.KindOf(err), err)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	srv := newPushServer(t)
	n, ps := setupNotifier(t, srv)

	subscribe(t, ps, 1, srv.URL+"/broken")
	subscribe(t, ps, 2, srv.URL+"/ok")

	err := n.Dispatch(context.Background(), model.Notification{Type: model.NotifTypeKnock, ReceiverIDs: []int64{1, 2}})
	if err != nil {
		t.Errorf("partial delivery should succeed, got %v", err)
	}
}

func TestDispatchNoSubscriptions(t *testing.T) {
	srv := newPushServer(t)
	n, _ := setupNotifier(t, srv)

	if err := n.Dispatch(context.Background(), model.Notification{Type: model.NotifTypeKnock, ReceiverIDs: []int64{9}}); err != nil {
		t.Errorf("dispatch with no devices: %v", err)
	}
}

func TestDestinationURL(t *testing.T) {
	if got := destinationURL(model.Notification{DestinationID: "12"}); got != "/questions?questionId=12" {
		t.Errorf("url = %q", got)
	}
	if got := destinationURL(model.Notification{}); got != "/questions" {
		t.Errorf("url = %q", got)
	}
}
