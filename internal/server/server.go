package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/dailyquestion/internal/config"
	"github.com/dukerupert/dailyquestion/internal/gateway"
	"github.com/dukerupert/dailyquestion/internal/handler"
	"github.com/dukerupert/dailyquestion/internal/metrics"
	"github.com/dukerupert/dailyquestion/internal/middleware"
	"github.com/dukerupert/dailyquestion/internal/outbox"
	"github.com/dukerupert/dailyquestion/internal/participation"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/progression"
	"github.com/dukerupert/dailyquestion/internal/push"
	"github.com/dukerupert/dailyquestion/internal/question"
	"github.com/dukerupert/dailyquestion/internal/store"
	ws "github.com/dukerupert/dailyquestion/internal/websocket"
)

// Collaborators are the remote services the engine depends on. Zero fields
// are filled from the configuration.
type Collaborators struct {
	Roster   gateway.Roster
	Points   gateway.Points
	Notifier gateway.Notifier
}

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	hub          *ws.Hub
	roster       gateway.Roster
	questionH    *handler.QuestionHandler
	progressionH *handler.ProgressionHandler
	pushH        *handler.PushHandler
	orchestrator *progression.Orchestrator
	scheduler    *progression.Scheduler
	relay        *outbox.Relay
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
	cancel       context.CancelFunc
	done         chan struct{}
}

func New(db *sql.DB, cfg *config.Config, collab Collaborators, logger *slog.Logger) (*Server, error) {
	policy, err := participation.ParseEmptyRosterPolicy(cfg.EmptyRosterPolicy)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	questionStore := store.NewQuestionStore(db)
	answerStore := store.NewAnswerStore(db)
	effectStore := store.NewEffectStore(db)
	runStore := store.NewRunStore(db)
	pushStore := store.NewPushStore(db)

	family := gateway.NewFamilyClient(cfg.FamilyServiceURL, gateway.WithTimeout(cfg.GatewayTimeout))
	if collab.Roster == nil {
		collab.Roster = family
	}
	if collab.Points == nil {
		collab.Points = family
	}

	var pushSvc *push.Service
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject).
			WithHTTPClient(&http.Client{Timeout: cfg.GatewayTimeout})
	}
	if collab.Notifier == nil {
		switch cfg.NotifyTransport {
		case config.TransportWebPush:
			if pushSvc == nil {
				return nil, fmt.Errorf("web push transport needs VAPID keys")
			}
			collab.Notifier = push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))
		default:
			collab.Notifier = gateway.NewNotificationClient(cfg.NotificationServiceURL, gateway.WithTimeout(cfg.GatewayTimeout))
		}
	}

	tracker := progress.NewTracker(store.NewProgressStore(db), questionStore)

	relay := outbox.NewRelay(effectStore, collab.Points, collab.Notifier, outbox.Config{
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		BaseDelay:   cfg.OutboxBaseDelay,
		MaxDelay:    cfg.OutboxMaxDelay,
		Interval:    cfg.OutboxInterval,
	}, logger.With("component", "outbox"))

	orchestrator := progression.NewOrchestrator(progression.Deps{
		Tracker:     tracker,
		Answers:     answerStore,
		Effects:     effectStore,
		Runs:        runStore,
		Roster:      collab.Roster,
		Relay:       relay,
		Evaluator:   participation.Evaluator{EmptyRoster: policy},
		Broadcaster: hub,
	}, progression.Config{
		Workers:          cfg.ProgressionWorkers,
		PageSize:         cfg.ProgressionPageSize,
		CompletionReward: cfg.CompletionReward,
		Location:         cfg.Location(),
	}, logger.With("component", "progression"))

	scheduler, err := progression.NewScheduler(orchestrator, cfg.ProgressionCron, cfg.Location(), logger.With("component", "scheduler"))
	if err != nil {
		return nil, err
	}

	questionSvc := question.NewService(tracker, questionStore, answerStore, collab.Roster, collab.Notifier, hub)

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		roster:       collab.Roster,
		questionH:    handler.NewQuestionHandler(questionSvc, logger.With("component", "question")),
		progressionH: handler.NewProgressionHandler(tracker, orchestrator, runStore, logger.With("component", "progression_handler")),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		orchestrator: orchestrator,
		scheduler:    scheduler,
		relay:        relay,
		rateLimiter:  middleware.NewRateLimiter(rate.Every(cfg.KnockInterval), cfg.KnockBurst),
		logger:       logger,
	}, nil
}

// Orchestrator returns the progression orchestrator for one-off runs.
func (s *Server) Orchestrator() *progression.Orchestrator {
	return s.orchestrator
}

// Relay returns the outbox relay.
func (s *Server) Relay() *outbox.Relay {
	return s.relay
}

// Start launches the background loops: the progression schedule, the
// outbox relay and rate limiter cleanup.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.scheduler.Start(ctx)
	s.relay.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup(10 * time.Minute)
			}
		}
	}()
}

// Stop halts the background loops and waits for them to return.
func (s *Server) Stop() {
	s.scheduler.Stop()
	s.relay.Stop()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	member := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireMember(h)
	}
	knockLimit := middleware.RateLimit(s.rateLimiter, middleware.MemberKey)

	// Member routes, identity from the API gateway
	mux.Handle("GET /questions", member(s.questionH.Get))
	mux.Handle("POST /questions/answers", member(s.questionH.CreateAnswer))
	mux.Handle("PATCH /questions/answers", member(s.questionH.UpdateAnswer))
	mux.Handle("GET /questions/all", member(s.questionH.List))
	mux.Handle("POST /questions/knock", middleware.RequireMember(knockLimit(http.HandlerFunc(s.questionH.Knock))))

	mux.Handle("POST /api/push/subscribe", member(s.pushH.Subscribe))
	mux.Handle("GET /api/push/subscriptions", member(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", member(s.pushH.Unsubscribe))
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	mux.Handle("GET /ws", member(ws.HandleWebSocket(s.hub, s.roster, s.logger.With("component", "websocket"))))

	// Service-to-service
	mux.HandleFunc("POST /client/families/{familyId}/progress", s.progressionH.InitFamily)

	// Operator routes
	admin := middleware.RequireAdmin(s.cfg.AdminToken)
	mux.Handle("POST /admin/progression/run", admin(http.HandlerFunc(s.progressionH.Run)))
	mux.Handle("GET /admin/progression/runs", admin(http.HandlerFunc(s.progressionH.ListRuns)))
	mux.Handle("GET /admin/progression/runs/{id}", admin(http.HandlerFunc(s.progressionH.GetRun)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
