package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/progression"
	"github.com/dukerupert/dailyquestion/internal/store"
)

type ProgressionHandler struct {
	tracker *progress.Tracker
	runner  progression.Runner
	runs    *store.RunStore
	logger  *slog.Logger
}

func NewProgressionHandler(tracker *progress.Tracker, runner progression.Runner, runs *store.RunStore, logger *slog.Logger) *ProgressionHandler {
	return &ProgressionHandler{tracker: tracker, runner: runner, runs: runs, logger: logger}
}

// InitFamily handles POST /client/families/{familyId}/progress
func (h *ProgressionHandler) InitFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r, "familyId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.tracker.Initialize(r.Context(), familyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("family progress initialized", "family_id", familyID)
	writeJSON(w, http.StatusCreated, p)
}

// Run handles POST /admin/progression/run
func (h *ProgressionHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunDailyProgression(r.Context(), model.TriggerManual)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListRuns handles GET /admin/progression/runs
func (h *ProgressionHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), 20)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if runs == nil {
		runs = []model.ProgressionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /admin/progression/runs/{id}
func (h *ProgressionHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if run == nil {
		writeError(w, r, h.logger, apperr.ErrRunNotFound)
		return
	}

	failures, err := h.runs.ListFailures(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if failures == nil {
		failures = []model.RunFailure{}
	}
	writeJSON(w, http.StatusOK, progression.Report{Run: *run, Failures: failures})
}
