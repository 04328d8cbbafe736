package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/auth"
	"github.com/dukerupert/dailyquestion/internal/question"
)

type QuestionHandler struct {
	service *question.Service
	logger  *slog.Logger
}

func NewQuestionHandler(svc *question.Service, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{service: svc, logger: logger}
}

type answerRequest struct {
	Content string `json:"content"`
}

type knockRequest struct {
	ReceiverID int64 `json:"receiverId"`
	QuestionID int64 `json:"questionId"`
}

// Get handles GET /questions?questionId=
func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	var seq *int64
	if raw := r.URL.Query().Get("questionId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, h.logger, apperr.ErrInvalidQueryParam)
			return
		}
		seq = &v
	}

	view, err := h.service.GetQuestion(r.Context(), auth.MemberID(r.Context()), seq)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateAnswer handles POST /questions/answers
func (h *QuestionHandler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	a, err := h.service.CreateAnswer(r.Context(), auth.MemberID(r.Context()), req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAnswer handles PATCH /questions/answers
func (h *QuestionHandler) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	a, err := h.service.UpdateAnswer(r.Context(), auth.MemberID(r.Context()), req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// List handles GET /questions/all?pageNo=&order=
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageNo := 0
	if raw := q.Get("pageNo"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, apperr.ErrInvalidQueryParam)
			return
		}
		pageNo = v
	}

	page, err := h.service.ListQuestions(r.Context(), auth.MemberID(r.Context()), pageNo, q.Get("order"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Knock handles POST /questions/knock
func (h *QuestionHandler) Knock(w http.ResponseWriter, r *http.Request) {
	var req knockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.ReceiverID <= 0 || req.QuestionID <= 0 {
		writeError(w, r, h.logger, apperr.ErrInvalidInput)
		return
	}

	if err := h.service.Nudge(r.Context(), auth.MemberID(r.Context()), req.ReceiverID, req.QuestionID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
