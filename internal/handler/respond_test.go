package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/dailyquestion/internal/apperr"
)

func TestWriteErrorMapsKinds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{apperr.ErrProgressNotFound, http.StatusNotFound, "PROGRESS_NOT_FOUND", "family progress not found"},
		{fmt.Errorf("create: %w", apperr.ErrDuplicateAnswer), http.StatusConflict, "ALREADY_EXIST_QUESTION_ANSWER", "member already answered this question"},
		{apperr.ErrInvalidQueryParam, http.StatusBadRequest, "INVALID_QUERY_PARAM", "invalid query parameter"},
		{apperr.Upstream("family service", errors.New("dial tcp")), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "family service"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL", "internal error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/questions", nil), logger, tt.err)

		if rec.Code != tt.wantStatus {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.wantStatus)
		}
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != tt.wantCode {
			t.Errorf("%v: code = %q, want %q", tt.err, body.Code, tt.wantCode)
		}
		if body.Error != tt.wantMsg {
			t.Errorf("%v: error = %q, want %q", tt.err, body.Error, tt.wantMsg)
		}
	}
}

func TestDecodeJSONRejectsMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/questions/answers", strings.NewReader(`{"content":`))
	var v answerRequest
	err := decodeJSON(httptest.NewRecorder(), req, &v)
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("kind = %q, want %q", apperr.KindOf(err), apperr.KindInvalidInput)
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	big := `{"content":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/questions/answers", strings.NewReader(big))
	var v answerRequest
	if err := decodeJSON(httptest.NewRecorder(), req, &v); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestParseIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/client/families/7/progress", nil)
	req.SetPathValue("familyId", "7")
	id, err := parseIDParam(req, "familyId")
	if err != nil || id != 7 {
		t.Errorf("parseIDParam = %d, %v; want 7, nil", id, err)
	}

	req.SetPathValue("familyId", "0")
	if _, err := parseIDParam(req, "familyId"); err == nil {
		t.Error("expected error for zero id")
	}
}
