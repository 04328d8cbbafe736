// Package apperr defines the error taxonomy shared by the progression engine
// and its HTTP surface.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers that only care about the category.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidInput        Kind = "invalid_input"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a domain error with the same kind and code as base that wraps cause.
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Cause: cause}
}

// Upstream wraps a collaborator failure as UpstreamUnavailable.
func Upstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Code: ErrUpstreamUnavailable.Code, Message: message, Cause: cause}
}

var (
	ErrProgressNotFound    = New(KindNotFound, "PROGRESS_NOT_FOUND", "family progress not found")
	ErrQuestionNotFound    = New(KindNotFound, "QUESTION_NOT_FOUND", "question not found")
	ErrAnswerNotFound      = New(KindNotFound, "ANSWER_NOT_FOUND", "answer not found")
	ErrMemberNotFound      = New(KindNotFound, "MEMBER_NOT_FOUND", "family member not found")
	ErrRunNotFound         = New(KindNotFound, "RUN_NOT_FOUND", "progression run not found")
	ErrAlreadyInitialized  = New(KindConflict, "ALREADY_INITIALIZED", "family progress already initialized")
	ErrDuplicateAnswer     = New(KindConflict, "ALREADY_EXIST_QUESTION_ANSWER", "member already answered this question")
	ErrAdvanceConflict     = New(KindConflict, "ADVANCE_CONFLICT", "family progress changed concurrently")
	ErrInvalidQueryParam   = New(KindInvalidInput, "INVALID_QUERY_PARAM", "invalid query parameter")
	ErrInvalidInput        = New(KindInvalidInput, "INVALID_INPUT", "invalid input")
	ErrUpstreamUnavailable = New(KindUpstreamUnavailable, "UPSTREAM_UNAVAILABLE", "upstream service unavailable")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// HTTPStatus maps an error to the status code the HTTP surface answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
