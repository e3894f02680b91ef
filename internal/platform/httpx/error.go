package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is an API failure. Reason carries the machine readable cause of a rejected order or
// invoice transition; RetryAfter marks failures the client may retry as they are.
type Error struct {
	Code       string
	Message    string
	Status     int
	Reason     string
	RetryAfter time.Duration
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError constructs an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLen),
		Message: clean(message, maxMessageLen),
		Status:  status,
	}
}

// WithReason attaches the state transition reason.
func (e Error) WithReason(reason string) Error {
	e.Reason = clean(reason, maxCodeLen)
	return e
}

// WithRetryAfter advertises when the client may try again.
func (e Error) WithRetryAfter(d time.Duration) Error {
	e.RetryAfter = d
	return e
}

// WriteError writes err as the JSON error envelope, stamped with the request and trace ids.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if err.RetryAfter > 0 {
		seconds := int((err.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	WriteJSON(w, status, errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		Reason:    err.Reason,
		RequestID: clean(middleware.GetReqID(ctx), maxIDLen),
		TraceID:   clean(requestctx.TraceID(ctx), maxIDLen),
	})
}

// clean folds control characters and runs of whitespace into single spaces and truncates to
// limit bytes without splitting a rune.
func clean(value string, limit int) string {
	value = strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
