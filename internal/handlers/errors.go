package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
	"github.com/hanko-field/orderdesk/internal/services"
)

const (
	conflictRetryAfter = time.Second
	storageRetryAfter  = 5 * time.Second
)

// writeServiceError maps the domain error taxonomy onto HTTP statuses. State errors carry their
// machine reason in the body.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, domain.ErrState):
		reason, _ := domain.StateReasonOf(err)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict).
			WithReason(string(reason)))
	case errors.Is(err, services.ErrNotifierUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("documents_unavailable", "invoice documents are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	case errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("cancelled", "request cancelled", 499))
	case errors.Is(err, domain.ErrDatabase) && services.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "the resource was modified concurrently; retry the request", http.StatusConflict).
			WithRetryAfter(conflictRetryAfter))
	case errors.Is(err, domain.ErrDatabase):
		requestctx.Logger(ctx).Error("storage failure", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage is temporarily unavailable", http.StatusServiceUnavailable).
			WithRetryAfter(storageRetryAfter))
	default:
		requestctx.Logger(ctx).Error("unhandled error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
