package handlers

import (
	"net/http"
	"time"

	"github.com/hanko-field/orderdesk/internal/platform/health"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checker *health.Checker
	started time.Time
	clock   func() time.Time
}

// NewHealthHandlers constructs the probe handlers. A nil checker makes /readyz always ready.
func NewHealthHandlers(checker *health.Checker, clock func() time.Time) *HealthHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &HealthHandlers{checker: checker, started: clock(), clock: clock}
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    health.StatusOK,
		"uptime":    h.clock().Sub(h.started).Round(time.Second).String(),
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}

// Readyz runs dependency probes. Degraded dependencies still report ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		httpx.WriteJSON(w, http.StatusOK, health.Report{Status: health.StatusOK, GeneratedAt: h.clock().UTC()})
		return
	}
	report := h.checker.Collect(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, report)
}
