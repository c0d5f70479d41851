package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/medassist/api/internal/platform/httpx"
)

// ReadinessCheck probes one backing dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checks map[string]ReadinessCheck
}

// NewHealthHandlers constructs probe handlers over the named dependency checks.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{checks: map[string]ReadinessCheck{}}
}

// WithCheck registers a named dependency probe.
func (h *HealthHandlers) WithCheck(name string, check ReadinessCheck) *HealthHandlers {
	if check != nil {
		h.checks[name] = check
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz probes every backing dependency with a short deadline.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			statuses[name] = "unavailable"
			ready = false
			continue
		}
		statuses[name] = "ok"
	}

	if !ready {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeServiceUnavailable, "dependencies unavailable").WithDetails(map[string]any{"checks": statuses}))
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{"status": "ready", "checks": statuses})
}
