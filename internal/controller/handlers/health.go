package handlers

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type readinessCheck struct {
	name string
	dep  pinger
	msg  string
}

// Healthz is a liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz reports ready once the database answers and, when the publisher
// can be pinged, the queue backend does too.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := []readinessCheck{{name: "database", dep: h.store, msg: "Database unavailable"}}
	if p, ok := h.publisher.(pinger); ok {
		checks = append(checks, readinessCheck{name: "queue", dep: p, msg: "Queue unavailable"})
	}

	for _, c := range checks {
		if err := c.dep.Ping(ctx); err != nil {
			h.log(r).Warn("readiness check failed", "check", c.name, "error", err)
			h.httpError(w, c.msg, http.StatusServiceUnavailable)
			return
		}
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
