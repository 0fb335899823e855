// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"testplane/internal/controller/handlers"
	"testplane/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// Routes builds the API mux. metrics may be nil.
func Routes(h *handlers.Handlers, limiter *middleware.RateLimiter, metrics http.Handler) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /test-cases", h.CreateTestCase)
	api.HandleFunc("POST /test-cases/{id}/revisions", h.AddRevision)

	api.HandleFunc("POST /proposals", h.CreateProposal)
	api.HandleFunc("GET /proposals/{id}", h.GetProposal)
	api.HandleFunc("POST /proposals/{id}/ready", h.MarkProposalReady)

	api.HandleFunc("POST /runs", h.CreateRun)
	api.HandleFunc("GET /runs/{id}", h.GetRun)
	api.HandleFunc("GET /runs/{id}/artifacts/{kind}", h.GetArtifact)

	var limited http.Handler = api
	if limiter != nil {
		limited = limiter.Middleware()(api)
	}

	// Probes and metrics are never rate limited.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.Handle("/", limited)

	return middleware.RequestID(mux)
}

// New creates a new controller server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: 10 * time.Second,
			// Artifact downloads stream videos.
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
