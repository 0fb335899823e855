// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/logger"
	"testplane/internal/store"
	"testplane/pkg/api"
)

// Store combines the persistence the controller needs.
type Store interface {
	Ping(ctx context.Context) error
	store.TestCaseStore
	store.ProposalStore
	store.RunStore
}

// Publisher enqueues background work.
type Publisher interface {
	PublishGeneration(ctx context.Context, proposalID int64) error
	PublishExecution(ctx context.Context, runID int64, placeholders string) error
}

// ArtifactLocator resolves run artifacts for download.
type ArtifactLocator interface {
	Locate(ctx context.Context, kind artifacts.Kind, runID int64, name string, storedKey *string) (artifacts.Location, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     Store
	publisher Publisher
	artifacts ArtifactLocator
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(s Store, p Publisher, a ArtifactLocator, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: s, publisher: p, artifacts: a, logger: log}
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), h.logger)
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
