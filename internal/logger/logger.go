// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type (
	requestIDKey  struct{}
	runIDKey      struct{}
	proposalIDKey struct{}
)

// ParseLevel maps a configured level name onto slog. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new structured JSON logger writing to stdout.
func New(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID tags ctx with the test run being processed.
func WithRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// WithProposalID tags ctx with the plan proposal being processed.
func WithProposalID(ctx context.Context, proposalID int64) context.Context {
	return context.WithValue(ctx, proposalIDKey{}, proposalID)
}

// FromContext returns base with the correlation fields found in ctx attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	var attrs []any
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	if id, ok := ctx.Value(runIDKey{}).(int64); ok {
		attrs = append(attrs, "run_id", id)
	}
	if id, ok := ctx.Value(proposalIDKey{}).(int64); ok {
		attrs = append(attrs, "proposal_id", id)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
