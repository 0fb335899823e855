// Package worker consumes generation and execution jobs from the queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"testplane/internal/observability"
	"testplane/internal/queue"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one delivery. A nil return acks the message; an error
// naks it so the stream redelivers it after the agent's error backoff.
type Handler interface {
	Handle(ctx context.Context, d queue.Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d queue.Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d queue.Delivery) error { return f(ctx, d) }

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID   string
	Kind queue.Kind

	BatchSize int
	// BlockTimeout bounds how long one Fetch waits for messages.
	BlockTimeout time.Duration
	// ErrorBackoff is slept after a handler error or panic, and is the
	// redelivery delay of the failed message.
	ErrorBackoff time.Duration
	// PollInterval is the first backoff after a fetch error; it doubles up to
	// MaxBackoff and resets on the next successful fetch.
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// Agent runs the pull loop of one worker process. Messages are handled one
// at a time, in fetch order.
type Agent struct {
	stream  queue.Stream
	handler Handler
	config  AgentConfig
	logger  *slog.Logger
	metrics *observability.WorkerMetrics
	tracer  trace.Tracer
	done    chan struct{}
}

// New creates a new worker agent. metrics may be nil.
func New(stream queue.Stream, handler Handler, config AgentConfig, logger *slog.Logger, metrics *observability.WorkerMetrics) *Agent {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = 5 * time.Second
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 2 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		stream:  stream,
		handler: handler,
		config:  config,
		logger:  logger.With("worker_id", config.ID, "kind", string(config.Kind)),
		metrics: metrics,
		tracer:  otel.Tracer("testplane/worker"),
		done:    make(chan struct{}),
	}
}

// Run starts the pull loop and blocks until ctx is cancelled. On
// cancellation the message in flight is finished; the rest of its batch is
// left unacked for redelivery.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)
	a.logger.Info("worker agent starting", "batch_size", a.config.BatchSize)

	backoff := a.config.PollInterval
	for {
		if ctx.Err() != nil {
			a.logger.Info("worker agent stopping")
			return ctx.Err()
		}

		deliveries, err := a.stream.Fetch(ctx, a.config.BatchSize, a.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			a.logger.Error("fetch failed", "error", err, "retry_in", backoff)
			sleep(ctx, backoff)
			backoff = min(backoff*2, a.config.MaxBackoff)
			continue
		}
		backoff = a.config.PollInterval

		for _, d := range deliveries {
			if ctx.Err() != nil {
				break
			}
			if err := a.process(ctx, d); err != nil {
				a.logger.Error("message handling failed", "message_id", d.ID, "attempt", d.Attempt, "error", err)
				if err := d.Nak(context.WithoutCancel(ctx), a.config.ErrorBackoff); err != nil {
					a.logger.Warn("nak failed", "message_id", d.ID, "error", err)
				}
				sleep(ctx, a.config.ErrorBackoff)
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// process handles and acks one delivery. The handler runs on a context that
// survives shutdown so a started run is always recorded.
func (a *Agent) process(ctx context.Context, d queue.Delivery) (err error) {
	handleCtx := queue.TraceContext(context.WithoutCancel(ctx), d.Fields)
	handleCtx, span := a.tracer.Start(handleCtx, "worker.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", d.ID),
			attribute.String("queue.kind", string(a.config.Kind)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			a.logger.Error("handler panicked", "message_id", d.ID, "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		a.metrics.MessageHandled(handleCtx, string(a.config.Kind), err)
	}()

	if err := a.handler.Handle(handleCtx, d); err != nil {
		return err
	}
	if err := d.Ack(handleCtx); err != nil {
		// The work is done; a redelivery is absorbed by the status guards.
		a.logger.Warn("ack failed", "message_id", d.ID, "error", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
