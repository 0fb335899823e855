package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WorkerMetrics are the counters a worker records per handled message.
type WorkerMetrics struct {
	handled      metric.Int64Counter
	failed       metric.Int64Counter
	runsFinished metric.Int64Counter
}

// NewWorkerMetrics registers the worker instruments on the global meter
// provider. It must run after InitMetrics to be exported.
func NewWorkerMetrics() (*WorkerMetrics, error) {
	meter := otel.Meter("testplane/worker")

	handled, err := meter.Int64Counter("testplane.messages.handled",
		metric.WithDescription("Queue messages handled successfully"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("testplane.messages.failed",
		metric.WithDescription("Queue messages whose handler returned an error or panicked"))
	if err != nil {
		return nil, err
	}
	runsFinished, err := meter.Int64Counter("testplane.runs.finished",
		metric.WithDescription("Test runs that reached a terminal status"))
	if err != nil {
		return nil, err
	}
	return &WorkerMetrics{handled: handled, failed: failed, runsFinished: runsFinished}, nil
}

// MessageHandled counts one message of kind, successful or not.
func (m *WorkerMetrics) MessageHandled(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if err != nil {
		m.failed.Add(ctx, 1, attrs)
		return
	}
	m.handled.Add(ctx, 1, attrs)
}

// RunFinished counts a run that reached status.
func (m *WorkerMetrics) RunFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
