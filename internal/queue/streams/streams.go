// Package streams opens the generation and execution streams on the
// configured queue backend.
package streams

import (
	"context"
	"fmt"
	"log/slog"

	"testplane/internal/config"
	"testplane/internal/queue"
	"testplane/internal/store/postgres"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Set holds both job streams of one process.
type Set struct {
	Generation queue.Stream
	Execution  queue.Stream
	closeFn    func()
}

// Open connects to cfg.QueueBackend. pg is only used by the postgres backend.
func Open(ctx context.Context, cfg *config.Config, pg *postgres.Store, clientName string) (*Set, error) {
	switch cfg.QueueBackend {
	case config.QueueNATS:
		nc, js, err := queue.Connect(cfg.NATSURL, clientName)
		if err != nil {
			return nil, err
		}
		gen, err := queue.NewJetStream(ctx, js, queue.JetStreamConfig{
			Stream:   cfg.GenerationStream,
			Subject:  cfg.GenerationSubject,
			Consumer: cfg.GenerationConsumer,
			AckWait:  cfg.QueueAckWait,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
		exec, err := queue.NewJetStream(ctx, js, queue.JetStreamConfig{
			Stream:   cfg.ExecutionStream,
			Subject:  cfg.ExecutionSubject,
			Consumer: cfg.ExecutionConsumer,
			AckWait:  cfg.QueueAckWait,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
		return &Set{Generation: gen, Execution: exec, closeFn: func() { _ = nc.Drain() }}, nil

	case config.QueuePostgres:
		if pg == nil {
			return nil, fmt.Errorf("queue backend %q needs a database", cfg.QueueBackend)
		}
		return &Set{
			Generation: pg.Stream(cfg.GenerationStream, cfg.QueueAckWait),
			Execution:  pg.Stream(cfg.ExecutionStream, cfg.QueueAckWait),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", cfg.QueueBackend)
	}
}

// Stream returns the stream of kind.
func (s *Set) Stream(kind queue.Kind) queue.Stream {
	if kind == queue.KindExecution {
		return s.Execution
	}
	return s.Generation
}

// Publisher publishes onto both streams.
func (s *Set) Publisher() *queue.Publisher {
	return queue.NewPublisher(s.Generation, s.Execution)
}

// Close releases the backend connection.
func (s *Set) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

type pendingCounter interface {
	Pending(ctx context.Context) (int64, error)
}

// RegisterDepthGauge reports the backlog of both streams as
// testplane.queue.depth, queried only when scraped.
func (s *Set) RegisterDepthGauge(meter metric.Meter, logger *slog.Logger) error {
	_, err := meter.Int64ObservableGauge("testplane.queue.depth",
		metric.WithDescription("Messages not yet acknowledged per stream"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			for _, kind := range []queue.Kind{queue.KindGeneration, queue.KindExecution} {
				counter, ok := s.Stream(kind).(pendingCounter)
				if !ok {
					continue
				}
				n, err := counter.Pending(ctx)
				if err != nil {
					logger.Warn("failed to count queue depth", "stream", kind, "error", err)
					continue // Don't fail the scrape on a backend error
				}
				obs.Observe(n, metric.WithAttributes(attribute.String("stream", string(kind))))
			}
			return nil
		}),
	)
	return err
}
