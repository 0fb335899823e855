// Package queue carries generation and execution jobs between the API and
// the workers over at-least-once, competing-consumer streams.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Kind identifies one of the two job streams.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindExecution  Kind = "execution"
)

// Message field names.
const (
	FieldProposalID   = "proposal_id"
	FieldRunID        = "run_id"
	FieldPlaceholders = "placeholders"
)

var ErrMalformedMessage = errors.New("queue: malformed message")

// Stream is one durable stream read by one consumer group.
type Stream interface {
	// Publish appends a message. It does not wait for any consumer.
	Publish(ctx context.Context, fields map[string]string) error

	// Fetch blocks up to wait for messages and claims at most max of them for
	// this consumer. A claimed message that is not acked becomes visible to
	// the group again after the stream's ack deadline.
	Fetch(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)
}

// Delivery is a claimed message awaiting acknowledgement.
type Delivery struct {
	ID     string
	Fields map[string]string
	// Attempt counts deliveries of this message to the group, starting at 1.
	Attempt int

	ack func(context.Context) error
	nak func(context.Context, time.Duration) error
}

// NewDelivery wraps a backend message. ack removes it from the group's
// pending set; nak hands it back for redelivery after a delay. Either may be
// nil.
func NewDelivery(id string, attempt int, fields map[string]string, ack func(context.Context) error, nak func(context.Context, time.Duration) error) Delivery {
	if attempt < 1 {
		attempt = 1
	}
	return Delivery{ID: id, Fields: fields, Attempt: attempt, ack: ack, nak: nak}
}

// Redelivered reports whether an earlier delivery of the message was not
// acked.
func (d Delivery) Redelivered() bool {
	return d.Attempt > 1
}

// Ack acknowledges the delivery.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nak returns the message to the group so it is redelivered after delay
// instead of after the ack deadline.
func (d Delivery) Nak(ctx context.Context, delay time.Duration) error {
	if d.nak == nil {
		return nil
	}
	return d.nak(ctx, delay)
}

// GenerationJob is the payload of a generation message.
type GenerationJob struct {
	ProposalID int64
}

func (j GenerationJob) Fields() map[string]string {
	return map[string]string{FieldProposalID: strconv.FormatInt(j.ProposalID, 10)}
}

// ParseGeneration decodes a generation message.
func ParseGeneration(fields map[string]string) (GenerationJob, error) {
	id, err := parseID(fields, FieldProposalID)
	if err != nil {
		return GenerationJob{}, err
	}
	return GenerationJob{ProposalID: id}, nil
}

// ExecutionJob is the payload of an execution message. Placeholders is the
// raw JSON object of placeholder values, decoded by the runner.
type ExecutionJob struct {
	RunID        int64
	Placeholders string
}

func (j ExecutionJob) Fields() map[string]string {
	placeholders := j.Placeholders
	if placeholders == "" {
		placeholders = "{}"
	}
	return map[string]string{
		FieldRunID:        strconv.FormatInt(j.RunID, 10),
		FieldPlaceholders: placeholders,
	}
}

// ParseExecution decodes an execution message.
func ParseExecution(fields map[string]string) (ExecutionJob, error) {
	id, err := parseID(fields, FieldRunID)
	if err != nil {
		return ExecutionJob{}, err
	}
	return ExecutionJob{RunID: id, Placeholders: fields[FieldPlaceholders]}, nil
}

func parseID(fields map[string]string, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedMessage, key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformedMessage, key, raw)
	}
	return id, nil
}

// Publisher appends jobs to the two streams.
type Publisher struct {
	generation Stream
	execution  Stream
}

func NewPublisher(generation, execution Stream) *Publisher {
	return &Publisher{generation: generation, execution: execution}
}

// withTrace adds the caller's trace context to fields so the consuming
// worker continues the same trace.
func withTrace(ctx context.Context, fields map[string]string) map[string]string {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(fields))
	return fields
}

// TraceContext returns ctx carrying the trace context found in fields.
func TraceContext(ctx context.Context, fields map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(fields))
}

// PublishGeneration enqueues plan generation for a proposal.
func (p *Publisher) PublishGeneration(ctx context.Context, proposalID int64) error {
	fields := withTrace(ctx, GenerationJob{ProposalID: proposalID}.Fields())
	if err := p.generation.Publish(ctx, fields); err != nil {
		return fmt.Errorf("failed to publish generation job for proposal %d: %w", proposalID, err)
	}
	return nil
}

// PublishExecution enqueues execution of a run with its placeholder JSON.
func (p *Publisher) PublishExecution(ctx context.Context, runID int64, placeholders string) error {
	job := ExecutionJob{RunID: runID, Placeholders: placeholders}
	if err := p.execution.Publish(ctx, withTrace(ctx, job.Fields())); err != nil {
		return fmt.Errorf("failed to publish execution job for run %d: %w", runID, err)
	}
	return nil
}

// Ping checks that both streams answer. Streams that cannot report their
// backlog are assumed reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	for _, s := range []Stream{p.generation, p.execution} {
		counter, ok := s.(interface {
			Pending(ctx context.Context) (int64, error)
		})
		if !ok {
			continue
		}
		if _, err := counter.Pending(ctx); err != nil {
			return err
		}
	}
	return nil
}
