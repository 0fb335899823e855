package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultAckWait is how long a fetched message stays claimed before it is
// redelivered to the group. It must outlast a full browser run.
const DefaultAckWait = 10 * time.Minute

// JetStreamConfig names the stream, subject and durable consumer of one kind.
type JetStreamConfig struct {
	Stream   string
	Subject  string
	Consumer string
	AckWait  time.Duration
}

// JetStreamStream is a Stream backed by a work-queue JetStream stream with a
// single durable pull consumer acting as the consumer group.
type JetStreamStream struct {
	js       jetstream.JetStream
	subject  string
	consumer jetstream.Consumer
}

// Connect opens a NATS connection and its JetStream context.
func Connect(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// NewJetStream creates or updates the stream and its durable consumer.
func NewJetStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) (*JetStreamStream, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = DefaultAckWait
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		// Failed messages retry until acked; there is no dead-letter stream.
		MaxDeliver: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Consumer, err)
	}

	return &JetStreamStream{js: js, subject: cfg.Subject, consumer: consumer}, nil
}

func (s *JetStreamStream) Publish(ctx context.Context, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if _, err := s.js.Publish(ctx, s.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", s.subject, err)
	}
	return nil
}

func (s *JetStreamStream) Fetch(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}

	var batch jetstream.MessageBatch
	var err error
	if wait > 0 {
		batch, err = s.consumer.Fetch(max, jetstream.FetchMaxWait(wait))
	} else {
		batch, err = s.consumer.FetchNoWait(max)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch from %s: %w", s.subject, err)
	}

	var out []Delivery
	for msg := range batch.Messages() {
		var fields map[string]string
		if err := json.Unmarshal(msg.Data(), &fields); err != nil {
			// Not a job message at all; drop it so it cannot block the group.
			_ = msg.Term()
			continue
		}
		id, attempt := messageMeta(msg)
		out = append(out, NewDelivery(id, attempt, fields,
			func(ctx context.Context) error { return msg.DoubleAck(ctx) },
			func(_ context.Context, delay time.Duration) error { return msg.NakWithDelay(delay) },
		))
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return out, fmt.Errorf("fetch from %s: %w", s.subject, err)
	}
	return out, nil
}

func messageMeta(msg jetstream.Msg) (string, int) {
	meta, err := msg.Metadata()
	if err != nil {
		return "", 1
	}
	return strconv.FormatUint(meta.Sequence.Stream, 10), int(meta.NumDelivered)
}
