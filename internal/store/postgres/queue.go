package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"testplane/internal/queue"
	"testplane/internal/store"

	"github.com/lib/pq"
)

// Default visibility policy
const (
	VisibilityTimeout = 10 * time.Minute
	PollInterval      = 500 * time.Millisecond
)

var _ store.Queue = (*Store)(nil)

// Enqueue appends a message to the job_queue table.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, stream string, fields map[string]string) (int64, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.getExecutor(tx).QueryRowContext(ctx, `
		INSERT INTO job_queue (stream, fields)
		VALUES ($1, $2)
		RETURNING id
	`, stream, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue to %s: %w", stream, err)
	}
	return id, nil
}

// DequeueBatch claims up to 'limit' visible messages atomically using SELECT ... FOR UPDATE SKIP LOCKED.
// Claimed messages stay in the table, hidden until the visibility timeout
// passes; Ack deletes them. Returns nil slice if no messages are available.
func (s *Store) DequeueBatch(ctx context.Context, stream string, limit int, visibility time.Duration) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}
	if visibility <= 0 {
		visibility = VisibilityTimeout
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, fields, deliveries
		FROM job_queue
		WHERE stream = $1 AND visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.QueueItem
	var ids []int64
	for rows.Next() {
		item := store.QueueItem{Stream: stream}
		var payload []byte
		if err := rows.Scan(&item.ID, &payload, &item.Deliveries); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		if err := json.Unmarshal(payload, &item.Fields); err != nil {
			return nil, fmt.Errorf("message %d: invalid fields: %w", item.ID, err)
		}
		item.Deliveries++
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), deliveries = deliveries + 1
		WHERE id = ANY($2)
	`, visibility.Seconds(), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("batch visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// Ack removes a message from the queue.
func (s *Store) Ack(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM job_queue WHERE id = $1", id)
	return err
}

// Nak makes a claimed message visible again after delay.
func (s *Store) Nak(ctx context.Context, id int64, delay time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE job_queue SET visible_after = NOW() + ($1 * INTERVAL '1 second') WHERE id = $2",
		delay.Seconds(), id,
	)
	return err
}

// Count returns the number of messages in a stream, claimed or not.
func (s *Store) Count(ctx context.Context, stream string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_queue WHERE stream = $1", stream).Scan(&n)
	return n, err
}

// Stream is a queue.Stream over one named stream of the job_queue table.
// All consumers of the same name form one group.
type Stream struct {
	store        *Store
	name         string
	visibility   time.Duration
	pollInterval time.Duration
}

var _ queue.Stream = (*Stream)(nil)

// Stream returns the table-backed stream called name. Unacked messages become
// visible to the group again after visibility.
func (s *Store) Stream(name string, visibility time.Duration) *Stream {
	return &Stream{store: s, name: name, visibility: visibility, pollInterval: PollInterval}
}

// Pending counts the stream's messages, claimed or not.
func (q *Stream) Pending(ctx context.Context) (int64, error) {
	return q.store.Count(ctx, q.name)
}

func (q *Stream) Publish(ctx context.Context, fields map[string]string) error {
	_, err := q.store.Enqueue(ctx, nil, q.name, fields)
	return err
}

// Fetch polls until at least one message is claimed or wait elapses.
func (q *Stream) Fetch(ctx context.Context, max int, wait time.Duration) ([]queue.Delivery, error) {
	deadline := time.Now().Add(wait)
	for {
		items, err := q.store.DequeueBatch(ctx, q.name, max, q.visibility)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			out := make([]queue.Delivery, 0, len(items))
			for _, item := range items {
				id := item.ID
				out = append(out, queue.NewDelivery(strconv.FormatInt(id, 10), item.Deliveries, item.Fields,
					func(ctx context.Context) error { return q.store.Ack(ctx, id) },
					func(ctx context.Context, delay time.Duration) error { return q.store.Nak(ctx, id, delay) },
				))
			}
			return out, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(q.pollInterval, remaining)):
		}
	}
}
