package store

import (
	"context"
	"time"
)

// Queue defines the table-backed job stream operations.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics so
// that competing consumers never claim the same visible message.
type Queue interface {
	// Enqueue appends a message to the named stream.
	Enqueue(ctx context.Context, tx DBTransaction, stream string, fields map[string]string) (int64, error)

	// DequeueBatch claims up to 'limit' visible messages of a stream and hides
	// them for 'visibility'. Returns nil slice if the stream is empty.
	DequeueBatch(ctx context.Context, stream string, limit int, visibility time.Duration) ([]QueueItem, error)

	// Ack removes a message for good.
	Ack(ctx context.Context, id int64) error

	// Nak makes a claimed message visible again after delay.
	Nak(ctx context.Context, id int64, delay time.Duration) error

	// Count tracks count of messages in a stream.
	Count(ctx context.Context, stream string) (int64, error)
}

// QueueItem represents a claimed message.
type QueueItem struct {
	ID         int64
	Stream     string
	Fields     map[string]string
	Deliveries int
}
