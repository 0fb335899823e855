package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestEnqueue_Success(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	fields := map[string]string{"proposal_id": "7"}

	mock.ExpectQuery(`INSERT INTO job_queue`).
		WithArgs("llm_jobs", []byte(`{"proposal_id":"7"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.Enqueue(context.Background(), nil, "llm_jobs", fields)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id != 42 {
		t.Errorf("got id %d, want 42", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueue_Error(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectQuery(`INSERT INTO job_queue`).WillReturnError(sql.ErrConnDone)

	if _, err := store.Enqueue(context.Background(), nil, "llm_jobs", nil); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestDequeueBatch_Success(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, fields, deliveries\s+FROM job_queue\s+WHERE stream = \$1 AND visible_after <= NOW\(\)\s+ORDER BY created_at ASC\s+FOR UPDATE SKIP LOCKED`).
		WithArgs("test_run_jobs", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "deliveries"}).
			AddRow(int64(1), []byte(`{"run_id":"10","placeholders":"{}"}`), 0).
			AddRow(int64(2), []byte(`{"run_id":"11","placeholders":"{}"}`), 3))
	mock.ExpectExec(`UPDATE job_queue\s+SET visible_after = NOW\(\) \+ \(\$1 \* INTERVAL '1 second'\)`).
		WithArgs(float64(60), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	items, err := store.DequeueBatch(context.Background(), "test_run_jobs", 2, time.Minute)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Fields["run_id"] != "10" {
		t.Errorf("got run_id %q, want 10", items[0].Fields["run_id"])
	}
	if items[1].Deliveries != 4 {
		t.Errorf("got deliveries %d, want 4", items[1].Deliveries)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDequeueBatch_Empty(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, fields, deliveries`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "deliveries"}))
	mock.ExpectRollback()

	items, err := store.DequeueBatch(context.Background(), "llm_jobs", 1, 0)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}
	if items != nil {
		t.Errorf("expected nil items, got %v", items)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStreamFetch_AckDeletesRow(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, fields, deliveries`).
		WithArgs("llm_jobs", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "deliveries"}).
			AddRow(int64(5), []byte(`{"proposal_id":"3"}`), 0))
	mock.ExpectExec(`UPDATE job_queue`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM job_queue WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stream := store.Stream("llm_jobs", time.Minute)
	deliveries, err := stream.Fetch(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].ID != "5" {
		t.Errorf("got id %q, want 5", deliveries[0].ID)
	}
	if err := deliveries[0].Ack(context.Background()); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStreamFetch_NakDelaysRedelivery(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, fields, deliveries`).
		WithArgs("runner_jobs", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "deliveries"}).
			AddRow(int64(8), []byte(`{"run_id":"4"}`), 2))
	mock.ExpectExec(`UPDATE job_queue`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE job_queue SET visible_after = NOW\(\) \+ \(\$1 \* INTERVAL '1 second'\) WHERE id = \$2`).
		WithArgs(float64(3), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stream := store.Stream("runner_jobs", time.Minute)
	deliveries, err := stream.Fetch(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}

	// Two earlier claims were never acked.
	d := deliveries[0]
	if d.Attempt != 3 || !d.Redelivered() {
		t.Errorf("got attempt %d, want 3", d.Attempt)
	}
	if err := d.Nak(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("Nak failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStreamFetch_PollsUntilWaitElapses(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, fields, deliveries`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "fields", "deliveries"}))
		mock.ExpectRollback()
	}

	stream := store.Stream("llm_jobs", time.Minute)
	stream.pollInterval = 100 * time.Millisecond

	// One claim attempt, one sleep for the rest of wait, one last attempt.
	deliveries, err := stream.Fetch(context.Background(), 1, 40*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(deliveries) != 0 {
		t.Errorf("expected no deliveries, got %d", len(deliveries))
	}
}

func TestCount(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM job_queue WHERE stream = \$1`).
		WithArgs("llm_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))

	n, err := store.Count(context.Background(), "llm_jobs")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 9 {
		t.Errorf("got %d, want 9", n)
	}
}
