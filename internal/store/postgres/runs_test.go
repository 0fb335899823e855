package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"testplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

var runColumns = []string{
	"id", "plan_proposal_id", "status", "run_params", "site_domain", "result_payload", "error",
	"video_name", "screenshot_name", "video_object_key", "screenshot_object_key",
	"created_at", "started_at", "finished_at",
}

func strPtr(s string) *string { return &s }

func TestCreateRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	params := store.RunParams{Browser: "chromium", Headless: true, TimeoutMS: 5000}
	mock.ExpectQuery(`INSERT INTO test_runs`).
		WithArgs(int64(2), store.RunStatusQueued, "https://example.com",
			[]byte(`{"browser":"chromium","headless":true,"timeout_ms":5000}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}).AddRow(int64(11), "queued", time.Now()))

	run, err := s.CreateRun(context.Background(), 2, "https://example.com", params)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != 11 || run.Status != store.RunStatusQueued {
		t.Errorf("unexpected run: %+v", run)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, plan_proposal_id, status, run_params`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(runColumns).AddRow(
			int64(11), int64(2), "failed",
			[]byte(`{"browser":"firefox","headless":false,"timeout_ms":1000}`),
			"https://example.com",
			[]byte(`{"final_url":"https://example.com/login","executed_steps":["await page.goto('/login')"],"executed_assertions":[]}`),
			"execution_failed: timeout",
			"v.webm", "s.png", nil, "screenshots/11/s.png",
			now, now, now,
		))

	run, err := s.GetRun(context.Background(), 11)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Params.Browser != "firefox" || run.Params.Headless || run.Params.TimeoutMS != 1000 {
		t.Errorf("unexpected params: %+v", run.Params)
	}
	if run.Result == nil || run.Result.FinalURL != "https://example.com/login" {
		t.Errorf("unexpected result: %+v", run.Result)
	}
	if run.Artifacts.VideoKey != nil {
		t.Errorf("expected nil video key, got %q", *run.Artifacts.VideoKey)
	}
	if run.Artifacts.ScreenshotKey == nil || *run.Artifacts.ScreenshotKey != "screenshots/11/s.png" {
		t.Errorf("unexpected screenshot key: %v", run.Artifacts.ScreenshotKey)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, plan_proposal_id`).WillReturnError(sql.ErrNoRows)

	if _, err := s.GetRun(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMarkRunRunning_OnlyOneWins(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// The first conditional update moves the row; the second finds it no
	// longer queued.
	mock.ExpectExec(`UPDATE test_runs\s+SET status = \$2, started_at = NOW\(\)\s+WHERE id = \$1 AND status = ANY\(\$3\)`).
		WithArgs(int64(11), store.RunStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE test_runs\s+SET status = \$2, started_at = NOW\(\)`).
		WithArgs(int64(11), store.RunStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.MarkRunRunning(context.Background(), 11)
	if err != nil {
		t.Fatalf("first MarkRunRunning failed: %v", err)
	}
	second, err := s.MarkRunRunning(context.Background(), 11)
	if err != nil {
		t.Fatalf("second MarkRunRunning failed: %v", err)
	}
	if !first || second {
		t.Errorf("got first=%v second=%v, want true/false", first, second)
	}
}

func TestMarkRunPassed(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	result := store.RunResult{
		FinalURL:           "https://example.com/home",
		ExecutedSteps:      []string{"await page.goto('/')"},
		ExecutedAssertions: []string{},
	}
	artifacts := store.Artifacts{VideoName: strPtr("v.webm"), VideoKey: strPtr("videos/11/v.webm")}

	mock.ExpectExec(`UPDATE test_runs\s+SET status = \$2, result_payload = \$3`).
		WithArgs(int64(11), store.RunStatusPassed,
			[]byte(`{"final_url":"https://example.com/home","executed_steps":["await page.goto('/')"],"executed_assertions":[]}`),
			"v.webm", nil, "videos/11/v.webm", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.MarkRunPassed(context.Background(), 11, result, artifacts)
	if err != nil || !ok {
		t.Fatalf("MarkRunPassed = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMarkRunFailed_WithoutResult(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE test_runs\s+SET status = \$2, error = \$3`).
		WithArgs(int64(11), store.RunStatusFailed, "invalid_site_domain: empty", nil, nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.MarkRunFailed(context.Background(), 11, "invalid_site_domain: empty", nil, store.Artifacts{})
	if err != nil || !ok {
		t.Fatalf("MarkRunFailed = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
