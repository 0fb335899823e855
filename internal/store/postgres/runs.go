package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"testplane/internal/store"
)

// CreateRun inserts a queued run for a proposal.
func (s *Store) CreateRun(ctx context.Context, proposalID int64, siteDomain string, params store.RunParams) (*store.TestRun, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	run := &store.TestRun{PlanProposalID: proposalID, SiteDomain: siteDomain, Params: params}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO test_runs (plan_proposal_id, status, site_domain, run_params)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`, proposalID, store.RunStatusQueued, siteDomain, rawParams).Scan(&run.ID, &run.Status, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run for proposal %d: %w", proposalID, err)
	}
	return run, nil
}

// GetRun returns a run by its ID.
func (s *Store) GetRun(ctx context.Context, id int64) (*store.TestRun, error) {
	query := `
		SELECT id, plan_proposal_id, status, run_params, site_domain, result_payload, error,
		       video_name, screenshot_name, video_object_key, screenshot_object_key,
		       created_at, started_at, finished_at
		FROM test_runs WHERE id = $1
	`

	var run store.TestRun
	var params, result []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PlanProposalID, &run.Status, &params, &run.SiteDomain, &result, &run.Error,
		&run.Artifacts.VideoName, &run.Artifacts.ScreenshotName,
		&run.Artifacts.VideoKey, &run.Artifacts.ScreenshotKey,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("run %d: invalid run_params: %w", id, err)
		}
	}
	if len(result) > 0 {
		run.Result = &store.RunResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("run %d: invalid result_payload: %w", id, err)
		}
	}
	return &run, nil
}

// MarkRunRunning moves a queued run to running.
func (s *Store) MarkRunRunning(ctx context.Context, id int64) (bool, error) {
	to := store.RunStatusRunning
	return applied(s.db.ExecContext(ctx, `
		UPDATE test_runs
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, statusList(store.RunSources[to])))
}

// MarkRunPassed stores the result and artifacts of a passing run.
func (s *Store) MarkRunPassed(ctx context.Context, id int64, result store.RunResult, artifacts store.Artifacts) (bool, error) {
	rawResult, err := json.Marshal(result)
	if err != nil {
		return false, err
	}

	to := store.RunStatusPassed
	return applied(s.db.ExecContext(ctx, `
		UPDATE test_runs
		SET status = $2, result_payload = $3, error = NULL,
		    video_name = $4, screenshot_name = $5,
		    video_object_key = $6, screenshot_object_key = $7,
		    finished_at = NOW()
		WHERE id = $1 AND status = ANY($8)
	`, id, to, rawResult,
		artifacts.VideoName, artifacts.ScreenshotName,
		artifacts.VideoKey, artifacts.ScreenshotKey,
		statusList(store.RunSources[to])))
}

// MarkRunFailed records errMsg and finishes the run. A nil result or a nil
// artifact field leaves the stored value untouched.
func (s *Store) MarkRunFailed(ctx context.Context, id int64, errMsg string, result *store.RunResult, artifacts store.Artifacts) (bool, error) {
	var rawResult interface{}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return false, err
		}
		rawResult = b
	}

	to := store.RunStatusFailed
	return applied(s.db.ExecContext(ctx, `
		UPDATE test_runs
		SET status = $2, error = $3,
		    result_payload = COALESCE($4, result_payload),
		    video_name = COALESCE($5, video_name),
		    screenshot_name = COALESCE($6, screenshot_name),
		    video_object_key = COALESCE($7, video_object_key),
		    screenshot_object_key = COALESCE($8, screenshot_object_key),
		    finished_at = NOW()
		WHERE id = $1 AND status = ANY($9)
	`, id, to, errMsg, rawResult,
		artifacts.VideoName, artifacts.ScreenshotName,
		artifacts.VideoKey, artifacts.ScreenshotKey,
		statusList(store.RunSources[to])))
}
