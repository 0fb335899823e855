package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/logger"
	"testplane/internal/observability"
	"testplane/internal/plan"
	"testplane/internal/queue"
	"testplane/internal/render"
	"testplane/internal/runner"
	"testplane/internal/store"
)

// Executor runs a plan in a browser.
type Executor interface {
	Execute(ctx context.Context, p plan.Plan, req runner.Request) (*runner.Result, error)
}

// Uploader moves run artifacts to storage.
type Uploader interface {
	Upload(ctx context.Context, runID int64, videoName, screenshotName string) (artifacts.Uploaded, error)
}

// ExecutionHandler executes the plan of a ready proposal for one run.
type ExecutionHandler struct {
	runs      store.RunStore
	proposals store.ProposalStore
	engine    Executor
	uploader  Uploader
	limits    plan.Limits
	logger    *slog.Logger
	metrics   *observability.WorkerMetrics
}

func NewExecutionHandler(runs store.RunStore, proposals store.ProposalStore, engine Executor, uploader Uploader, limits plan.Limits, logger *slog.Logger, metrics *observability.WorkerMetrics) *ExecutionHandler {
	return &ExecutionHandler{
		runs:      runs,
		proposals: proposals,
		engine:    engine,
		uploader:  uploader,
		limits:    limits,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handle processes one execution message. Only store errors are returned;
// every other failure ends the run as failed. A redelivered message finds
// its run still running and executes it again, so the terminal transition
// is retried.
func (h *ExecutionHandler) Handle(ctx context.Context, d queue.Delivery) error {
	job, err := queue.ParseExecution(d.Fields)
	if err != nil {
		h.logger.Warn("dropping malformed execution message", "message_id", d.ID, "error", err)
		return nil
	}

	ctx = logger.WithRunID(ctx, job.RunID)
	log := logger.FromContext(ctx, h.logger)

	placeholders, err := render.ParsePlaceholders(job.Placeholders)
	if err != nil {
		log.Warn("ignoring malformed placeholders", "error", err)
	}

	run, err := h.runs.GetRun(ctx, job.RunID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("run not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", job.RunID, err)
	}
	if run.Status.IsTerminal() {
		log.Info("run already finished, skipping", "status", run.Status)
		return nil
	}

	baseURL, err := render.NormalizeBaseURL(run.SiteDomain)
	if err != nil {
		return h.fail(ctx, log, run.ID, "invalid_site_domain: "+err.Error(), nil, store.Artifacts{})
	}

	if run.Status == store.RunStatusRunning && d.Redelivered() {
		// An earlier delivery claimed the run and failed before finishing it.
		log.Info("resuming run after redelivery", "attempt", d.Attempt)
	} else {
		applied, err := h.runs.MarkRunRunning(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to mark run %d running: %w", run.ID, err)
		}
		if !applied {
			log.Info("run claimed elsewhere, skipping")
			return nil
		}
	}

	proposal, err := h.proposals.GetProposal(ctx, run.PlanProposalID)
	if errors.Is(err, store.ErrNotFound) {
		return h.fail(ctx, log, run.ID, "plan_proposal not found", nil, store.Artifacts{})
	}
	if err != nil {
		return fmt.Errorf("failed to load proposal %d: %w", run.PlanProposalID, err)
	}

	var stored plan.Plan
	if err := json.Unmarshal(proposal.ResultPayload, &stored); err != nil {
		return h.fail(ctx, log, run.ID, "invalid_plan_payload: "+err.Error(), nil, store.Artifacts{})
	}
	rendered, err := render.Render(stored, placeholders)
	if err != nil {
		return h.fail(ctx, log, run.ID, "params_substitution_error: "+err.Error(), nil, store.Artifacts{})
	}
	validated, err := plan.Validate(rendered, h.limits)
	if err != nil {
		return h.fail(ctx, log, run.ID, "invalid_plan_payload: "+err.Error(), nil, store.Artifacts{})
	}

	req := runner.Request{
		RunID:    run.ID,
		BaseURL:  baseURL,
		Browser:  run.Params.Browser,
		Headless: run.Params.Headless,
		Timeout:  time.Duration(run.Params.TimeoutMS) * time.Millisecond,
	}
	res, execErr := h.engine.Execute(ctx, validated, req)
	if res == nil {
		msg := "execution_failed"
		if execErr != nil {
			msg += ": " + execErr.Error()
		}
		return h.fail(ctx, log, run.ID, msg, nil, store.Artifacts{})
	}

	uploaded, err := h.uploader.Upload(ctx, run.ID, res.VideoName, res.ScreenshotName)
	if err != nil {
		log.Warn("artifact upload failed", "error", err)
	}
	arts := store.Artifacts{
		VideoName:      optional(res.VideoName),
		ScreenshotName: optional(res.ScreenshotName),
		VideoKey:       uploaded.VideoKey,
		ScreenshotKey:  uploaded.ScreenshotKey,
	}
	result := res.RunResult()

	if execErr != nil {
		cause := execErr
		var failed *runner.ExecutionFailedError
		if errors.As(execErr, &failed) {
			cause = failed.Err
		}
		return h.fail(ctx, log, run.ID, "execution_failed: "+cause.Error(), &result, arts)
	}

	if _, err := h.runs.MarkRunPassed(ctx, run.ID, result, arts); err != nil {
		return fmt.Errorf("failed to mark run %d passed: %w", run.ID, err)
	}
	h.metrics.RunFinished(ctx, string(store.RunStatusPassed))
	log.Info("run passed", "final_url", result.FinalURL, "steps", len(result.ExecutedSteps))
	return nil
}

func (h *ExecutionHandler) fail(ctx context.Context, log *slog.Logger, id int64, msg string, result *store.RunResult, arts store.Artifacts) error {
	log.Warn("run failed", "error", msg)
	if _, err := h.runs.MarkRunFailed(ctx, id, msg, result, arts); err != nil {
		return fmt.Errorf("failed to mark run %d failed: %w", id, err)
	}
	h.metrics.RunFinished(ctx, string(store.RunStatusFailed))
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
