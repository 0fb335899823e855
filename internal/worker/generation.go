package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"testplane/internal/llm"
	"testplane/internal/logger"
	"testplane/internal/plan"
	"testplane/internal/queue"
	"testplane/internal/store"
)

// RevisionGetter loads test case revisions.
type RevisionGetter interface {
	GetRevision(ctx context.Context, id int64) (*store.TestCaseRevision, error)
}

// GenerationHandler turns a proposal's revision text into a validated plan.
type GenerationHandler struct {
	proposals store.ProposalStore
	revisions RevisionGetter
	generator llm.Generator
	limits    plan.Limits
	logger    *slog.Logger
}

func NewGenerationHandler(proposals store.ProposalStore, revisions RevisionGetter, generator llm.Generator, limits plan.Limits, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		proposals: proposals,
		revisions: revisions,
		generator: generator,
		limits:    limits,
		logger:    logger,
	}
}

// Handle processes one generation message. Only store errors are returned;
// generation and validation failures are recorded on the proposal. A
// redelivered message finds its proposal still running and generates again.
func (h *GenerationHandler) Handle(ctx context.Context, d queue.Delivery) error {
	job, err := queue.ParseGeneration(d.Fields)
	if err != nil {
		h.logger.Warn("dropping malformed generation message", "message_id", d.ID, "error", err)
		return nil
	}

	ctx = logger.WithProposalID(ctx, job.ProposalID)
	log := logger.FromContext(ctx, h.logger)

	proposal, err := h.proposals.GetProposal(ctx, job.ProposalID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("proposal not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load proposal %d: %w", job.ProposalID, err)
	}
	if proposal.Status.IsTerminal() {
		log.Info("proposal already finished, skipping", "status", proposal.Status)
		return nil
	}

	if proposal.Status == store.ProposalStatusRunning && d.Redelivered() {
		// An earlier delivery claimed the proposal and failed before finishing it.
		log.Info("resuming proposal after redelivery", "attempt", d.Attempt)
	} else {
		applied, err := h.proposals.MarkProposalRunning(ctx, proposal.ID)
		if err != nil {
			return fmt.Errorf("failed to mark proposal %d running: %w", proposal.ID, err)
		}
		if !applied {
			log.Info("proposal claimed elsewhere, skipping")
			return nil
		}
	}

	revision, err := h.revisions.GetRevision(ctx, proposal.RevisionID)
	if errors.Is(err, store.ErrNotFound) {
		return h.fail(ctx, log, proposal.ID, "test_case_revision not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load revision %d: %w", proposal.RevisionID, err)
	}

	raw, err := h.generator.Generate(ctx, revision.NLText)
	if err != nil {
		return h.fail(ctx, log, proposal.ID, "generation_error: "+err.Error())
	}

	validated, err := plan.Validate(raw, h.limits)
	if err != nil {
		return h.fail(ctx, log, proposal.ID, "invalid_plan: "+err.Error())
	}

	payload, err := json.Marshal(validated)
	if err != nil {
		return h.fail(ctx, log, proposal.ID, "invalid_plan: "+err.Error())
	}
	if _, err := h.proposals.MarkProposalSucceeded(ctx, proposal.ID, payload); err != nil {
		return fmt.Errorf("failed to mark proposal %d succeeded: %w", proposal.ID, err)
	}
	log.Info("plan generated", "steps", len(validated.Steps), "assertions", len(validated.Assertions))
	return nil
}

func (h *GenerationHandler) fail(ctx context.Context, log *slog.Logger, id int64, msg string) error {
	log.Warn("plan generation failed", "error", msg)
	if _, err := h.proposals.MarkProposalFailed(ctx, id, msg); err != nil {
		return fmt.Errorf("failed to mark proposal %d failed: %w", id, err)
	}
	return nil
}
