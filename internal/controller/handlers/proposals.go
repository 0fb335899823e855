package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"testplane/internal/store"
	"testplane/pkg/api"
)

func proposalResponse(p *store.PlanProposal) api.ProposalResponse {
	resp := api.ProposalResponse{
		ID:             p.ID,
		RevisionID:     p.RevisionID,
		Status:         string(p.Status),
		IsReadyForTest: p.IsReadyForTest,
		ReadyForTestAt: utc(p.ReadyForTestAt),
		Error:          p.Error,
		CreatedAt:      p.CreatedAt.UTC(),
		StartedAt:      utc(p.StartedAt),
		FinishedAt:     utc(p.FinishedAt),
	}
	if len(p.ResultPayload) > 0 {
		resp.Plan = p.ResultPayload
	}
	return resp
}

// CreateProposal handles POST /proposals.
// It records a pending proposal and enqueues plan generation for it.
func (h *Handlers) CreateProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RevisionID <= 0 {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetRevision(ctx, req.RevisionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Revision not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to load revision", "revision_id", req.RevisionID, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	proposal, err := h.store.CreateProposal(ctx, req.RevisionID)
	if err != nil {
		h.log(r).Error("failed to create proposal", "error", err)
		h.httpError(w, "Failed to create proposal", http.StatusInternalServerError)
		return
	}

	if err := h.publisher.PublishGeneration(ctx, proposal.ID); err != nil {
		h.log(r).Error("failed to enqueue generation", "proposal_id", proposal.ID, "error", err)
		// Nothing will ever pick the proposal up; close it.
		if _, markErr := h.store.MarkProposalFailed(ctx, proposal.ID, "enqueue_error: "+err.Error()); markErr != nil {
			h.log(r).Error("failed to mark proposal failed", "proposal_id", proposal.ID, "error", markErr)
		}
		h.httpError(w, "Failed to enqueue generation", http.StatusServiceUnavailable)
		return
	}

	h.respondJson(w, http.StatusAccepted, proposalResponse(proposal))
}

// GetProposal handles GET /proposals/{id}.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.httpError(w, "Invalid proposal ID", http.StatusBadRequest)
		return
	}

	proposal, err := h.store.GetProposal(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Proposal not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to load proposal", "proposal_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, proposalResponse(proposal))
}

// MarkProposalReady handles POST /proposals/{id}/ready.
// Only a succeeded proposal can be marked ready for test; repeating the call
// is harmless.
func (h *Handlers) MarkProposalReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(r)
	if !ok {
		h.httpError(w, "Invalid proposal ID", http.StatusBadRequest)
		return
	}

	applied, err := h.store.MarkProposalReady(ctx, id)
	if err != nil {
		h.log(r).Error("failed to mark proposal ready", "proposal_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	proposal, err := h.store.GetProposal(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Proposal not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	if !applied {
		h.httpError(w, "Proposal is "+string(proposal.Status)+", only succeeded proposals can be marked ready", http.StatusConflict)
		return
	}

	h.respondJson(w, http.StatusOK, proposalResponse(proposal))
}
