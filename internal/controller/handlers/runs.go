package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"testplane/internal/render"
	"testplane/internal/runner/browser"
	"testplane/internal/store"
	"testplane/pkg/api"
)

// maxRunTimeoutMS caps the per-action timeout a client may ask for.
const maxRunTimeoutMS = 5 * 60 * 1000

func runResponse(run *store.TestRun) api.RunResponse {
	resp := api.RunResponse{
		ID:             run.ID,
		PlanProposalID: run.PlanProposalID,
		Status:         string(run.Status),
		SiteDomain:     run.SiteDomain,
		Browser:        run.Params.Browser,
		Headless:       run.Params.Headless,
		TimeoutMS:      run.Params.TimeoutMS,
		Error:          run.Error,
		VideoName:      run.Artifacts.VideoName,
		ScreenshotName: run.Artifacts.ScreenshotName,
		CreatedAt:      run.CreatedAt.UTC(),
		StartedAt:      utc(run.StartedAt),
		FinishedAt:     utc(run.FinishedAt),
	}
	if run.Result != nil {
		resp.Result = &api.RunResult{
			FinalURL:           run.Result.FinalURL,
			ExecutedSteps:      run.Result.ExecutedSteps,
			ExecutedAssertions: run.Result.ExecutedAssertions,
		}
	}
	return resp
}

func validBrowser(name string) bool {
	switch name {
	case browser.Chromium, browser.Firefox, browser.WebKit:
		return true
	}
	return false
}

// CreateRun handles POST /runs.
// The proposal must be ready for test. The run is stored as queued and the
// placeholders travel with the execution message only.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanProposalID <= 0 {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	siteDomain, err := render.NormalizeBaseURL(req.SiteDomain)
	if err != nil {
		h.httpError(w, "Invalid site_domain: "+err.Error(), http.StatusBadRequest)
		return
	}

	params := store.RunParams{
		Browser:   strings.ToLower(strings.TrimSpace(req.Browser)),
		Headless:  true,
		TimeoutMS: req.TimeoutMS,
	}
	if params.Browser == "" {
		params.Browser = browser.Chromium
	}
	if !validBrowser(params.Browser) {
		h.httpError(w, "browser must be one of chromium, firefox, webkit", http.StatusBadRequest)
		return
	}
	if req.Headless != nil {
		params.Headless = *req.Headless
	}
	if params.TimeoutMS < 0 || params.TimeoutMS > maxRunTimeoutMS {
		h.httpError(w, "timeout_ms is out of range", http.StatusBadRequest)
		return
	}

	placeholders := ""
	if len(req.Placeholders) > 0 {
		raw, err := json.Marshal(req.Placeholders)
		if err != nil {
			h.httpError(w, "Invalid placeholders", http.StatusBadRequest)
			return
		}
		placeholders = string(raw)
	}

	proposal, err := h.store.GetProposal(ctx, req.PlanProposalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Proposal not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to load proposal", "proposal_id", req.PlanProposalID, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	if proposal.Status != store.ProposalStatusSucceeded || !proposal.IsReadyForTest {
		h.httpError(w, "Proposal is not ready for test", http.StatusConflict)
		return
	}

	run, err := h.store.CreateRun(ctx, proposal.ID, siteDomain, params)
	if err != nil {
		h.log(r).Error("failed to create run", "error", err)
		h.httpError(w, "Failed to create run", http.StatusInternalServerError)
		return
	}

	if err := h.publisher.PublishExecution(ctx, run.ID, placeholders); err != nil {
		h.log(r).Error("failed to enqueue execution", "run_id", run.ID, "error", err)
		if _, markErr := h.store.MarkRunFailed(ctx, run.ID, "enqueue_error: "+err.Error(), nil, store.Artifacts{}); markErr != nil {
			h.log(r).Error("failed to mark run failed", "run_id", run.ID, "error", markErr)
		}
		h.httpError(w, "Failed to enqueue execution", http.StatusServiceUnavailable)
		return
	}

	h.respondJson(w, http.StatusAccepted, runResponse(run))
}

// GetRun handles GET /runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log(r).Error("failed to load run", "run_id", id, "error", err)
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, runResponse(run))
}
