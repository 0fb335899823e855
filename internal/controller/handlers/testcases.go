package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"testplane/internal/store"
	"testplane/pkg/api"
)

// CreateTestCase handles POST /test-cases.
// It stores the natural-language description as the first revision.
func (h *Handlers) CreateTestCase(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.NLText) == "" {
		h.httpError(w, "title and nl_text are required", http.StatusBadRequest)
		return
	}

	tc, rev, err := h.store.CreateTestCase(r.Context(), req.Title, req.NLText)
	if err != nil {
		h.log(r).Error("failed to create test case", "error", err)
		h.httpError(w, "Failed to create test case", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateTestCaseResponse{
		TestCaseID: tc.ID,
		RevisionID: rev.ID,
	})
}

// AddRevision handles POST /test-cases/{id}/revisions.
// Revisions are immutable; changing the description always adds a new one.
func (h *Handlers) AddRevision(w http.ResponseWriter, r *http.Request) {
	testCaseID, ok := pathID(r)
	if !ok {
		h.httpError(w, "Invalid test case ID", http.StatusBadRequest)
		return
	}

	var req api.CreateRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.NLText) == "" {
		h.httpError(w, "nl_text is required", http.StatusBadRequest)
		return
	}

	rev, err := h.store.AddRevision(r.Context(), testCaseID, req.NLText)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Test case not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log(r).Error("failed to add revision", "test_case_id", testCaseID, "error", err)
		h.httpError(w, "Failed to add revision", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateTestCaseResponse{
		TestCaseID: rev.TestCaseID,
		RevisionID: rev.ID,
	})
}
