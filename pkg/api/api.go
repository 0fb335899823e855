// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// CreateTestCaseRequest is the request body for creating a test case.
type CreateTestCaseRequest struct {
	Title  string `json:"title"`
	NLText string `json:"nl_text"`
}

// CreateRevisionRequest adds a revision to an existing test case.
type CreateRevisionRequest struct {
	NLText string `json:"nl_text"`
}

// CreateTestCaseResponse is returned after creating a test case or adding a
// revision to one.
type CreateTestCaseResponse struct {
	TestCaseID int64 `json:"test_case_id"`
	RevisionID int64 `json:"revision_id"`
}

// CreateProposalRequest asks for a plan to be generated from a revision.
type CreateProposalRequest struct {
	RevisionID int64 `json:"revision_id"`
}

// ProposalResponse represents a plan proposal in API responses.
type ProposalResponse struct {
	ID             int64           `json:"id"`
	RevisionID     int64           `json:"revision_id"`
	Status         string          `json:"status"`
	IsReadyForTest bool            `json:"is_ready_for_test"`
	ReadyForTestAt *time.Time      `json:"ready_for_test_at,omitempty"`
	Plan           json.RawMessage `json:"plan,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// CreateRunRequest starts a run of a ready proposal against a site.
type CreateRunRequest struct {
	PlanProposalID int64  `json:"plan_proposal_id"`
	SiteDomain     string `json:"site_domain"`
	Browser        string `json:"browser,omitempty"`
	// Headless defaults to true.
	Headless     *bool             `json:"headless,omitempty"`
	TimeoutMS    int               `json:"timeout_ms,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
}

// RunResult is the execution outcome recorded on a finished run.
type RunResult struct {
	FinalURL           string   `json:"final_url"`
	ExecutedSteps      []string `json:"executed_steps"`
	ExecutedAssertions []string `json:"executed_assertions"`
}

// RunResponse represents a test run in API responses.
type RunResponse struct {
	ID             int64      `json:"id"`
	PlanProposalID int64      `json:"plan_proposal_id"`
	Status         string     `json:"status"`
	SiteDomain     string     `json:"site_domain"`
	Browser        string     `json:"browser"`
	Headless       bool       `json:"headless"`
	TimeoutMS      int        `json:"timeout_ms"`
	Result         *RunResult `json:"result,omitempty"`
	Error          *string    `json:"error,omitempty"`
	VideoName      *string    `json:"video_name,omitempty"`
	ScreenshotName *string    `json:"screenshot_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
