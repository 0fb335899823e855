// Package store contains the database layer for testplane.
package store

import (
	"encoding/json"
	"time"
)

// TestCase groups the revisions of one natural-language test description.
type TestCase struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// TestCaseRevision is an immutable version of a test description.
type TestCaseRevision struct {
	ID         int64
	TestCaseID int64
	NLText     string
	CreatedAt  time.Time
}

// PlanProposal tracks one plan-generation attempt for a revision.
type PlanProposal struct {
	ID             int64
	RevisionID     int64
	Status         ProposalStatus
	IsReadyForTest bool
	ReadyForTestAt *time.Time
	// ResultPayload is the validated plan JSON once the proposal succeeded.
	ResultPayload json.RawMessage
	Error         *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// RunParams are the browser settings a run is executed with.
type RunParams struct {
	Browser   string `json:"browser"`
	Headless  bool   `json:"headless"`
	TimeoutMS int    `json:"timeout_ms"`
}

// RunResult is the result payload persisted on a finished run.
type RunResult struct {
	FinalURL           string   `json:"final_url"`
	ExecutedSteps      []string `json:"executed_steps"`
	ExecutedAssertions []string `json:"executed_assertions"`
}

// Artifacts are the artifact names and object keys recorded on a run.
// Each field may be set or nil independently.
type Artifacts struct {
	VideoName      *string
	ScreenshotName *string
	VideoKey       *string
	ScreenshotKey  *string
}

// TestRun tracks one execution of a ready proposal against a site.
type TestRun struct {
	ID             int64
	PlanProposalID int64
	Status         RunStatus
	Params         RunParams
	SiteDomain     string
	Result         *RunResult
	Error          *string
	Artifacts      Artifacts
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}
