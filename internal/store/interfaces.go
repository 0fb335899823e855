package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TestCaseStore persists test cases and their revisions.
type TestCaseStore interface {
	// CreateTestCase inserts a test case together with its first revision.
	CreateTestCase(ctx context.Context, title, nlText string) (*TestCase, *TestCaseRevision, error)

	// AddRevision appends an immutable revision to an existing test case.
	AddRevision(ctx context.Context, testCaseID int64, nlText string) (*TestCaseRevision, error)

	// GetRevision returns a revision by its ID.
	GetRevision(ctx context.Context, id int64) (*TestCaseRevision, error)
}

// ProposalStore persists plan proposals.
//
// Every Mark* method is a guarded transition: it applies only when the
// current status is an allowed source and reports whether it did. A false
// result is a no-op, not an error.
type ProposalStore interface {
	CreateProposal(ctx context.Context, revisionID int64) (*PlanProposal, error)
	GetProposal(ctx context.Context, id int64) (*PlanProposal, error)

	MarkProposalRunning(ctx context.Context, id int64) (bool, error)
	MarkProposalSucceeded(ctx context.Context, id int64, result json.RawMessage) (bool, error)
	MarkProposalFailed(ctx context.Context, id int64, errMsg string) (bool, error)

	// MarkProposalReady sets the ready-for-test gate on a succeeded proposal.
	MarkProposalReady(ctx context.Context, id int64) (bool, error)
}

// RunStore persists test runs. Mark* methods are guarded transitions.
type RunStore interface {
	CreateRun(ctx context.Context, proposalID int64, siteDomain string, params RunParams) (*TestRun, error)
	GetRun(ctx context.Context, id int64) (*TestRun, error)

	MarkRunRunning(ctx context.Context, id int64) (bool, error)
	MarkRunPassed(ctx context.Context, id int64, result RunResult, artifacts Artifacts) (bool, error)
	// MarkRunFailed records errMsg and, when given, a partial result.
	MarkRunFailed(ctx context.Context, id int64, errMsg string, result *RunResult, artifacts Artifacts) (bool, error)
}
