package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ProposalStatus represents the state of a plan proposal.
type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusRunning   ProposalStatus = "running"
	ProposalStatusSucceeded ProposalStatus = "succeeded"
	ProposalStatusFailed    ProposalStatus = "failed"
)

// IsTerminal reports whether no further transition can leave s.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalStatusSucceeded || s == ProposalStatusFailed
}

// RunStatus represents the state of a test run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusPassed || s == RunStatusFailed
}

// ProposalSources lists, per target status, the statuses a proposal may be
// moved from. Postgres transitions use it verbatim in their WHERE clause.
var ProposalSources = map[ProposalStatus][]ProposalStatus{
	ProposalStatusRunning:   {ProposalStatusPending},
	ProposalStatusSucceeded: {ProposalStatusPending, ProposalStatusRunning},
	ProposalStatusFailed:    {ProposalStatusPending, ProposalStatusRunning},
}

// RunSources lists, per target status, the statuses a run may be moved from.
var RunSources = map[RunStatus][]RunStatus{
	RunStatusRunning: {RunStatusQueued},
	RunStatusPassed:  {RunStatusRunning},
	RunStatusFailed:  {RunStatusQueued, RunStatusRunning},
}

// CanTransitionProposal reports whether from -> to is an allowed edge.
func CanTransitionProposal(from, to ProposalStatus) bool {
	for _, s := range ProposalSources[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CanTransitionRun reports whether from -> to is an allowed edge.
func CanTransitionRun(from, to RunStatus) bool {
	for _, s := range RunSources[to] {
		if s == from {
			return true
		}
	}
	return false
}
