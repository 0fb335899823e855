package handlers

import (
	"context"
	"encoding/json"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/store"
)

// Mock Store
type mockStore struct {
	pingErr error

	// Test case hooks
	createTestCaseErr error
	addRevisionErr    error
	getRevisionErr    error

	// Proposal hooks
	proposal          *store.PlanProposal
	getProposalErr    error
	createProposalErr error
	markReadyApplied  bool
	markReadyErr      error

	// Run hooks
	run          *store.TestRun
	getRunErr    error
	createRunErr error

	// Spies (to verify arguments passed by handlers)
	capturedTitle      string
	capturedNLText     string
	capturedRevisionID int64
	capturedSiteDomain string
	capturedParams     store.RunParams
	markedFailed       []string
	markedRunFailed    []string
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateTestCase(ctx context.Context, title, nlText string) (*store.TestCase, *store.TestCaseRevision, error) {
	m.capturedTitle, m.capturedNLText = title, nlText
	if m.createTestCaseErr != nil {
		return nil, nil, m.createTestCaseErr
	}
	return &store.TestCase{ID: 3, Title: title}, &store.TestCaseRevision{ID: 9, TestCaseID: 3, NLText: nlText}, nil
}

func (m *mockStore) AddRevision(ctx context.Context, testCaseID int64, nlText string) (*store.TestCaseRevision, error) {
	m.capturedNLText = nlText
	if m.addRevisionErr != nil {
		return nil, m.addRevisionErr
	}
	return &store.TestCaseRevision{ID: 10, TestCaseID: testCaseID, NLText: nlText}, nil
}

func (m *mockStore) GetRevision(ctx context.Context, id int64) (*store.TestCaseRevision, error) {
	if m.getRevisionErr != nil {
		return nil, m.getRevisionErr
	}
	return &store.TestCaseRevision{ID: id, TestCaseID: 3}, nil
}

func (m *mockStore) CreateProposal(ctx context.Context, revisionID int64) (*store.PlanProposal, error) {
	m.capturedRevisionID = revisionID
	if m.createProposalErr != nil {
		return nil, m.createProposalErr
	}
	return &store.PlanProposal{ID: 11, RevisionID: revisionID, Status: store.ProposalStatusPending, CreatedAt: time.Now()}, nil
}

func (m *mockStore) GetProposal(ctx context.Context, id int64) (*store.PlanProposal, error) {
	if m.getProposalErr != nil {
		return nil, m.getProposalErr
	}
	if m.proposal == nil {
		return nil, store.ErrNotFound
	}
	return m.proposal, nil
}

func (m *mockStore) MarkProposalRunning(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

func (m *mockStore) MarkProposalSucceeded(ctx context.Context, id int64, result json.RawMessage) (bool, error) {
	return true, nil
}

func (m *mockStore) MarkProposalFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	m.markedFailed = append(m.markedFailed, errMsg)
	return true, nil
}

func (m *mockStore) MarkProposalReady(ctx context.Context, id int64) (bool, error) {
	if m.markReadyApplied && m.proposal != nil {
		now := time.Now()
		m.proposal.IsReadyForTest = true
		m.proposal.ReadyForTestAt = &now
	}
	return m.markReadyApplied, m.markReadyErr
}

func (m *mockStore) CreateRun(ctx context.Context, proposalID int64, siteDomain string, params store.RunParams) (*store.TestRun, error) {
	m.capturedSiteDomain, m.capturedParams = siteDomain, params
	if m.createRunErr != nil {
		return nil, m.createRunErr
	}
	return &store.TestRun{
		ID:             21,
		PlanProposalID: proposalID,
		Status:         store.RunStatusQueued,
		Params:         params,
		SiteDomain:     siteDomain,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *mockStore) GetRun(ctx context.Context, id int64) (*store.TestRun, error) {
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	if m.run == nil {
		return nil, store.ErrNotFound
	}
	return m.run, nil
}

func (m *mockStore) MarkRunRunning(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

func (m *mockStore) MarkRunPassed(ctx context.Context, id int64, result store.RunResult, a store.Artifacts) (bool, error) {
	return true, nil
}

func (m *mockStore) MarkRunFailed(ctx context.Context, id int64, errMsg string, result *store.RunResult, a store.Artifacts) (bool, error) {
	m.markedRunFailed = append(m.markedRunFailed, errMsg)
	return true, nil
}

// Mock Publisher
type mockPublisher struct {
	err          error
	generation   []int64
	execution    []int64
	placeholders []string
}

func (p *mockPublisher) PublishGeneration(ctx context.Context, proposalID int64) error {
	p.generation = append(p.generation, proposalID)
	return p.err
}

func (p *mockPublisher) PublishExecution(ctx context.Context, runID int64, placeholders string) error {
	p.execution = append(p.execution, runID)
	p.placeholders = append(p.placeholders, placeholders)
	return p.err
}

// Mock artifact locator
type mockLocator struct {
	loc       artifacts.Location
	err       error
	gotKind   artifacts.Kind
	gotName   string
	gotStored *string
}

func (l *mockLocator) Locate(ctx context.Context, kind artifacts.Kind, runID int64, name string, storedKey *string) (artifacts.Location, error) {
	l.gotKind, l.gotName, l.gotStored = kind, name, storedKey
	return l.loc, l.err
}

func newTestHandlers(s *mockStore) (*Handlers, *mockPublisher, *mockLocator) {
	p := &mockPublisher{}
	l := &mockLocator{}
	return New(s, p, l, nil), p, l
}

func strPtr(s string) *string { return &s }
