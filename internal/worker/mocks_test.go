package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/plan"
	"testplane/internal/queue"
	"testplane/internal/runner"
	"testplane/internal/store"
)

// MockStream implements queue.Stream for testing.
type MockStream struct {
	mu sync.Mutex

	// FetchFunc allows customizing Fetch behavior per test.
	FetchFunc  func(ctx context.Context, max int, wait time.Duration) ([]queue.Delivery, error)
	FetchCalls int
	Acked      []string
	Naked      []string
	NakDelay   time.Duration
}

func (m *MockStream) Publish(ctx context.Context, fields map[string]string) error { return nil }

func (m *MockStream) Fetch(ctx context.Context, max int, wait time.Duration) ([]queue.Delivery, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, max, wait)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *MockStream) delivery(id string, fields map[string]string) queue.Delivery {
	return queue.NewDelivery(id, 1, fields,
		func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.Acked = append(m.Acked, id)
			return nil
		},
		func(_ context.Context, delay time.Duration) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.Naked = append(m.Naked, id)
			m.NakDelay = delay
			return nil
		},
	)
}

func (m *MockStream) acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Acked...)
}

func (m *MockStream) naked() ([]string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Naked...), m.NakDelay
}

// MockProposalStore implements store.ProposalStore for testing.
type MockProposalStore struct {
	Proposals  map[int64]*store.PlanProposal
	GetErr     error
	RunningOK  bool
	RunningErr error

	SucceededErr     error
	SucceededPayload json.RawMessage
	FailedMsg        string
	RunningCalls     int
}

func (m *MockProposalStore) CreateProposal(ctx context.Context, revisionID int64) (*store.PlanProposal, error) {
	return nil, nil
}

func (m *MockProposalStore) GetProposal(ctx context.Context, id int64) (*store.PlanProposal, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.Proposals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *MockProposalStore) MarkProposalRunning(ctx context.Context, id int64) (bool, error) {
	m.RunningCalls++
	if m.RunningErr != nil || !m.RunningOK {
		return false, m.RunningErr
	}
	if p, ok := m.Proposals[id]; ok {
		p.Status = store.ProposalStatusRunning
	}
	return true, nil
}

func (m *MockProposalStore) MarkProposalSucceeded(ctx context.Context, id int64, result json.RawMessage) (bool, error) {
	if m.SucceededErr != nil {
		return false, m.SucceededErr
	}
	m.SucceededPayload = result
	if p, ok := m.Proposals[id]; ok {
		p.Status = store.ProposalStatusSucceeded
	}
	return true, nil
}

func (m *MockProposalStore) MarkProposalFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	m.FailedMsg = errMsg
	if p, ok := m.Proposals[id]; ok {
		p.Status = store.ProposalStatusFailed
	}
	return true, nil
}

func (m *MockProposalStore) MarkProposalReady(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

// MockRevisions implements RevisionGetter for testing.
type MockRevisions struct {
	Revisions map[int64]*store.TestCaseRevision
}

func (m *MockRevisions) GetRevision(ctx context.Context, id int64) (*store.TestCaseRevision, error) {
	r, ok := m.Revisions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// MockGenerator implements llm.Generator for testing.
type MockGenerator struct {
	Output json.RawMessage
	Err    error
	Input  string
}

func (m *MockGenerator) Generate(ctx context.Context, nlText string) (json.RawMessage, error) {
	m.Input = nlText
	return m.Output, m.Err
}

// MockRunStore implements store.RunStore for testing.
type MockRunStore struct {
	Runs      map[int64]*store.TestRun
	RunningOK bool
	PassedErr error
	FailedErr error

	RunningCalls int
	Passed       *store.RunResult
	Failed       string
	FailedResult *store.RunResult
	Artifacts    store.Artifacts
}

func (m *MockRunStore) CreateRun(ctx context.Context, proposalID int64, siteDomain string, params store.RunParams) (*store.TestRun, error) {
	return nil, nil
}

func (m *MockRunStore) GetRun(ctx context.Context, id int64) (*store.TestRun, error) {
	r, ok := m.Runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (m *MockRunStore) MarkRunRunning(ctx context.Context, id int64) (bool, error) {
	m.RunningCalls++
	if !m.RunningOK {
		return false, nil
	}
	if r, ok := m.Runs[id]; ok {
		r.Status = store.RunStatusRunning
	}
	return true, nil
}

func (m *MockRunStore) MarkRunPassed(ctx context.Context, id int64, result store.RunResult, arts store.Artifacts) (bool, error) {
	if m.PassedErr != nil {
		return false, m.PassedErr
	}
	m.Passed = &result
	m.Artifacts = arts
	if r, ok := m.Runs[id]; ok {
		r.Status = store.RunStatusPassed
	}
	return true, nil
}

func (m *MockRunStore) MarkRunFailed(ctx context.Context, id int64, errMsg string, result *store.RunResult, arts store.Artifacts) (bool, error) {
	if m.FailedErr != nil {
		return false, m.FailedErr
	}
	m.Failed = errMsg
	m.FailedResult = result
	m.Artifacts = arts
	if r, ok := m.Runs[id]; ok {
		r.Status = store.RunStatusFailed
	}
	return true, nil
}

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	Result *runner.Result
	Err    error

	Plan    plan.Plan
	Request runner.Request
	Calls   int
}

func (m *MockExecutor) Execute(ctx context.Context, p plan.Plan, req runner.Request) (*runner.Result, error) {
	m.Calls++
	m.Plan = p
	m.Request = req
	return m.Result, m.Err
}

// MockUploader implements Uploader for testing.
type MockUploader struct {
	Err   error
	Calls int
}

func (m *MockUploader) Upload(ctx context.Context, runID int64, videoName, screenshotName string) (artifacts.Uploaded, error) {
	m.Calls++
	var out artifacts.Uploaded
	if videoName != "" {
		key := artifacts.ObjectKey(artifacts.KindVideo, runID, videoName)
		out.VideoKey = &key
	}
	if screenshotName != "" && m.Err == nil {
		key := artifacts.ObjectKey(artifacts.KindScreenshot, runID, screenshotName)
		out.ScreenshotKey = &key
	}
	return out, m.Err
}
