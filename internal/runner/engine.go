// Package runner executes compiled test plans in a browser session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/plan"
	"testplane/internal/runner/browser"
	"testplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds each action when neither the request nor the engine
// configuration sets one.
const DefaultTimeout = 15 * time.Second

// Request describes one execution.
type Request struct {
	RunID    int64
	BaseURL  string
	Browser  string
	Headless bool
	Timeout  time.Duration
}

// Result is the outcome of an execution. ExecutedSteps and
// ExecutedAssertions hold the trace text of each statement that completed.
type Result struct {
	Status             store.RunStatus
	FinalURL           string
	ExecutedSteps      []string
	ExecutedAssertions []string
	VideoName          string
	ScreenshotName     string
}

// RunResult converts r into the persisted result payload.
func (r *Result) RunResult() store.RunResult {
	return store.RunResult{
		FinalURL:           r.FinalURL,
		ExecutedSteps:      r.ExecutedSteps,
		ExecutedAssertions: r.ExecutedAssertions,
	}
}

// ExecutionFailedError is returned when a session could not be opened or a
// statement failed. Result carries whatever completed before the failure.
type ExecutionFailedError struct {
	Result *Result
	Err    error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("plan execution failed: %v", e.Err)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// StatementError identifies the statement that failed.
type StatementError struct {
	Section plan.Section
	Index   int
	Trace   string
	Err     error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s #%d %s: %v", e.Section, e.Index, e.Trace, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Config holds engine settings.
type Config struct {
	// ArtifactsRoot enables video recording and failure screenshots.
	ArtifactsRoot  string
	DefaultTimeout time.Duration
}

// Engine runs plans through a browser driver.
type Engine struct {
	driver browser.Driver
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

func New(driver browser.Driver, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		driver: driver,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("testplane/runner"),
	}
}

// Execute compiles p and runs its steps, then its assertions, in order.
//
// Compilation errors are returned as-is, before any browser is started. Every
// other failure is an *ExecutionFailedError. The session is always released,
// including when a driver call panics.
func (e *Engine) Execute(ctx context.Context, p plan.Plan, req Request) (*Result, error) {
	prog, err := plan.Compile(p)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "runner.execute", trace.WithAttributes(
		attribute.Int64("run.id", req.RunID),
		attribute.String("browser", req.Browser),
		attribute.Int("plan.steps", len(prog.Steps)),
		attribute.Int("plan.assertions", len(prog.Assertions)),
	))
	defer span.End()

	result := &Result{
		Status:             store.RunStatusFailed,
		ExecutedSteps:      []string{},
		ExecutedAssertions: []string{},
	}

	opts := browser.SessionOptions{
		Browser:  req.Browser,
		Headless: req.Headless,
		BaseURL:  req.BaseURL,
		Timeout:  req.Timeout,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.DefaultTimeout
	}
	if e.cfg.ArtifactsRoot != "" {
		dir := artifacts.RunDir(e.cfg.ArtifactsRoot, artifacts.KindVideo, req.RunID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			e.logger.Warn("video directory unavailable, recording disabled", "run_id", req.RunID, "error", err)
		} else {
			opts.VideoDir = dir
		}
	}

	page, release, err := e.driver.Open(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open session")
		return result, &ExecutionFailedError{Result: result, Err: err}
	}
	defer func() {
		result.VideoName = release()
	}()

	runErr := e.run(ctx, page, prog, req.BaseURL, result)
	if runErr != nil {
		result.ScreenshotName = e.screenshot(ctx, page, req.RunID)
	}
	if u, err := page.URL(ctx); err == nil {
		result.FinalURL = u
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "statement failed")
		return result, &ExecutionFailedError{Result: result, Err: runErr}
	}
	result.Status = store.RunStatusPassed
	return result, nil
}

func (e *Engine) run(ctx context.Context, page browser.Page, prog plan.Program, baseURL string, result *Result) error {
	for i, stmt := range prog.Steps {
		if err := dispatch(ctx, page, stmt, baseURL); err != nil {
			return &StatementError{Section: plan.SectionSteps, Index: i + 1, Trace: stmt.Trace(), Err: err}
		}
		result.ExecutedSteps = append(result.ExecutedSteps, stmt.Trace())
	}
	for i, stmt := range prog.Assertions {
		if err := dispatch(ctx, page, stmt, baseURL); err != nil {
			return &StatementError{Section: plan.SectionAssertions, Index: i + 1, Trace: stmt.Trace(), Err: err}
		}
		result.ExecutedAssertions = append(result.ExecutedAssertions, stmt.Trace())
	}
	return nil
}

func dispatch(ctx context.Context, page browser.Page, stmt plan.Statement, baseURL string) error {
	switch stmt.Kind {
	case plan.KindGoto:
		return page.Goto(ctx, browser.ResolveURL(baseURL, stmt.URL))
	case plan.KindFill:
		return page.Fill(ctx, stmt.Selector, stmt.Value)
	case plan.KindClick:
		return page.Click(ctx, stmt.Selector)
	case plan.KindWaitForSelector:
		return page.WaitForSelector(ctx, stmt.Selector)
	case plan.KindWaitForURL:
		return page.WaitForURL(ctx, browser.ResolveURL(baseURL, stmt.URL))
	case plan.KindWaitForURLPattern:
		return page.WaitForURLPattern(ctx, stmt.Regexp)
	case plan.KindExpectURL:
		return page.ExpectURL(ctx, browser.ResolveURL(baseURL, stmt.URL))
	case plan.KindExpectURLPattern:
		return page.ExpectURLPattern(ctx, stmt.Regexp)
	case plan.KindExpectVisible:
		return page.ExpectVisible(ctx, stmt.Selector)
	case plan.KindExpectContainsText:
		return page.ExpectContainsText(ctx, stmt.Selector, stmt.Value)
	default:
		return fmt.Errorf("%w: %s", plan.ErrUnsupportedStatement, stmt.Kind)
	}
}

// screenshot captures the page after a failure. Errors are logged and
// swallowed; the returned name is empty when nothing was written.
func (e *Engine) screenshot(ctx context.Context, page browser.Page, runID int64) string {
	if e.cfg.ArtifactsRoot == "" {
		return ""
	}
	name := uuid.NewString() + ".png"
	path := artifacts.LocalPath(e.cfg.ArtifactsRoot, artifacts.KindScreenshot, runID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.logger.Warn("failed to create screenshot directory", "run_id", runID, "error", err)
		return ""
	}
	if err := page.Screenshot(ctx, path); err != nil {
		e.logger.Warn("failed to capture failure screenshot", "run_id", runID, "error", err)
		return ""
	}
	return name
}

// IsExecutionFailure reports whether err came from a browser session rather
// than from compiling the plan.
func IsExecutionFailure(err error) bool {
	var failed *ExecutionFailedError
	return errors.As(err, &failed)
}
