package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives chromium, firefox or webkit through playwright-go. The
// playwright server is started on the first Open and shared by all sessions.
type Playwright struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywright() *Playwright {
	return &Playwright{}
}

func (d *Playwright) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Stop shuts the shared playwright server down.
func (d *Playwright) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "", Chromium:
		return pw.Chromium, nil
	case Firefox:
		return pw.Firefox, nil
	case WebKit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBrowser, name)
	}
}

func checkBrowserName(name string) error {
	switch name {
	case "", Chromium, Firefox, WebKit:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedBrowser, name)
}

func (d *Playwright) Open(ctx context.Context, opts SessionOptions) (Page, Release, error) {
	if err := checkBrowserName(opts.Browser); err != nil {
		return nil, nil, err
	}
	pw, err := d.start()
	if err != nil {
		return nil, nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		return nil, nil, err
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch %s: %w", bt.Name(), err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	if opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{
			Dir:  opts.VideoDir,
			Size: &playwright.Size{Width: VideoWidth, Height: VideoHeight},
		}
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		return nil, nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, nil, fmt.Errorf("failed to open page: %w", err)
	}
	expect := playwright.NewPlaywrightAssertions()
	if timeoutMS := float64(opts.Timeout.Milliseconds()); timeoutMS > 0 {
		page.SetDefaultTimeout(timeoutMS)
		expect = playwright.NewPlaywrightAssertions(timeoutMS)
	}

	td := teardown{
		closePage: func() error { return page.Close() },
		videoPath: func() (string, error) {
			video := page.Video()
			if video == nil {
				return "", nil
			}
			return video.Path()
		},
		closeContext: func() error { return bctx.Close() },
		closeBrowser: func() error { return browser.Close() },
	}
	release := func() string {
		name, _ := td.run()
		return name
	}

	return &pwPage{page: page, expect: expect}, release, nil
}

// teardown closes a session page first, then its context, then the browser.
// Every step runs even when an earlier one fails.
type teardown struct {
	closePage    func() error
	videoPath    func() (string, error)
	closeContext func() error
	closeBrowser func() error
}

// run returns the recorded video's file name, empty when there is none, and
// the joined errors of all steps.
func (t teardown) run() (string, error) {
	var errs []error
	if err := t.closePage(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}

	// The video file is finalized once the page is closed.
	var videoName string
	path, err := t.videoPath()
	if err != nil {
		errs = append(errs, fmt.Errorf("video path: %w", err))
	} else if path != "" {
		videoName = filepath.Base(path)
	}

	if err := t.closeContext(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := t.closeBrowser(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	return videoName, errors.Join(errs...)
}

type pwPage struct {
	page   playwright.Page
	expect playwright.PlaywrightAssertions
}

func (p *pwPage) Goto(_ context.Context, url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *pwPage) Fill(_ context.Context, selector, value string) error {
	return p.page.Locator(selector).Fill(value)
}

func (p *pwPage) Click(_ context.Context, selector string) error {
	return p.page.Locator(selector).Click()
}

func (p *pwPage) WaitForSelector(_ context.Context, selector string) error {
	_, err := p.page.WaitForSelector(selector)
	return err
}

func (p *pwPage) WaitForURL(_ context.Context, url string) error {
	return p.page.WaitForURL(url)
}

func (p *pwPage) WaitForURLPattern(_ context.Context, re *regexp.Regexp) error {
	return p.page.WaitForURL(re)
}

func (p *pwPage) ExpectURL(_ context.Context, url string) error {
	return p.expect.Page(p.page).ToHaveURL(url)
}

func (p *pwPage) ExpectURLPattern(_ context.Context, re *regexp.Regexp) error {
	return p.expect.Page(p.page).ToHaveURL(re)
}

func (p *pwPage) ExpectVisible(_ context.Context, selector string) error {
	return p.expect.Locator(p.page.Locator(selector)).ToBeVisible()
}

func (p *pwPage) ExpectContainsText(_ context.Context, selector, text string) error {
	return p.expect.Locator(p.page.Locator(selector)).ToContainText(text)
}

func (p *pwPage) URL(_ context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *pwPage) Screenshot(_ context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}
