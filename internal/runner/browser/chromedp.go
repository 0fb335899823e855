package browser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const pollInterval = 100 * time.Millisecond

// Chromedp drives a local Chrome over the DevTools protocol. It supports
// chromium only and does not record video.
type Chromedp struct {
	// ExtraFlags are appended to the default allocator options.
	ExtraFlags []chromedp.ExecAllocatorOption
}

func NewChromedp() *Chromedp {
	return &Chromedp{}
}

func (d *Chromedp) Open(ctx context.Context, opts SessionOptions) (Page, Release, error) {
	if opts.Browser != "" && opts.Browser != Chromium {
		return nil, nil, fmt.Errorf("%w: %q (chromedp drives chromium only)", ErrUnsupportedBrowser, opts.Browser)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(VideoWidth, VideoHeight),
	)
	allocOpts = append(allocOpts, d.ExtraFlags...)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	page := &cdpPage{ctx: tabCtx, timeout: opts.Timeout}
	release := func() string {
		_ = chromedp.Cancel(tabCtx)
		tabCancel()
		allocCancel()
		return ""
	}
	return page, release, nil
}

type cdpPage struct {
	ctx     context.Context
	timeout time.Duration
}

// run executes actions against the tab under the per-action deadline. The
// caller's ctx only contributes cancellation.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	actionCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(actionCtx, actions...)
}

// poll re-evaluates check until it holds or the action deadline passes.
func (p *cdpPage) poll(ctx context.Context, describe string, check func(context.Context) (bool, error)) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var lastErr error
		for {
			ok, err := check(ctx)
			if ok {
				return nil
			}
			if err != nil {
				lastErr = err
			}
			select {
			case <-ctx.Done():
				if lastErr != nil {
					return fmt.Errorf("timed out waiting for %s: %w", describe, lastErr)
				}
				return fmt.Errorf("timed out waiting for %s", describe)
			case <-time.After(pollInterval):
			}
		}
	}))
}

func (p *cdpPage) location(ctx context.Context) (string, error) {
	var loc string
	err := chromedp.Location(&loc).Do(ctx)
	return loc, err
}

func (p *cdpPage) Goto(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *cdpPage) Fill(ctx context.Context, selector, value string) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(selector, value, chromedp.ByQuery))
	}
	return p.run(ctx, actions...)
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *cdpPage) WaitForSelector(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *cdpPage) WaitForURL(ctx context.Context, url string) error {
	return p.poll(ctx, "url "+url, func(ctx context.Context) (bool, error) {
		loc, err := p.location(ctx)
		return err == nil && loc == url, err
	})
}

func (p *cdpPage) WaitForURLPattern(ctx context.Context, re *regexp.Regexp) error {
	return p.poll(ctx, "url matching "+re.String(), func(ctx context.Context) (bool, error) {
		loc, err := p.location(ctx)
		return err == nil && re.MatchString(loc), err
	})
}

func (p *cdpPage) ExpectURL(ctx context.Context, url string) error {
	return p.WaitForURL(ctx, url)
}

func (p *cdpPage) ExpectURLPattern(ctx context.Context, re *regexp.Regexp) error {
	return p.WaitForURLPattern(ctx, re)
}

func (p *cdpPage) ExpectVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *cdpPage) ExpectContainsText(ctx context.Context, selector, text string) error {
	return p.poll(ctx, fmt.Sprintf("%s to contain %q", selector, text), func(ctx context.Context) (bool, error) {
		var got string
		if err := chromedp.Text(selector, &got, chromedp.ByQuery).Do(ctx); err != nil {
			return false, err
		}
		return strings.Contains(got, text), nil
	})
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *cdpPage) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
