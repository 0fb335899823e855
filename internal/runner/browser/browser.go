// Package browser abstracts the browser automation backends the execution
// engine drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Supported driver names.
const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

// Browser names accepted in SessionOptions.
const (
	Chromium = "chromium"
	Firefox  = "firefox"
	WebKit   = "webkit"
)

// Video frame size used when recording.
const (
	VideoWidth  = 1280
	VideoHeight = 720
)

var ErrUnsupportedBrowser = errors.New("browser: unsupported browser")

// SessionOptions configure one browser session.
type SessionOptions struct {
	Browser  string
	Headless bool
	BaseURL  string
	// Timeout bounds every individual action and expectation.
	Timeout time.Duration
	// VideoDir enables recording into the directory when set and supported.
	VideoDir string
}

// Page is the set of primitives a compiled statement maps onto. URLs passed
// in are already absolute.
type Page interface {
	Goto(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string) error
	WaitForURL(ctx context.Context, url string) error
	WaitForURLPattern(ctx context.Context, re *regexp.Regexp) error

	ExpectURL(ctx context.Context, url string) error
	ExpectURLPattern(ctx context.Context, re *regexp.Regexp) error
	ExpectVisible(ctx context.Context, selector string) error
	ExpectContainsText(ctx context.Context, selector, text string) error

	URL(ctx context.Context) (string, error)
	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error
}

// Release tears a session down: page, then context, then browser, each step
// attempted regardless of earlier failures. It returns the base name of the
// finalized video file, or "" when nothing was recorded.
type Release func() string

// Driver opens browser sessions.
type Driver interface {
	Open(ctx context.Context, opts SessionOptions) (Page, Release, error)
}

// ResolveURL resolves ref against base. Absolute refs and refs that fail to
// parse are returned unchanged.
func ResolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// New returns the driver registered under name.
func New(name string) (Driver, error) {
	switch name {
	case "", DriverPlaywright:
		return NewPlaywright(), nil
	case DriverChromedp:
		return NewChromedp(), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", name)
	}
}
