// Package session turns a connected browser into a usable page.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/logging"
)

var (
	ErrNoPages         = errors.New("no pages found")
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// DefaultSettleDelay gives late-attaching pages time to appear.
const DefaultSettleDelay = time.Second

type Viewport = browser.Viewport

type options struct {
	settleDelay time.Duration
	sleep       clock.SleepFunc
}

type Option func(*options)

func WithSettleDelay(d time.Duration) Option {
	return func(o *options) { o.settleDelay = d }
}

// WithSleep replaces the wait used for the settle delay and login polling.
func WithSleep(sleep clock.SleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

func buildOptions(opts []Option) options {
	o := options{settleDelay: DefaultSettleDelay, sleep: clock.Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FirstPage waits the settle delay, then returns the browser's first page
// with vp applied.
func FirstPage(ctx context.Context, b browser.Browser, vp Viewport, opts ...Option) (browser.Page, error) {
	o := buildOptions(opts)

	if err := o.sleep(ctx, o.settleDelay); err != nil {
		return nil, err
	}

	page, err := first(ctx, b)
	if err != nil {
		return nil, err
	}

	if err := page.SetViewport(ctx, vp); err != nil {
		return nil, fmt.Errorf("failed to set viewport %dx%d: %w", vp.Width, vp.Height, err)
	}
	return page, nil
}

func first(ctx context.Context, b browser.Browser) (browser.Page, error) {
	pages, err := b.Pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	logging.Debug("Found %d page(s), using the first", len(pages))
	return pages[0], nil
}

// WaitForLogin navigates the first page to targetURL, then polls its hostname
// every pollInterval until it equals loggedInHostname. pollInterval must be
// positive. There is no timeout; the wait ends only when the hostname matches
// or ctx is done.
func WaitForLogin(ctx context.Context, b browser.Browser, targetURL, loggedInHostname string, pollInterval time.Duration, opts ...Option) error {
	if pollInterval <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidInterval, pollInterval)
	}
	o := buildOptions(opts)

	page, err := first(ctx, b)
	if err != nil {
		return err
	}
	if err := page.Goto(ctx, targetURL); err != nil {
		return err
	}

	logging.Info("Waiting for login to reach %s", loggedInHostname)
	for check := 1; ; check++ {
		host, err := hostname(ctx, page)
		switch {
		case err != nil:
			logging.Debug("Login check %d: %v", check, err)
		case host == loggedInHostname:
			logging.Info("Login complete after %d check(s)", check)
			return nil
		default:
			logging.Debug("Login check %d: still on %s", check, host)
		}

		if err := o.sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func hostname(ctx context.Context, page browser.Page) (string, error) {
	raw, err := page.URL(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable page URL %q: %w", raw, err)
	}
	return u.Hostname(), nil
}
