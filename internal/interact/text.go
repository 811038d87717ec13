package interact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/logging"
)

const bodyTextExpression = `(document.body || {innerText: ""}).innerText || ""`

// BodyText returns the page body's rendered text, or "" without a body.
func BodyText(ctx context.Context, p browser.Page) (string, error) {
	var text string
	if err := p.Evaluate(ctx, bodyTextExpression, &text); err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	return text, nil
}

// WaitOptions for WaitForTextInBody. Zero values mean 50 attempts and an 8s delay.
type WaitOptions struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       clock.SleepFunc
}

// WaitForTextInBody polls the body text until it contains text.
func WaitForTextInBody(ctx context.Context, p browser.Page, text string, opts WaitOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 50
	}
	if opts.Delay <= 0 {
		opts.Delay = 8 * time.Second
	}
	sleep := sleeper(opts.Sleep)

	start := time.Now()
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		logging.Info("Waiting for text to appear, attempt %d, elapsed %.1fs", attempt, time.Since(start).Seconds())
		if err := sleep(ctx, opts.Delay); err != nil {
			return err
		}

		body, err := BodyText(ctx, p)
		if err != nil {
			logging.Warn("%v", err)
			continue
		}
		logging.Debug("Body text: %s", collapse(body))

		if strings.Contains(body, text) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q not in page body after %d attempts", ErrTextNotFound, text, opts.MaxAttempts)
}
