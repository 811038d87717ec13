// Package interact holds single-purpose page actions and poll loops that
// operate on an already open page.
package interact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/logging"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrTextNotFound    = errors.New("text not found")
)

func sleeper(s clock.SleepFunc) clock.SleepFunc {
	if s == nil {
		return clock.Sleep
	}
	return s
}

// ClickOptions for ClickTimes. Zero values mean one click and a 2s delay.
type ClickOptions struct {
	Times int
	Delay time.Duration
	Sleep clock.SleepFunc
}

// ClickTimes clicks selector Times times, waiting Delay before each click and
// once more after the last.
func ClickTimes(ctx context.Context, p browser.Page, selector string, opts ClickOptions) error {
	if opts.Times <= 0 {
		opts.Times = 1
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	sleep := sleeper(opts.Sleep)

	for i := 1; i <= opts.Times; i++ {
		if err := sleep(ctx, opts.Delay); err != nil {
			return err
		}
		if err := p.WaitForSelector(ctx, selector); err != nil {
			return err
		}
		if err := p.Click(ctx, selector); err != nil {
			return fmt.Errorf("click %d/%d on %q: %w", i, opts.Times, selector, err)
		}
	}
	return sleep(ctx, opts.Delay)
}

// ClickByLabel clicks the first selector match whose trimmed text equals label,
// ignoring case. It reports false when nothing matched.
func ClickByLabel(ctx context.Context, p browser.Page, selector, label string) (bool, error) {
	if err := p.WaitForSelector(ctx, selector); err != nil {
		return false, err
	}

	elements, err := p.QuerySelectorAll(ctx, selector)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(strings.TrimSpace(label))
	for _, el := range elements {
		text, err := el.TextContent(ctx)
		if err != nil {
			return false, err
		}
		logging.Debug("Element text: %q", text)

		if strings.ToLower(strings.TrimSpace(text)) == want {
			if err := el.Click(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
