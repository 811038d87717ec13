package interact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/logging"
)

var whitespace = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return whitespace.ReplaceAllString(s, " ")
}

// FindOptions for WaitForElementContainingText. Zero values mean 100 retries,
// an 8s delay and div elements.
type FindOptions struct {
	MaxRetries int
	Delay      time.Duration
	Selector   string
	Sleep      clock.SleepFunc
}

// WaitForElementContainingText polls for the first Selector element, in
// document order, whose whitespace-collapsed text contains text.
func WaitForElementContainingText(ctx context.Context, p browser.Page, text string, opts FindOptions) (browser.Element, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 100
	}
	if opts.Delay <= 0 {
		opts.Delay = 8 * time.Second
	}
	if opts.Selector == "" {
		opts.Selector = "div"
	}
	sleep := sleeper(opts.Sleep)

	logging.Info("Waiting for element containing text: %q", text)
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if err := sleep(ctx, opts.Delay); err != nil {
			return nil, err
		}

		html, err := p.Content(ctx)
		if err != nil {
			logging.Warn("Attempt %d: failed to read page: %v", attempt, err)
			continue
		}

		index, err := matchIndex(html, opts.Selector, text)
		if err != nil {
			logging.Warn("Attempt %d: %v", attempt, err)
			continue
		}
		if index < 0 {
			continue
		}

		elements, err := p.QuerySelectorAll(ctx, opts.Selector)
		if err != nil {
			return nil, err
		}
		if index < len(elements) {
			return elements[index], nil
		}
		// the DOM changed between the snapshot and the query
		logging.Debug("Attempt %d: match %d gone, %d %s elements left", attempt, index, len(elements), opts.Selector)
	}

	return nil, fmt.Errorf("%w: element containing text %q not found after %d attempts", ErrElementNotFound, text, opts.MaxRetries)
}

// matchIndex returns the position of the first selector match containing
// text, or -1.
func matchIndex(html, selector, text string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return -1, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	index := -1
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(collapse(s.Text()), text) {
			index = i
			return false
		}
		return true
	})
	return index, nil
}
