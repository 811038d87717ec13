package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DebuggerTarget represents a Chrome DevTools target
type DebuggerTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var targetClient = resty.New().SetTimeout(2 * time.Second)

// ListTargets fetches <endpoint>/json/list.
func ListTargets(ctx context.Context, endpoint string) ([]DebuggerTarget, error) {
	url := strings.TrimRight(endpoint, "/") + "/json/list"

	resp, err := targetClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets at %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status code from %s: %d", url, resp.StatusCode())
	}

	var targets []DebuggerTarget
	if err := json.Unmarshal(resp.Body(), &targets); err != nil {
		return nil, fmt.Errorf("failed to parse targets: %w", err)
	}
	return targets, nil
}

// PageTargets filters targets down to top-level pages, preserving order.
func PageTargets(targets []DebuggerTarget) []DebuggerTarget {
	pages := make([]DebuggerTarget, 0, len(targets))
	for _, t := range targets {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages
}
