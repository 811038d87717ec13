// Package probe queries a browser's remote-debugging metadata service.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lance13c/cdplink/internal/logging"
)

// DefaultTimeout bounds a single metadata request.
const DefaultTimeout = 5 * time.Second

// ErrNoLiveSession is returned by Fetch callers that need a live-session URL
// when the metadata omits webSocketDebuggerUrl.
var ErrNoLiveSession = errors.New("metadata has no webSocketDebuggerUrl")

// VersionInfo is the body of GET <endpoint>/json/version.
type VersionInfo struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	UserAgent       string `json:"User-Agent"`
	V8Version       string `json:"V8-Version"`
	WebKitVersion   string `json:"WebKit-Version"`

	// WebSocketDebuggerURL is nil when the browser did not advertise a live session.
	WebSocketDebuggerURL *string `json:"webSocketDebuggerUrl,omitempty"`
}

// UnmarshalJSON accepts both the hyphenated keys Chrome sends and their
// camel-case spellings used by some proxies.
func (v *VersionInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		Browser              string  `json:"Browser"`
		ProtocolVersion      string  `json:"Protocol-Version"`
		ProtocolVersionAlt   string  `json:"ProtocolVersion"`
		UserAgent            string  `json:"User-Agent"`
		UserAgentAlt         string  `json:"UserAgent"`
		V8Version            string  `json:"V8-Version"`
		V8VersionAlt         string  `json:"V8Version"`
		WebKitVersion        string  `json:"WebKit-Version"`
		WebKitVersionAlt     string  `json:"WebKitVersion"`
		WebSocketDebuggerURL *string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*v = VersionInfo{
		Browser:              raw.Browser,
		ProtocolVersion:      firstNonEmpty(raw.ProtocolVersion, raw.ProtocolVersionAlt),
		UserAgent:            firstNonEmpty(raw.UserAgent, raw.UserAgentAlt),
		V8Version:            firstNonEmpty(raw.V8Version, raw.V8VersionAlt),
		WebKitVersion:        firstNonEmpty(raw.WebKitVersion, raw.WebKitVersionAlt),
		WebSocketDebuggerURL: raw.WebSocketDebuggerURL,
	}
	return nil
}

// LiveSessionURL reports the advertised session URL, if any.
func (v *VersionInfo) LiveSessionURL() (string, bool) {
	if v == nil || v.WebSocketDebuggerURL == nil || *v.WebSocketDebuggerURL == "" {
		return "", false
	}
	return *v.WebSocketDebuggerURL, true
}

// Prober fetches endpoint metadata. It never retries; that is the caller's job.
type Prober struct {
	client *resty.Client
}

// New creates a prober whose requests time out after timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
	}
}

// VersionURL returns the metadata URL for endpoint.
func VersionURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/json/version"
}

// Fetch performs the metadata request and reports any failure as an error.
func (p *Prober) Fetch(ctx context.Context, endpoint string) (*VersionInfo, []byte, error) {
	resp, err := p.client.R().SetContext(ctx).Get(VersionURL(endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, resp.Body(), fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status())
	}

	var info VersionInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, resp.Body(), fmt.Errorf("malformed metadata: %w", err)
	}
	return &info, resp.Body(), nil
}

// Probe returns the live-session URL advertised by endpoint. Any failure is
// logged and reported as ok=false.
func (p *Prober) Probe(ctx context.Context, endpoint string) (string, bool) {
	url := VersionURL(endpoint)

	info, raw, err := p.Fetch(ctx, endpoint)
	if err != nil {
		logging.Error("Failed to fetch browser WebSocket URL from %s: %v", url, err)
		return "", false
	}

	logging.Info("Browser info from %s: %s", url, compact(raw))

	wsURL, ok := info.LiveSessionURL()
	if !ok {
		logging.Error("Failed to fetch browser WebSocket URL from %s: %v", url, ErrNoLiveSession)
		return "", false
	}
	return wsURL, true
}

func compact(raw []byte) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
