package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lance13c/cdplink/internal/logging"
)

const chromeVersionBody = `{
   "Browser": "Chrome/131.0.6778.86",
   "Protocol-Version": "1.3",
   "User-Agent": "Mozilla/5.0",
   "V8-Version": "13.1.201.15",
   "WebKit-Version": "537.36",
   "webSocketDebuggerUrl": "ws://localhost:21222/devtools/browser/abc"
}`

func versionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeReturnsLiveSessionURL(t *testing.T) {
	logs, restore := logging.Observe(zapcore.DebugLevel)
	defer restore()

	srv := versionServer(t, http.StatusOK, chromeVersionBody)

	wsURL, ok := New(time.Second).Probe(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "ws://localhost:21222/devtools/browser/abc", wsURL)

	info := logs.FilterLevelExact(zapcore.InfoLevel).All()
	require.Len(t, info, 1)
	assert.Contains(t, info[0].Message, "Chrome/131.0.6778.86")
}

func TestProbeToleratesTrailingSlash(t *testing.T) {
	srv := versionServer(t, http.StatusOK, chromeVersionBody)

	_, ok := New(time.Second).Probe(context.Background(), srv.URL+"/")
	assert.True(t, ok)
}

func TestProbeUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"webSocketDebuggerUrl":"ws://x"}`},
		{"not found", http.StatusNotFound, ""},
		{"malformed body", http.StatusOK, `{"Browser": `},
		{"missing url", http.StatusOK, `{"Browser":"Chrome/131"}`},
		{"empty url", http.StatusOK, `{"Browser":"Chrome/131","webSocketDebuggerUrl":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, restore := logging.Observe(zapcore.DebugLevel)
			defer restore()

			srv := versionServer(t, tt.status, tt.body)

			wsURL, ok := New(time.Second).Probe(context.Background(), srv.URL)
			assert.False(t, ok)
			assert.Empty(t, wsURL)
			assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
		})
	}
}

func TestProbeNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, ok := New(time.Second).Probe(context.Background(), endpoint)
	assert.False(t, ok)
}

func TestProbeMakesSingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, ok := New(time.Second).Probe(context.Background(), srv.URL)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestFetchAcceptsCamelCaseKeys(t *testing.T) {
	srv := versionServer(t, http.StatusOK, `{
		"Browser": "HeadlessChrome/120",
		"ProtocolVersion": "1.3",
		"UserAgent": "UA",
		"V8Version": "12",
		"WebKitVersion": "537.36"
	}`)

	info, _, err := New(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "1.3", info.ProtocolVersion)
	assert.Equal(t, "UA", info.UserAgent)
	assert.Equal(t, "12", info.V8Version)
	assert.Equal(t, "537.36", info.WebKitVersion)

	_, ok := info.LiveSessionURL()
	assert.False(t, ok)
}

func TestVersionInfoMarshalOmitsMissingURL(t *testing.T) {
	out, err := json.Marshal(VersionInfo{Browser: "Chrome"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "webSocketDebuggerUrl")
}
