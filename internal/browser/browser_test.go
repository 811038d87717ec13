package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cdpServer upgrades every request and answers with respond.
func cdpServer(t *testing.T, respond func(conn *websocket.Conn, req cdpRequest)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req cdpRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		respond(conn, req)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/abc"
}

func TestPreflight(t *testing.T) {
	wsURL := cdpServer(t, func(conn *websocket.Conn, req cdpRequest) {
		assert.Equal(t, "Browser.getVersion", req.Method)
		// an event first, which must be skipped
		_ = conn.WriteJSON(map[string]interface{}{"method": "Target.targetCreated", "params": map[string]string{}})
		_ = conn.WriteJSON(map[string]interface{}{
			"id": req.ID,
			"result": map[string]string{
				"protocolVersion": "1.3",
				"product":         "Chrome/131.0.6778.86",
			},
		})
	})

	version, err := Preflight(context.Background(), wsURL)
	require.NoError(t, err)
	assert.Equal(t, "1.3", version.ProtocolVersion)
	assert.Equal(t, "Chrome/131.0.6778.86", version.Product)
}

func TestPreflightCDPError(t *testing.T) {
	wsURL := cdpServer(t, func(conn *websocket.Conn, req cdpRequest) {
		_ = conn.WriteJSON(map[string]interface{}{
			"id":    req.ID,
			"error": map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	})

	_, err := Preflight(context.Background(), wsURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestPreflightHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Preflight(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestListTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/list", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]DebuggerTarget{
			{ID: "1", Type: "page", URL: "https://example.com"},
			{ID: "2", Type: "service_worker"},
			{ID: "3", Type: "page", URL: "about:blank"},
		})
	}))
	defer srv.Close()

	targets, err := ListTargets(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, targets, 3)

	pages := PageTargets(targets)
	require.Len(t, pages, 2)
	assert.Equal(t, "1", pages[0].ID)
	assert.Equal(t, "3", pages[1].ID)
}

func TestListTargetsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := ListTargets(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestNewConnector(t *testing.T) {
	c, err := NewConnector("")
	require.NoError(t, err)
	assert.IsType(t, &ChromeDP{}, c)

	c, err = NewConnector(DriverPlaywright)
	require.NoError(t, err)
	assert.IsType(t, &Playwright{}, c)

	_, err = NewConnector("selenium")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestChromeDPConnectRequiresLiveSessionURL(t *testing.T) {
	_, err := NewChromeDP().Connect(context.Background(), Target{Endpoint: "http://localhost:1"})
	assert.Error(t, err)
}

func TestChromeDPConnectFailsPreflight(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewChromeDP().Connect(context.Background(), Target{
		Endpoint:     srv.URL,
		WebSocketURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/x",
	})
	assert.Error(t, err)
}

func TestDecodeInto(t *testing.T) {
	var n int
	require.NoError(t, decodeInto(float64(3), &n))
	assert.Equal(t, 3, n)

	var text string
	require.NoError(t, decodeInto("hello", &text))
	assert.Equal(t, "hello", text)

	assert.NoError(t, decodeInto("ignored", nil))
}
