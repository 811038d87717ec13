package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lance13c/cdplink/internal/logging"
)

// BrowserVersion is the result of the CDP Browser.getVersion command.
type BrowserVersion struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

type cdpRequest struct {
	ID     int         `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type cdpResponse struct {
	ID     int             `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Preflight dials the live-session URL and issues Browser.getVersion, so a
// session that accepts TCP but never speaks CDP fails fast and with a clear error.
func Preflight(ctx context.Context, wsURL string) (*BrowserVersion, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, httpResp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if httpResp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed with status %d: %w", wsURL, httpResp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to WebSocket %s: %w", wsURL, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	const requestID = 1
	if err := conn.WriteJSON(cdpRequest{ID: requestID, Method: "Browser.getVersion", Params: struct{}{}}); err != nil {
		return nil, fmt.Errorf("failed to send Browser.getVersion: %w", err)
	}

	for {
		var resp cdpResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("failed to read Browser.getVersion response: %w", err)
		}
		if resp.ID != requestID {
			// events carry no id
			logging.Debug("Preflight: skipping message %q", resp.Method)
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("Browser.getVersion failed: %s (code %d)", resp.Error.Message, resp.Error.Code)
		}

		var version BrowserVersion
		if err := json.Unmarshal(resp.Result, &version); err != nil {
			return nil, fmt.Errorf("malformed Browser.getVersion result: %w", err)
		}
		return &version, nil
	}
}
