// Package browser defines the browser-control capabilities the connection
// manager and page helpers depend on, with chromedp and Playwright backends.
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDisconnected  = errors.New("browser session is disconnected")
	ErrUnknownDriver = errors.New("unknown browser driver")
)

// Target identifies what a Connector attaches to: the HTTP debugging endpoint
// and the live-session URL it advertised.
type Target struct {
	Endpoint     string
	WebSocketURL string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Connector opens a control session against a debugging endpoint.
type Connector interface {
	Connect(ctx context.Context, target Target) (Browser, error)
}

// Browser is an open control session.
type Browser interface {
	Pages(ctx context.Context) ([]Page, error)
	Disconnect(ctx context.Context) error
}

// Page is a single tab of a connected browser.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript expression and decodes its JSON value into out.
	// A nil out discards the result.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	WaitForSelector(ctx context.Context, selector string) error
	// QuerySelector returns nil, nil when no element matches.
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Click(ctx context.Context, selector string) error
	SetViewport(ctx context.Context, viewport Viewport) error
	// Content returns the serialized document HTML.
	Content(ctx context.Context) (string, error)
}

// Element is a handle to a DOM node on a Page.
type Element interface {
	Click(ctx context.Context) error
	TextContent(ctx context.Context) (string, error)
	UploadFile(ctx context.Context, paths ...string) error
}

// Driver names accepted by NewConnector.
const (
	DriverChromeDP   = "chromedp"
	DriverPlaywright = "playwright"
)

// NewConnector returns the connector for a driver name.
func NewConnector(driver string) (Connector, error) {
	switch driver {
	case "", DriverChromeDP:
		return NewChromeDP(), nil
	case DriverPlaywright:
		return NewPlaywright(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
