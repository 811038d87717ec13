package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright connects over CDP through a Playwright driver. The driver is
// installed and started on first use; browsers are never downloaded.
type Playwright struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywright creates a connector whose driver starts lazily.
func NewPlaywright() *Playwright {
	return &Playwright{}
}

func (c *Playwright) driver() (*playwright.Playwright, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pw != nil {
		return c.pw, nil
	}

	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	c.pw = pw
	return pw, nil
}

// Connect attaches to the debugging endpoint.
func (c *Playwright) Connect(ctx context.Context, t Target) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := c.driver()
	if err != nil {
		return nil, err
	}

	b, err := pw.Chromium.ConnectOverCDP(t.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP to %s: %w", t.Endpoint, err)
	}
	return &playwrightBrowser{browser: b}, nil
}

// Stop shuts the driver down. Browsers it connected to keep running.
func (c *Playwright) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pw == nil {
		return nil
	}
	err := c.pw.Stop()
	c.pw = nil
	return err
}

type playwrightBrowser struct {
	browser playwright.Browser
}

func (b *playwrightBrowser) Pages(ctx context.Context) ([]Page, error) {
	if !b.browser.IsConnected() {
		return nil, ErrDisconnected
	}

	var pages []Page
	for _, bc := range b.browser.Contexts() {
		for _, p := range bc.Pages() {
			pages = append(pages, &playwrightPage{page: p})
		}
	}
	return pages, nil
}

func (b *playwrightBrowser) Disconnect(ctx context.Context) error {
	if !b.browser.IsConnected() {
		return ErrDisconnected
	}
	return b.browser.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *playwrightPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := p.page.Evaluate(expression)
	if err != nil {
		return err
	}
	return decodeInto(v, out)
}

// decodeInto re-encodes an evaluation result so it lands in out the same way a
// CDP JSON value would.
func decodeInto(v interface{}, out interface{}) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.WaitForSelector(selector); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) QuerySelector(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	if h == nil {
		return nil, nil
	}
	return &playwrightElement{handle: h}, nil
}

func (p *playwrightPage) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements, nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Click(selector); err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) SetViewport(ctx context.Context, viewport Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.SetViewportSize(viewport.Width, viewport.Height)
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.handle.Click()
}

func (e *playwrightElement) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.TextContent()
}

func (e *playwrightElement) UploadFile(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.handle.SetInputFiles(paths)
}
