// Package browsertest provides in-memory Browser, Page and Element fakes.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lance13c/cdplink/internal/browser"
)

// Browser serves a fixed page list.
type Browser struct {
	mu          sync.Mutex
	PageList    []browser.Page
	PagesErr    error
	PagesCalls  int
	Disconnects int
}

func (b *Browser) Pages(ctx context.Context) ([]browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PagesCalls++
	if b.PagesErr != nil {
		return nil, b.PagesErr
	}
	return append([]browser.Page(nil), b.PageList...), nil
}

func (b *Browser) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Disconnects++
	return nil
}

// Page records every call. The hooks override the static fields; each gets
// the 1-based call number.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	HTML       string
	Elements   map[string][]*Element

	URLFunc      func(call int) string
	ContentFunc  func(call int) string
	EvaluateFunc func(expression string, call int) (interface{}, error)
	WaitErr      error

	Navigations []string
	Viewports   []browser.Viewport
	Clicks      []string
	Waited      []string

	urlCalls      int
	contentCalls  int
	evaluateCalls int
}

func (p *Page) Goto(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	p.CurrentURL = url
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlCalls++
	if p.URLFunc != nil {
		return p.URLFunc(p.urlCalls), nil
	}
	return p.CurrentURL, nil
}

// URLCalls is the number of URL reads so far.
func (p *Page) URLCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urlCalls
}

func (p *Page) Evaluate(ctx context.Context, expression string, out interface{}) error {
	p.mu.Lock()
	p.evaluateCalls++
	call := p.evaluateCalls
	fn := p.EvaluateFunc
	p.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("unexpected evaluate: %s", expression)
	}
	v, err := fn(expression, call)
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// EvaluateCalls is the number of evaluations so far.
func (p *Page) EvaluateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evaluateCalls
}

func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Waited = append(p.Waited, selector)
	return p.WaitErr
}

func (p *Page) QuerySelector(ctx context.Context, selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.Elements[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := make([]browser.Element, 0, len(p.Elements[selector]))
	for _, e := range p.Elements[selector] {
		els = append(els, e)
	}
	return els, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Clicks = append(p.Clicks, selector)
	return nil
}

func (p *Page) SetViewport(ctx context.Context, viewport browser.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Viewports = append(p.Viewports, viewport)
	return nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentCalls++
	if p.ContentFunc != nil {
		return p.ContentFunc(p.contentCalls), nil
	}
	return p.HTML, nil
}

// Element is a fake DOM node.
type Element struct {
	mu       sync.Mutex
	Text     string
	Clicks   int
	Uploaded [][]string
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clicks++
	return nil
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Text, nil
}

func (e *Element) UploadFile(ctx context.Context, paths ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Uploaded = append(e.Uploaded, paths)
	return nil
}
