package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/lance13c/cdplink/internal/logging"
)

// ChromeDP connects through chromedp's remote allocator.
type ChromeDP struct {
	// SkipPreflight disables the Browser.getVersion handshake before attaching.
	SkipPreflight bool
}

// NewChromeDP creates the default connector.
func NewChromeDP() *ChromeDP {
	return &ChromeDP{}
}

// Connect verifies the live session and prepares a remote allocator. Pages are
// attached lazily, so connecting never opens a new tab.
func (c *ChromeDP) Connect(ctx context.Context, t Target) (Browser, error) {
	if t.WebSocketURL == "" {
		return nil, fmt.Errorf("no live-session URL for %s", t.Endpoint)
	}

	if !c.SkipPreflight {
		version, err := Preflight(ctx, t.WebSocketURL)
		if err != nil {
			return nil, err
		}
		logging.Debug("Preflight OK: %s (protocol %s)", version.Product, version.ProtocolVersion)
	}

	// The allocator outlives ctx; it is released by Disconnect.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), t.WebSocketURL, chromedp.NoModifyURL)

	return &chromedpBrowser{
		target:      t,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pages:       make(map[string]*chromedpPage),
	}, nil
}

type chromedpBrowser struct {
	target      Target
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*chromedpPage
	closed bool
}

// Pages lists page targets over HTTP and attaches a chromedp context to each.
// Contexts are cached per target ID so repeated calls return the same pages.
func (b *chromedpBrowser) Pages(ctx context.Context) ([]Page, error) {
	targets, err := ListTargets(ctx, b.target.Endpoint)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrDisconnected
	}

	var pages []Page
	for _, t := range PageTargets(targets) {
		p, ok := b.pages[t.ID]
		if !ok {
			p, err = b.attach(t.ID)
			if err != nil {
				return nil, err
			}
			b.pages[t.ID] = p
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// attach binds a chromedp context to an existing tab. The bare Run allocates
// the connection on pageCtx itself, so it lives until the page is released
// rather than until the first action returns.
func (b *chromedpBrowser) attach(id string) (*chromedpPage, error) {
	pageCtx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithTargetID(target.ID(id)))
	if err := chromedp.Run(pageCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to page %s: %w", id, err)
	}
	return &chromedpPage{ctx: pageCtx, cancel: cancel, id: id}, nil
}

// Disconnect detaches from every page and drops the allocator. Tabs stay open
// and the remote browser keeps running.
func (b *chromedpBrowser) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrDisconnected
	}
	b.closed = true

	for id, p := range b.pages {
		p.release()
		delete(b.pages, id)
	}
	b.allocCancel()
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
}

// release ends the page context. chromedp closes any target whose ID it still
// holds when the context ends, so the ID is cleared first and only the session
// is detached.
func (p *chromedpPage) release() {
	if c := chromedp.FromContext(p.ctx); c != nil && c.Target != nil {
		c.Target.TargetID = ""
	}
	p.cancel()
}

// run executes actions on the attached page context while honouring the
// caller's ctx. Cancelling runCtx aborts only these actions.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return location, nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *chromedpPage) WaitForSelector(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) QuerySelector(ctx context.Context, selector string) (Element, error) {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &chromedpElement{page: p, node: nodes[0]}, nil
}

func (p *chromedpPage) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromedpElement{page: p, node: n})
	}
	return elements, nil
}

// nodes queries without waiting, so an absent selector yields an empty slice.
func (p *chromedpPage) nodes(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	return nodes, nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) SetViewport(ctx context.Context, viewport Viewport) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(viewport.Width), int64(viewport.Height)))
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

type chromedpElement struct {
	page *chromedpPage
	node *cdp.Node
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.page.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx)
		}),
		chromedp.MouseClickNode(e.node),
	)
}

func (e *chromedpElement) TextContent(ctx context.Context) (string, error) {
	var text string
	err := e.page.run(ctx, chromedp.TextContent([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromedpElement) UploadFile(ctx context.Context, paths ...string) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.SetFileInputFiles(paths).WithNodeID(e.node.NodeID).Do(ctx)
	}))
}
