package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/supervisor"
)

const testWS = "ws://localhost:21222/devtools/browser/abc"

// fakeProber answers from a script; the last entry repeats.
type fakeProber struct {
	mu        sync.Mutex
	available []bool
	endpoints []string
}

func (f *fakeProber) Probe(ctx context.Context, endpoint string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endpoints = append(f.endpoints, endpoint)
	ok := f.available[0]
	if len(f.available) > 1 {
		f.available = f.available[1:]
	}
	if !ok {
		return "", false
	}
	return testWS, true
}

func (f *fakeProber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.endpoints)
}

func unavailable(n int) []bool {
	return make([]bool, n)
}

type fakeBrowser struct {
	mu          sync.Mutex
	disconnects int
	err         error
}

func (b *fakeBrowser) Pages(ctx context.Context) ([]browser.Page, error) {
	return nil, nil
}

func (b *fakeBrowser) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
	return b.err
}

// fakeConnector fails while errs has entries, then succeeds.
type fakeConnector struct {
	mu      sync.Mutex
	errs    []error
	always  error
	targets []browser.Target
	opened  []*fakeBrowser
}

func (c *fakeConnector) Connect(ctx context.Context, t browser.Target) (browser.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.targets = append(c.targets, t)
	if c.always != nil {
		return nil, c.always
	}
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	b := &fakeBrowser{}
	c.opened = append(c.opened, b)
	return b, nil
}

func (c *fakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.targets)
}

type fakeSupervisor struct {
	mu        sync.Mutex
	launches  []string
	launchErr error
	ready     chan struct{}
}

func (s *fakeSupervisor) Launch(ctx context.Context, profileDir string) (*supervisor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches = append(s.launches, profileDir)
	if s.launchErr != nil {
		return nil, s.launchErr
	}
	return &supervisor.Process{}, nil
}

func (s *fakeSupervisor) WaitActivePort(ctx context.Context, profileDir string) (<-chan struct{}, error) {
	if s.ready == nil {
		return nil, errors.New("not watching")
	}
	return s.ready, nil
}

func (s *fakeSupervisor) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.launches)
}
