// Package connection finds a browser's debugging endpoint, opens a control
// session with bounded linear-backoff retries, and can fall back to launching
// a local browser.
//
// A Manager holds at most one live handle and is not safe for concurrent
// Connect calls.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lance13c/cdplink/internal/browser"
	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/config"
	"github.com/lance13c/cdplink/internal/logging"
	"github.com/lance13c/cdplink/internal/probe"
	"github.com/lance13c/cdplink/internal/supervisor"
)

var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrLaunchTimeout    = errors.New("launch timed out")
	ErrNoSupervisor     = errors.New("no process supervisor configured")
)

// AttemptError is a control-session failure on one attempt.
type AttemptError struct {
	Attempt  int
	Endpoint string
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d against %s: %v", e.Attempt, e.Endpoint, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Prober reports an endpoint's live-session URL, or false when it is unavailable.
type Prober interface {
	Probe(ctx context.Context, endpoint string) (string, bool)
}

// Supervisor launches the local browser.
type Supervisor interface {
	Launch(ctx context.Context, profileDir string) (*supervisor.Process, error)
	WaitActivePort(ctx context.Context, profileDir string) (<-chan struct{}, error)
}

// State of a Manager.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is a connected browser.
type Handle struct {
	ID           uuid.UUID
	Endpoint     string
	WebSocketURL string
	ConnectedAt  time.Time
	Browser      browser.Browser

	release sync.Once
}

// LocalOptions describe how the launched local browser is polled.
type LocalOptions struct {
	Port          int
	ProbeInterval time.Duration
	ProbeAttempts int
}

type Options struct {
	Endpoint   string
	Retry      RetryPolicy
	Prober     Prober
	Connector  browser.Connector
	Supervisor Supervisor // nil disables LaunchAndConnectLocal
	Local      LocalOptions
	Registerer prometheus.Registerer
	Sleep      clock.SleepFunc
}

// Manager orchestrates probing and connecting.
type Manager struct {
	retry      RetryPolicy
	prober     Prober
	connector  browser.Connector
	supervisor Supervisor
	local      LocalOptions
	metrics    *Metrics
	sleep      clock.SleepFunc

	mu       sync.Mutex
	endpoint string
	state    State
	handle   *Handle
}

// New creates a manager; zero-valued options take their defaults.
func New(opts Options) *Manager {
	m := &Manager{
		retry:      opts.Retry,
		prober:     opts.Prober,
		connector:  opts.Connector,
		supervisor: opts.Supervisor,
		local:      opts.Local,
		metrics:    NewMetrics(opts.Registerer),
		sleep:      opts.Sleep,
		endpoint:   opts.Endpoint,
		state:      StateIdle,
	}

	if m.retry == (RetryPolicy{}) {
		m.retry = DefaultRetryPolicy()
	}
	if m.prober == nil {
		m.prober = probe.New(probe.DefaultTimeout)
	}
	if m.connector == nil {
		m.connector = browser.NewChromeDP()
	}
	if m.sleep == nil {
		m.sleep = clock.Sleep
	}
	if m.endpoint == "" {
		m.endpoint = config.DefaultEndpoint
	}
	if m.local.Port == 0 {
		m.local.Port = config.DefaultLocalPort
	}
	if m.local.ProbeInterval <= 0 {
		m.local.ProbeInterval = time.Second
	}
	if m.local.ProbeAttempts < 1 {
		m.local.ProbeAttempts = 30
	}
	return m
}

// NewFromConfig wires a manager from loaded configuration.
func NewFromConfig(cfg *config.Config, reg prometheus.Registerer) (*Manager, error) {
	connector, err := browser.NewConnector(cfg.Driver)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Endpoint: cfg.Endpoint,
		Retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseWait:    cfg.Retry.BaseWait,
		},
		Prober:     probe.New(cfg.Probe.Timeout),
		Connector:  connector,
		Supervisor: supervisor.New(cfg.Local),
		Local: LocalOptions{
			Port:          cfg.Local.Port,
			ProbeInterval: cfg.Local.ProbeInterval,
			ProbeAttempts: cfg.Local.ProbeAttempts,
		},
		Registerer: reg,
	}), nil
}

// Endpoint returns the debugging endpoint the next Connect will use.
func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// SetEndpoint changes the target for subsequent Connect calls.
func (m *Manager) SetEndpoint(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoint = endpoint
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Current returns the live handle, if any.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *Manager) fail(kind string, err error) error {
	m.metrics.Failures.WithLabelValues(kind).Inc()
	m.setState(StateFailed)
	logging.Error("%v", err)
	return err
}

// Connect probes the endpoint and opens a control session, retrying up to
// MaxAttempts times. After a failed attempt k it waits k×BaseWait; the last
// attempt is never followed by a wait. A successful Connect replaces the
// current handle without releasing the previous one.
func (m *Manager) Connect(ctx context.Context) (*Handle, error) {
	if err := m.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	endpoint := m.Endpoint()
	maxAttempts := m.retry.MaxAttempts
	m.setState(StateProbing)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, m.fail(kindCancelled, err)
		}

		logging.Info("Connecting to browser at %s (attempt %d/%d)", endpoint, attempt, maxAttempts)

		wsURL, ok := m.prober.Probe(ctx, endpoint)
		if !ok {
			m.metrics.Probes.WithLabelValues(resultUnavailable).Inc()
			if attempt == maxAttempts {
				logging.Warn("Browser endpoint %s unavailable on final attempt %d/%d", endpoint, attempt, maxAttempts)
				break
			}
			if err := m.backoff(ctx, attempt, "endpoint unavailable"); err != nil {
				return nil, m.fail(kindCancelled, err)
			}
			continue
		}
		m.metrics.Probes.WithLabelValues(resultOK).Inc()

		b, err := m.connector.Connect(ctx, browser.Target{Endpoint: endpoint, WebSocketURL: wsURL})
		if err != nil {
			m.metrics.Connects.WithLabelValues(resultError).Inc()
			attemptErr := &AttemptError{Attempt: attempt, Endpoint: endpoint, Err: err}
			logging.Error("Connect failed: %v", attemptErr)

			if attempt == maxAttempts {
				return nil, m.fail(kindRetriesExhausted,
					fmt.Errorf("failed to connect to browser after multiple attempts: %w: %w", ErrRetriesExhausted, attemptErr))
			}
			if err := m.backoff(ctx, attempt, "connect failed"); err != nil {
				return nil, m.fail(kindCancelled, err)
			}
			continue
		}
		m.metrics.Connects.WithLabelValues(resultOK).Inc()

		h := &Handle{
			ID:           uuid.New(),
			Endpoint:     endpoint,
			WebSocketURL: wsURL,
			ConnectedAt:  time.Now(),
			Browser:      b,
		}

		m.mu.Lock()
		m.handle = h
		m.state = StateConnected
		m.mu.Unlock()
		m.metrics.LiveHandles.Inc()

		logging.Info("Connected to browser at %s on attempt %d (handle %s)", endpoint, attempt, h.ID)
		return h, nil
	}

	return nil, m.fail(kindRetriesExhausted,
		fmt.Errorf("could not connect to the browser after all retries: %w", ErrRetriesExhausted))
}

func (m *Manager) backoff(ctx context.Context, attempt int, reason string) error {
	wait := m.retry.Wait(attempt)
	logging.Warn("Attempt %d/%d: %s, retrying in %v", attempt, m.retry.MaxAttempts, reason, wait)
	return m.sleep(ctx, wait)
}

// LaunchAndConnectLocal starts a local browser, polls its fixed debugging
// address until it answers, then connects to it with Connect.
func (m *Manager) LaunchAndConnectLocal(ctx context.Context, profileDir string) (*Handle, error) {
	if m.supervisor == nil {
		return nil, m.fail(kindLaunch, ErrNoSupervisor)
	}

	proc, err := m.supervisor.Launch(ctx, profileDir)
	if err != nil {
		return nil, m.fail(kindLaunch, fmt.Errorf("failed to launch local browser: %w", err))
	}

	var spawnErrs <-chan error
	if proc != nil {
		spawnErrs = proc.Errors()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	ready, err := m.supervisor.WaitActivePort(watchCtx, profileDir)
	if err != nil {
		logging.Debug("Not watching profile for readiness: %v", err)
	}

	local := fmt.Sprintf("http://localhost:%d", m.local.Port)
	m.SetEndpoint(local)
	m.setState(StateProbing)

	attempts := m.local.ProbeAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case err, ok := <-spawnErrs:
			if ok {
				return nil, m.fail(kindLaunch,
					fmt.Errorf("%w: local browser failed before answering: %w", ErrLaunchTimeout, err))
			}
			spawnErrs = nil
		default:
		}

		if _, ok := m.prober.Probe(ctx, local); ok {
			m.metrics.Probes.WithLabelValues(resultOK).Inc()
			logging.Info("Local browser answering at %s after %d probe(s)", local, attempt)
			return m.Connect(ctx)
		}
		m.metrics.Probes.WithLabelValues(resultUnavailable).Inc()

		if attempt == attempts {
			break
		}
		logging.Debug("Local browser not ready (probe %d/%d), waiting %v", attempt, attempts, m.local.ProbeInterval)
		if err := m.pollWait(ctx, ready); err != nil {
			return nil, m.fail(kindCancelled, err)
		}
		if ready != nil && isClosed(ready) {
			ready = nil
		}
	}

	return nil, m.fail(kindLaunchTimeout,
		fmt.Errorf("%w: no debugging endpoint at %s after %d probes", ErrLaunchTimeout, local, attempts))
}

// pollWait sleeps one probe interval, returning early once ready closes.
func (m *Manager) pollWait(ctx context.Context, ready <-chan struct{}) error {
	if ready == nil {
		return m.sleep(ctx, m.local.ProbeInterval)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ready:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	_ = m.sleep(waitCtx, m.local.ProbeInterval)
	return ctx.Err()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Disconnect releases the handle's control session. Failures are logged,
// never returned. A nil handle is ignored.
func (m *Manager) Disconnect(ctx context.Context, h *Handle) {
	if h == nil || h.Browser == nil {
		return
	}

	h.release.Do(func() {
		if err := h.Browser.Disconnect(ctx); err != nil {
			logging.Warn("Failed to disconnect browser handle %s: %v", h.ID, err)
		} else {
			logging.Info("Disconnected browser handle %s", h.ID)
		}
		m.metrics.LiveHandles.Dec()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == h {
		m.handle = nil
	}
	m.state = StateDisconnected
}
