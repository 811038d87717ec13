// Package supervisor launches and force-terminates the local browser.
//
// Only macOS is supported. Launch and Terminate fail with
// ErrUnsupportedPlatform anywhere else, before touching the filesystem or the
// process table.
//
// Concurrent Launch calls are not serialized and may start duplicate browsers
// that compete for the same debugging port and profile directory.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/lance13c/cdplink/internal/clock"
	"github.com/lance13c/cdplink/internal/config"
	"github.com/lance13c/cdplink/internal/logging"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

const (
	SupportedOS        = "darwin"
	DefaultProcessName = "Google Chrome"
	DefaultExecutable  = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
)

// Supervisor tracks the browsers it launched.
type Supervisor struct {
	GOOS           string
	ProcessName    string
	ExecutablePath string
	Port           int
	UserAgent      string
	StartURL       string
	PollInterval   time.Duration
	Runner         Runner
	Sleep          clock.SleepFunc

	mu      sync.Mutex
	procs   []*Process
	signals chan os.Signal
	stop    chan struct{}
	exit    func(code int)
}

// New creates a supervisor for the host OS from the local browser settings.
func New(cfg config.LocalConfig) *Supervisor {
	s := &Supervisor{
		GOOS:           runtime.GOOS,
		ProcessName:    DefaultProcessName,
		ExecutablePath: cfg.ExecutablePath,
		Port:           cfg.Port,
		UserAgent:      cfg.UserAgent,
		StartURL:       cfg.StartURL,
		PollInterval:   cfg.TerminatePollInterval,
		Runner:         ExecRunner{},
		Sleep:          clock.Sleep,
		exit:           os.Exit,
	}
	if s.ExecutablePath == "" {
		s.ExecutablePath = DefaultExecutable
	}
	if s.Port == 0 {
		s.Port = config.DefaultLocalPort
	}
	if s.UserAgent == "" {
		s.UserAgent = config.DefaultUserAgent
	}
	if s.StartURL == "" {
		s.StartURL = "about:blank"
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	return s
}

func (s *Supervisor) supported() error {
	if s.GOOS != SupportedOS {
		return fmt.Errorf("%w: %s (only %s is supported)", ErrUnsupportedPlatform, s.GOOS, SupportedOS)
	}
	return nil
}

func (s *Supervisor) runner() Runner {
	if s.Runner == nil {
		return ExecRunner{}
	}
	return s.Runner
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep == nil {
		return clock.Sleep(ctx, d)
	}
	return s.Sleep(ctx, d)
}

// IsAnyInstanceRunning reports whether a process with the canonical name
// exists. A failed query counts as none running.
func (s *Supervisor) IsAnyInstanceRunning(ctx context.Context) bool {
	code, err := s.runner().Run(ctx, "pgrep", "-x", s.ProcessName)
	switch {
	case err != nil:
		logging.Warn("Process query for %q failed: %v", s.ProcessName, err)
		return false
	case code == 0:
		return true
	case code == 1:
		return false
	default:
		logging.Warn("Process query for %q exited with status %d", s.ProcessName, code)
		return false
	}
}

// Args returns the browser command line for an absolute profile directory.
func (s *Supervisor) Args(profileDir string) []string {
	return []string{
		"--remote-debugging-port=" + strconv.Itoa(s.Port),
		"--user-data-dir=" + profileDir,
		"--no-sandbox",
		"--disable-software-rasterizer",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--metrics-recording-only",
		"--disable-features=Translate,OptimizationHints,MediaRouter",
		"--user-agent=" + s.UserAgent,
		s.StartURL,
	}
}

// Launch starts a detached browser on the debugging port with an isolated
// profile. A failure to start the executable is delivered on the returned
// Process's Errors channel; Launch itself errors only for the platform check
// and the profile directory.
func (s *Supervisor) Launch(ctx context.Context, profileDir string) (*Process, error) {
	if err := s.supported(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absProfile, err := filepath.Abs(profileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile directory %q: %w", profileDir, err)
	}
	if err := os.MkdirAll(absProfile, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	cmd := exec.Command(s.ExecutablePath, s.Args(absProfile)...)
	detach(cmd)

	p := newProcess(cmd)
	s.track(p)
	p.start()

	logging.Info("Launched browser (pid %d) on port %d with profile %s", p.PID(), s.Port, absProfile)
	return p, nil
}

// track records p and installs the exit hooks on first use.
func (s *Supervisor) track(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.procs = append(s.procs, p)
	if s.signals != nil {
		return
	}

	s.signals = make(chan os.Signal, 1)
	s.stop = make(chan struct{})
	signal.Notify(s.signals, os.Interrupt, syscall.SIGTERM)

	go func(sigs <-chan os.Signal, stop <-chan struct{}) {
		select {
		case sig := <-sigs:
			s.onSignal(sig)
		case <-stop:
		}
	}(s.signals, s.stop)
}

func (s *Supervisor) onSignal(sig os.Signal) {
	logging.Warn("Received %v, killing launched browsers", sig)
	s.killAll()

	code := 143
	if sig == os.Interrupt {
		code = 130
	}
	exit := s.exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code)
}

func (s *Supervisor) killAll() {
	s.mu.Lock()
	procs := append([]*Process(nil), s.procs...)
	s.mu.Unlock()

	for _, p := range procs {
		if err := p.Kill(); err != nil {
			logging.Warn("%v", err)
		}
	}
}

// Tracked returns the processes launched so far.
func (s *Supervisor) Tracked() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Shutdown kills every launched browser and removes the signal handler.
// Callers defer it on their normal exit path.
func (s *Supervisor) Shutdown() {
	s.killAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.procs = nil
	if s.signals != nil {
		signal.Stop(s.signals)
		close(s.stop)
		s.signals = nil
		s.stop = nil
	}
}

// Close is Shutdown for use with defer and io.Closer.
func (s *Supervisor) Close() error {
	s.Shutdown()
	return nil
}

// Terminate force-kills every process with the canonical name, then polls
// until none remain. The poll has no attempt bound; cancel ctx to abandon it.
func (s *Supervisor) Terminate(ctx context.Context) error {
	if err := s.supported(); err != nil {
		return err
	}

	code, err := s.runner().Run(ctx, "pkill", "-9", "-x", s.ProcessName)
	switch {
	case err != nil:
		logging.Warn("pkill %q failed: %v", s.ProcessName, err)
	case code > 1:
		logging.Warn("pkill %q exited with status %d", s.ProcessName, code)
	}

	for poll := 1; ; poll++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.IsAnyInstanceRunning(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			logging.Info("All %q processes terminated after %d poll(s)", s.ProcessName, poll)
			return nil
		}
		logging.Debug("%q still running (poll %d), waiting %v", s.ProcessName, poll, s.PollInterval)
		if err := s.sleep(ctx, s.PollInterval); err != nil {
			return err
		}
	}
}
