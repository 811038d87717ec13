package supervisor

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/lance13c/cdplink/internal/logging"
)

// State is the lifecycle stage of a launched browser process.
type State int

const (
	StateSpawned State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Process is a browser launched by a Supervisor.
type Process struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	pid    int
	state  State
	killed bool

	errs chan error
	done chan struct{}
}

func newProcess(cmd *exec.Cmd) *Process {
	return &Process{
		cmd:   cmd,
		state: StateSpawned,
		errs:  make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// PID is zero until the process has started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Errors delivers a spawn failure or an unexpected exit, then closes.
func (p *Process) Errors() <-chan error {
	return p.errs
}

// Done is closed once the process has exited or failed to start.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Kill force-kills the process group. It is a no-op once the process exited.
func (p *Process) Kill() error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	pid := p.pid
	p.mu.Unlock()

	if err := killGroup(pid); err != nil {
		return fmt.Errorf("failed to kill browser process %d: %w", pid, err)
	}
	return nil
}

func (p *Process) start() {
	if err := p.cmd.Start(); err != nil {
		p.finish(fmt.Errorf("failed to start browser: %w", err))
		return
	}

	p.mu.Lock()
	p.pid = p.cmd.Process.Pid
	p.state = StateRunning
	p.mu.Unlock()

	go func() {
		p.finish(p.cmd.Wait())
	}()
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	p.state = StateExited
	killed := p.killed
	pid := p.pid
	p.mu.Unlock()

	if err != nil && !killed {
		logging.Error("Browser process %d: %v", pid, err)
		p.errs <- err
	}
	close(p.errs)
	close(p.done)
}
