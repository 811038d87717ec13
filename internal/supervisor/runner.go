package supervisor

import (
	"context"
	"errors"
	"os/exec"
)

// Runner executes process-table commands such as pgrep and pkill. A non-zero
// exit status is reported through the code, not the error; err is set only
// when the command could not be run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (code int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	err := exec.CommandContext(ctx, name, args...).Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
