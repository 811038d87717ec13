//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
