//go:build unix

package ants

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command in its own process group so cancellation kills the scripts ANTs forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
