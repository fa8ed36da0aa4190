//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the shell in its own process group so the whole
// tree, including backgrounded children, can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup delivers SIGKILL to the shell's process group. A
// negative pid addresses the group rather than the single process.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
