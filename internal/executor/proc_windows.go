//go:build windows

package executor

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the shell itself; Windows has no process groups
// in the POSIX sense, and WaitDelay still unblocks the pipes.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
