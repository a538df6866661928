//go:build !windows

package latex

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command as the leader of a new process group so
// that helpers spawned by TeX or ImageMagick can be killed with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the whole group (negative PID).
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
