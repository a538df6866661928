//go:build windows

package latex

import (
	"os/exec"
	"strconv"
)

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup kills the process tree using taskkill.
// /F = force kill, /T = terminate child processes.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
