//go:build !windows

package mcp

import (
	"os/exec"
	"syscall"
	"time"
)

// setupProcessGroup configures the command to run in its own process
// group. This allows killing all child processes when the parent is
// terminated (shell-launched servers spawn children).
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateProcessTree stops the process and all its children:
// SIGTERM to the group, a bounded wait for voluntary exit, then SIGKILL.
func terminateProcessTree(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	// Poll for exit instead of blocking on Wait; the transport's pipe
	// readers own the exec.Cmd wait state.
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			return // process is gone
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	_ = cmd.Process.Kill()
}
