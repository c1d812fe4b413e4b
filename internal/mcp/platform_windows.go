//go:build windows

package mcp

import (
	"os/exec"
	"time"
)

// setupProcessGroup is a no-op on Windows; Job Objects would be the
// equivalent and are not needed for the servers we launch.
func setupProcessGroup(cmd *exec.Cmd) {}

// terminateProcessTree kills the process directly on Windows.
func terminateProcessTree(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
