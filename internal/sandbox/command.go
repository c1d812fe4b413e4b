// Package sandbox provides the bounded execution environment for tool
// invocations: it owns the server process lifecycle, enforces per-call
// timeouts with forceful termination on expiry, classifies failures,
// and tracks filesystem side effects through an I/O monitor.
package sandbox

import (
	"fmt"
	"strings"
)

// shellMetaChars force a launch command through the shell.
const shellMetaChars = "&|;<>$`*?~#()"

// NeedsShell reports whether a launch command requires shell
// interpretation. "python server.py && echo done" does; a plain
// "python server.py" does not.
func NeedsShell(command string) bool {
	return strings.ContainsAny(command, shellMetaChars)
}

// ResolveCommand turns a launch command string into an argv. Commands
// with shell metacharacters are wrapped in the platform shell; plain
// commands are split into fields and exec'd directly.
func ResolveCommand(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("empty launch command")
	}
	if NeedsShell(command) {
		return shellArgv(command), nil
	}
	return strings.Fields(command), nil
}
