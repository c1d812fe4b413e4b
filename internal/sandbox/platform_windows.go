//go:build windows

package sandbox

// shellArgv wraps a command line for shell interpretation.
func shellArgv(command string) []string {
	return []string{"cmd", "/C", command}
}
