//go:build !windows

package process

import "syscall"

// killProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID).
func KillProcessGroup(pid int) {
	// Best-effort cleanup; cmd.Process.Kill provides the fallback
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
