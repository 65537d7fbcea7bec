//go:build !windows

package procutil

import (
	"golang.org/x/sys/unix"
)

// IsProcessRunning reports whether pid refers to a live process by sending
// it signal 0, which the kernel validates without actually delivering
// anything. Non-positive PIDs and any error (including permission denied,
// which still implies the process exists, but we do not have a way to
// observe a running child we cannot signal) are treated as not running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}

// KillProcess sends SIGTERM or SIGKILL to pid and reports whether the
// signal was delivered. A non-positive PID or an already-dead process
// both report false without error.
func KillProcess(pid int, sig Signal) bool {
	if pid <= 0 {
		return false
	}
	var s unix.Signal
	switch sig {
	case SignalKill:
		s = unix.SIGKILL
	default:
		s = unix.SIGTERM
	}
	return unix.Kill(pid, s) == nil
}
