//go:build unix

package reviewer

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || err == unix.EPERM
}

func terminate(pid int) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(pid, unix.SIGTERM)
}

// detach puts the daemon in its own session so it outlives the hook.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
