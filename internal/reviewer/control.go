package reviewer

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Daemon control errors.
var (
	ErrNotRunning    = errors.New("reviewer: daemon not running")
	ErrNotResponding = errors.New("reviewer: daemon process alive but socket not responding")
)

// Paths locates a daemon's socket and PID file.
type Paths struct {
	Socket string
	PID    string
}

// Status returns the PID of the running daemon. A PID file left behind by a
// dead process is cleaned up and reported as ErrNotRunning.
func Status(p Paths) (int, error) {
	pid, err := readPIDFile(p.PID)
	if err != nil {
		return 0, ErrNotRunning
	}

	if !processAlive(pid) {
		os.Remove(p.PID)
		os.Remove(p.Socket)
		return pid, fmt.Errorf("%w (stale PID %d)", ErrNotRunning, pid)
	}

	conn, err := net.DialTimeout("unix", p.Socket, time.Second)
	if err != nil {
		return pid, ErrNotResponding
	}
	conn.Close()
	return pid, nil
}

// Stop sends SIGTERM to the daemon and waits up to two seconds for its
// socket to disappear. It returns the PID it signalled.
func Stop(p Paths) (int, error) {
	pid, err := readPIDFile(p.PID)
	if err != nil {
		return 0, ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		os.Remove(p.PID)
		os.Remove(p.Socket)
		return pid, fmt.Errorf("%w: signal %d: %v", ErrNotRunning, pid, err)
	}

	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(p.Socket); errors.Is(err, os.ErrNotExist) {
			return pid, nil
		}
	}
	return pid, fmt.Errorf("sent SIGTERM to %d but socket still exists", pid)
}

// Restart stops any running daemon, starts a new one with start and waits
// for it to accept connections.
func Restart(p Paths, start func() error) error {
	if _, err := Stop(p); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	time.Sleep(200 * time.Millisecond)

	if err := start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if conn, err := net.DialTimeout("unix", p.Socket, 100*time.Millisecond); err == nil {
			conn.Close()
			return nil
		}
	}
	return ErrNotResponding
}

// StartProcess starts "<current executable> daemon" in the background.
func StartProcess() error {
	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exePath, "daemon")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
