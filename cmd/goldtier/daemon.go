package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// DaemonStatusValue represents the health state of the daemon.
type DaemonStatusValue string

const (
	// StatusRunning means the PID file exists and the process is alive.
	StatusRunning DaemonStatusValue = "running"
	// StatusStopped means no PID file exists.
	StatusStopped DaemonStatusValue = "stopped"
	// StatusStale means the PID file exists but the process is dead.
	StatusStale DaemonStatusValue = "stale"
)

// WritePIDFile writes pid to path, creating parent directories as needed.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create PID dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write PID file %s: %w", path, err)
	}
	return nil
}

// ReadPIDFile reads and parses the PID from the given file path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // PID file path is controlled by the application
	if err != nil {
		return 0, fmt.Errorf("read PID file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID from %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file. No error if it does not exist.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove PID file %s: %w", path, err)
	}
	return nil
}

// IsProcessAlive checks whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks for existence without signaling.
	return proc.Signal(syscall.Signal(0)) == nil
}

// DaemonStatus checks the PID file and process liveness. The PID is 0 when
// stopped.
func DaemonStatus(pidPath string) (status DaemonStatusValue, pid int, err error) {
	pid, err = ReadPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusStopped, 0, nil
		}
		return StatusStopped, 0, fmt.Errorf("daemon status: %w", err)
	}
	if IsProcessAlive(pid) {
		return StatusRunning, pid, nil
	}
	return StatusStale, pid, nil
}

// StopDaemon sends SIGTERM to the process named in the PID file.
func StopDaemon(pidPath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to PID %d: %w", pid, err)
	}
	return nil
}
