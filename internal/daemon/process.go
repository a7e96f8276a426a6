package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voicecap/internal/control"
)

var errNotRunning = errors.New("voicecap is not running")

// livePID returns the pid recorded at path when that process still exists.
// A pid file naming a dead process is removed.
func livePID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, errNotRunning
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("bad pid file %s", path)
	}
	if !alive(pid) {
		_ = os.Remove(path)
		return 0, errNotRunning
	}
	return pid, nil
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// waitForShutdown polls until the pid file is gone or names a dead process.
func waitForShutdown(pidPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := livePID(pidPath); errors.Is(err, errNotRunning) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not stop within %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// waitForHealthy polls the control socket until the daemon answers a
// health request. exited is closed if the child dies first.
func waitForHealthy(socket string, exited <-chan struct{}, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var resp control.SimpleResponse
		err := control.Call(socket, control.Request{Op: control.OpHealth}, time.Second, &resp)
		if err == nil && resp.OK {
			return nil
		}
		select {
		case <-exited:
			return errors.New("daemon exited during startup; see the log")
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon not healthy after %s: %v", timeout, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
