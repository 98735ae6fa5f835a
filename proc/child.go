//go:build linux

package proc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Default windows for the termination escalation sequence. Exported so
// callers (and tests) can shrink them.
var (
	ChildDropWaitMillis = 4500
	ChildKillWaitMillis = 500
	pollInterval        = 15 * time.Millisecond
)

// ChildProcess is an exclusive ownership handle over a pid. At most one
// live handle exists for a given pid. Close signals the process and reaps
// it: SIGTERM first, escalating to SIGKILL if the process outlives the
// configured grace window. No finalizer is installed, so a handle that is
// neither closed nor forgotten leaves the process running.
//
// Grounded on original_source/crates/porkg-private/src/os/proc.rs
// (ChildProcess::try_drop_impl/poll/kill).
type ChildProcess struct {
	mu  sync.Mutex
	pid int
	set bool
}

// NewChildProcess creates a new guard owning pid.
func NewChildProcess(pid int) *ChildProcess {
	return &ChildProcess{pid: pid, set: true}
}

// Pid returns the owned pid without releasing it.
func (c *ChildProcess) Pid() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid, c.set
}

// Forget releases the pid to the caller without signalling it. The guard
// is consumed: subsequent Close calls are no-ops.
func (c *ChildProcess) Forget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pid := c.pid
	c.set = false
	return pid
}

// Close signals and reaps the owned pid, if any. Dropping a ChildProcess
// whose pid has already exited returns nil without signalling (the first
// poll observes ECHILD/Exited and short-circuits).
func (c *ChildProcess) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return nil
	}
	pid := c.pid
	c.set = false
	return terminate(pid)
}

func terminate(pid int) error {
	reaped, err := poll(pid)
	if err != nil {
		return err
	}
	if reaped {
		return nil
	}

	reaped, err = killAndPoll(pid, unix.SIGTERM)
	if err != nil {
		return err
	}
	if reaped {
		return nil
	}

	slog.Default().Debug("waiting for child process to exit", slog.Int("pid", pid))
	deadline := time.Now().Add(time.Duration(ChildDropWaitMillis) * time.Millisecond)
	for {
		reaped, err := poll(pid)
		if err != nil {
			return err
		}
		if reaped {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	slog.Default().Warn("process took too long to exit, sending SIGKILL", slog.Int("pid", pid))
	if _, err := killAndPoll(pid, unix.SIGKILL); err != nil {
		return err
	}

	deadline = time.Now().Add(time.Duration(ChildKillWaitMillis) * time.Millisecond)
	for {
		reaped, err := poll(pid)
		if err != nil {
			return err
		}
		if reaped {
			return nil
		}
		if time.Now().After(deadline) {
			slog.Default().Error("process did not exit after SIGKILL, giving up", slog.Int("pid", pid))
			return nil
		}
		time.Sleep(pollInterval)
	}
}

// killAndPoll sends sig to pid and immediately polls once, matching the
// teacher/porkg "kill, then check if it already died" shortcut.
func killAndPoll(pid int, sig unix.Signal) (bool, error) {
	if err := unix.Kill(pid, sig); err != nil {
		if err == unix.ESRCH {
			return true, nil
		}
		return false, fmt.Errorf("signal pid %d with %v: %w", pid, sig, err)
	}
	return poll(pid)
}

// poll performs a single non-blocking waitpid and classifies the result:
// Exited/Signaled/Stopped count as reaped; anything that means the process
// is still alive (PtraceEvent/Continued/StillAlive/PtraceSyscall, or no
// status change yet) counts as "still running"; ECHILD means it was
// already reaped by someone else.
func poll(pid int) (bool, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WALL, nil)
	if err != nil {
		if err == unix.ECHILD {
			return true, nil
		}
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("waitpid %d: %w", pid, err)
	}
	if wpid == 0 {
		// Still alive, no state change to report.
		return false, nil
	}
	switch {
	case ws.Exited(), ws.Signaled():
		return true, nil
	case ws.Stopped():
		return true, nil
	default:
		// Continued or an otherwise unrecognized transient state.
		return false, nil
	}
}
