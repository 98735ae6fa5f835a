//go:build linux

package main

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/fxamacker/cbor/v2"
	"github.com/porkg-dev/sandboxcore/sandbox"
)

// execTask is the demo SandboxTask: it execve's a single command inside
// the worker once the sandbox is set up, the same shape as
// HQarroum-microbox's own --command-to-execve flow but delegated to a
// task type instead of being built into the sandbox package itself —
// this module's SandboxTask contract leaves rootfs/exec choices to the
// task, per SPEC_FULL.md §4.8's Open Question resolution.
type execTask struct {
	Hostname string
	Argv     []string
	Env      sandbox.EnvVars
	UID      uint32
	GID      uint32
	Network  bool
}

var _ sandbox.Task = (*execTask)(nil)

func (t *execTask) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(t)
}

func (t *execTask) UnmarshalBinary(data []byte) error {
	return cbor.Unmarshal(data, t)
}

func (t *execTask) CreateSandboxOptions() sandbox.Options {
	opts := sandbox.Options{
		SandboxUID: t.UID,
		SandboxGID: t.GID,
		Hostname:   t.Hostname,
	}
	if t.Network {
		opts = opts.WithNetworkIsolation()
	}
	return opts
}

// execError lets the host report the exit code a failed command would
// have used, via proc.ReportResult/sandbox.ExitCoder.
type execError struct {
	err  error
	code int
}

func (e *execError) Error() string { return e.err.Error() }
func (e *execError) Report() int   { return e.code }
func (e *execError) Unwrap() error { return e.err }

func (t *execTask) Execute(fds []int) error {
	if len(t.Argv) == 0 {
		return fmt.Errorf("execTask: empty argv")
	}
	path, err := exec.LookPath(t.Argv[0])
	if err != nil {
		return &execError{err: fmt.Errorf("resolve %s: %w", t.Argv[0], err), code: 127}
	}
	if err := syscall.Exec(path, t.Argv, t.Env.ToStringArray()); err != nil {
		return &execError{err: fmt.Errorf("exec %s: %w", path, err), code: 126}
	}
	return nil // unreachable: Exec replaces the process image on success
}
