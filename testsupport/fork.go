//go:build linux

// Package testsupport runs a test body inside a freshly cloned process so
// assertions that depend on being inside a new namespace (pid 1, a private
// mount table, an isolated network stack) run where they're actually true,
// instead of in the test binary's own process.
//
// Grounded on original_source/crates/porkg-test/src/fork.rs, which re-execs
// the test binary filtered down to one test name so the namespaced code runs
// in a child process. This module takes the more direct route available to
// it: clone.Clone the child directly, running the given func in-process
// there instead of re-invoking `go test` as a subprocess.
package testsupport

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/porkg-dev/sandboxcore/clone"
	"golang.org/x/sys/unix"
)

// Outcome is what the forked child reports back to the parent test
// goroutine once its body returns or panics.
type Outcome struct {
	Failed  bool
	Message string
}

// InNamespace forks fn into a child created with the given clone flags and
// waits for it to finish. It reports fn's outcome via t (any type exposing
// the subset of *testing.T this package needs), never running fn's
// assertions in the calling goroutine itself.
func InNamespace(t TestingT, flags clone.Flags, fn func()) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("testsupport: create result pipe: %v", err)
		return
	}
	defer r.Close()

	pid, err := clone.Clone(func() int {
		r.Close()
		reportAndExit(w, fn)
		return 0 // unreachable, reportAndExit calls unix.Exit
	}, flags)
	if err != nil {
		w.Close()
		t.Fatalf("testsupport: clone child: %v", err)
		return
	}
	w.Close()

	out, err := decodeOutcome(r)
	if err != nil {
		t.Fatalf("testsupport: read child outcome: %v", err)
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		t.Fatalf("testsupport: wait for child: %v", err)
	}
	if !ws.Exited() || ws.ExitStatus() != 0 {
		t.Fatalf("testsupport: child exited abnormally: %+v", ws)
	}

	if out.Failed {
		t.Fatalf("testsupport: in-namespace assertion failed: %s", out.Message)
	}
}

// TestingT is the subset of *testing.T this package needs, so callers don't
// have to import "testing" into non-test code that builds test harnesses.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func reportAndExit(w *os.File, fn func()) {
	out := runGuarded(fn)
	encodeOutcome(w, out)
	w.Close()
	unix.Exit(0)
}

func runGuarded(fn func()) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Failed: true, Message: fmt.Sprintf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	fn()
	return Outcome{Failed: false}
}

func encodeOutcome(w io.Writer, out Outcome) {
	if out.Failed {
		fmt.Fprintf(w, "FAIL\n%s", out.Message)
		return
	}
	fmt.Fprint(w, "OK\n")
}

func decodeOutcome(r io.Reader) (Outcome, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Outcome{}, err
	}
	if len(data) >= 2 && string(data[:2]) == "OK" {
		return Outcome{Failed: false}, nil
	}
	if len(data) >= 4 && string(data[:4]) == "FAIL" {
		msg := ""
		if len(data) > 5 {
			msg = string(data[5:])
		}
		return Outcome{Failed: true, Message: msg}, nil
	}
	return Outcome{Failed: true, Message: fmt.Sprintf("malformed outcome: %q", data)}, nil
}
