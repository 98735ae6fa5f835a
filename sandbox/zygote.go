//go:build linux

package sandbox

import (
	"fmt"
	"log/slog"

	"github.com/porkg-dev/sandboxcore/clone"
	"github.com/porkg-dev/sandboxcore/idmap"
	"github.com/porkg-dev/sandboxcore/ipc"
	"github.com/porkg-dev/sandboxcore/proc"
)

// zygoteMain is the zygote process's entire lifetime: discard the one-byte
// HELLO, then loop reading command bytes forever. A worker spawn failure
// is logged and isolates that one request — the loop continues so the
// next SpawnAsync call still gets served. Only a socket-layer failure or
// an unrecognized command byte (a protocol violation) ends the loop.
//
// Grounded on original_source/crates/porkg-linux/src/sandbox.rs's
// zygote_main/start_worker.
func zygoteMain(conn *ipc.Conn, tools idmap.Tools, newTask func() Task) error {
	hello, err := conn.RecvByte()
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello != Hello {
		return fmt.Errorf("expected HELLO (%#x), got %#x", Hello, hello)
	}

	for {
		cmd, err := conn.RecvByte()
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		switch cmd {
		case Start:
			if err := handleStart(conn, tools, newTask); err != nil {
				slog.Default().Error("worker spawn failed", slog.Any("err", err))
			}
		default:
			return fmt.Errorf("protocol violation: unknown command %#x", cmd)
		}
	}
}

func handleStart(conn *ipc.Conn, tools idmap.Tools, newTask func() Task) error {
	payload, fds, err := conn.RecvMessage()
	if err != nil {
		return fmt.Errorf("recv task message: %w", err)
	}

	task := newTask()
	if err := task.UnmarshalBinary(payload); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}

	opts := task.CreateSandboxOptions()
	return startWorker(task, fds, opts, tools)
}

// startWorker clones the worker process, writes its id mappings from the
// zygote (which still has the privileges to do so), and signals it to
// proceed.
func startWorker(task Task, fds []int, opts Options, tools idmap.Tools) error {
	hostConn, childConn, err := ipc.Pair()
	if err != nil {
		return fmt.Errorf("create worker supervision socketpair: %w", err)
	}
	defer hostConn.Close()

	pid, err := clone.Clone(func() int {
		hostConn.Close()
		return workerMain(task, fds, opts, childConn)
	}, opts.cloneFlags(cgroupV2Available()))
	if err != nil {
		childConn.Close()
		return fmt.Errorf("clone worker process: %w", err)
	}
	childConn.Close()

	uidMapping := []idmap.Mapping{idmap.IdentityToRoot(currentUID())}
	gidMapping := []idmap.Mapping{idmap.IdentityToRoot(currentGID())}
	if err := idmap.WriteMappings(pid, uidMapping, gidMapping, tools); err != nil {
		_ = proc.NewChildProcess(pid).Close()
		return fmt.Errorf("write id mappings: %w", err)
	}

	if err := hostConn.SendByte(0x01); err != nil {
		_ = proc.NewChildProcess(pid).Close()
		return fmt.Errorf("signal worker to proceed: %w", err)
	}

	// The worker now owns its own lifetime; the zygote doesn't wait on it,
	// matching original_source's start_worker (fire-and-forget from the
	// zygote's perspective — the controller tracks results out of band
	// via whatever fds the task itself was given).
	proc.NewChildProcess(pid).Forget()
	return nil
}
