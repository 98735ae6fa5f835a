//go:build linux

package sandbox

import (
	"fmt"
	"log/slog"

	"github.com/porkg-dev/sandboxcore/fs"
	"github.com/porkg-dev/sandboxcore/ipc"
	netns "github.com/porkg-dev/sandboxcore/net"
	"github.com/porkg-dev/sandboxcore/proc"
	"golang.org/x/sys/unix"
)

// workerMain runs inside the freshly cloned worker process. It blocks for
// the zygote's one-byte proceed signal, applies the sandbox's identity and
// the (added, supplemented) hostname/rootfs/loopback setup, drops to the
// task's requested uid/gid, and runs the task. Its return value becomes
// the worker process's exit code via proc.ReportResult.
//
// Grounded on original_source/crates/porkg-linux/src/sandbox.rs's
// worker_main, supplemented with the teacher's per-namespace setup calls
// (HQarroum-microbox/sandbox.go's child branch) for the steps
// original_source leaves to the task/container runtime around it.
func workerMain(task Task, fds []int, opts Options, conn *ipc.Conn) int {
	log := slog.Default().With(slog.Int("pid", unix.Getpid()))

	proceed, err := conn.RecvByte()
	if err != nil {
		log.Error("failed to read proceed signal from zygote", slog.Any("err", err))
		return -1
	}
	if proceed != 0x01 {
		log.Error("unexpected proceed byte", slog.Any("got", proceed))
		return -1
	}
	log.Debug("received signal to start")

	if opts.Hostname != "" {
		if err := unix.Sethostname([]byte(opts.Hostname)); err != nil {
			log.Error("failed to set hostname", slog.Any("err", err))
			return -1
		}
	}

	if opts.RootfsPath != "" {
		if err := assembleRootfs(opts); err != nil {
			log.Error("failed to assemble rootfs", slog.Any("err", err))
			return -1
		}
		log.Debug("assembled and pivoted into rootfs", slog.String("path", opts.RootfsPath))
	}

	if opts.Flags.Has(NetworkIsolation) {
		if err := netns.BringUpLoopback(); err != nil {
			log.Error("failed to bring up loopback interface", slog.Any("err", err))
			return -1
		}
	}

	if err := unix.Setresgid(int(opts.SandboxGID), int(opts.SandboxGID), int(opts.SandboxGID)); err != nil {
		log.Error("failed to set gid", slog.Any("err", err))
		return -1
	}
	if err := unix.Setresuid(int(opts.SandboxUID), int(opts.SandboxUID), int(opts.SandboxUID)); err != nil {
		log.Error("failed to set uid", slog.Any("err", err))
		return -1
	}
	log.Debug("updated uid and gid")

	if err := task.Execute(fds); err != nil {
		log.Error("task execution failed", slog.Any("err", err))
		return proc.ReportResult(err)
	}
	return 0
}

// assembleRootfs builds a minimal rootfs under opts.RootfsPath (masked
// /proc, a bare /dev, sticky /tmp, /etc/resolv.conf+hosts+hostname) and
// pivots the worker into it, using package fs's higher-level primitives
// on top of Mount/Bind/Pivot.
//
// Grounded on HQarroum-microbox/sandbox/sandbox.go's SetupFS call order
// (proc, dev, tmp, etc, then pivot) adapted onto this module's fs
// package.
func assembleRootfs(opts Options) error {
	base := opts.RootfsPath
	if err := fs.MountProc(base); err != nil {
		return fmt.Errorf("mount /proc: %w", err)
	}
	if err := fs.MountDev(base); err != nil {
		return fmt.Errorf("mount /dev: %w", err)
	}
	if err := fs.MountTmp(base); err != nil {
		return fmt.Errorf("mount /tmp: %w", err)
	}
	if err := fs.SetupEtc(base, opts.Nameservers, opts.Hostname); err != nil {
		return fmt.Errorf("setup /etc: %w", err)
	}
	if err := fs.Pivot(base); err != nil {
		return fmt.Errorf("pivot into rootfs: %w", err)
	}
	return nil
}
