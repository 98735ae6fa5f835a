//go:build linux

// Package clone provides the clone3/clone(2) process-creation wrapper used
// to spawn the zygote and its workers in new namespaces.
//
// Grounded on _examples/HQarroum-microbox/sandbox/sandbox.go (the clone3
// struct layout and raw-syscall invocation) and
// _examples/original_source/crates/porkg-linux/src/clone.rs (the
// clone3-with-ENOSYS-fallback algorithm and CloneFlags bitset).
package clone

import "golang.org/x/sys/unix"

// Flags mirrors the subset of kernel CLONE_* flags a new process may
// request, plus a private bit that forces the fallback path for tests.
type Flags uint64

const (
	// Parent causes the new process's reported parent (getppid) to be the
	// same as the calling process's, rather than the caller itself.
	Parent Flags = Flags(unix.CLONE_PARENT)
	// NewNS creates the process in a new mount namespace.
	NewNS Flags = Flags(unix.CLONE_NEWNS)
	// NewCgroup creates the process in a new cgroup namespace.
	NewCgroup Flags = Flags(unix.CLONE_NEWCGROUP)
	// NewUTS creates the process in a new UTS (hostname/domain) namespace.
	NewUTS Flags = Flags(unix.CLONE_NEWUTS)
	// NewIPC creates the process in a new IPC namespace.
	NewIPC Flags = Flags(unix.CLONE_NEWIPC)
	// NewUser creates the process in a new user namespace.
	NewUser Flags = Flags(unix.CLONE_NEWUSER)
	// NewPID creates the process in a new PID namespace.
	NewPID Flags = Flags(unix.CLONE_NEWPID)
	// NewNet creates the process in a new network namespace.
	NewNet Flags = Flags(unix.CLONE_NEWNET)

	// TestFallback is a private bit (outside the kernel's CLONE_* range)
	// that forces the mmap'd-stack fallback path, for tests that want to
	// exercise it deterministically rather than relying on an old kernel.
	TestFallback Flags = 1 << 63

	kernelMask = Flags(unix.CLONE_PARENT | unix.CLONE_NEWNS | unix.CLONE_NEWCGROUP |
		unix.CLONE_NEWUTS | unix.CLONE_NEWIPC | unix.CLONE_NEWUSER |
		unix.CLONE_NEWPID | unix.CLONE_NEWNET)
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}
