//go:build linux

// Package sandbox implements the controller/zygote/worker protocol that
// runs a SandboxTask inside a freshly namespaced process.
//
// Grounded on original_source/crates/porkg-private/src/sandbox.rs
// (SandboxFlags/SandboxOptions/SandboxTask) and
// original_source/crates/porkg-linux/src/sandbox.rs (the zygote/worker
// protocol), adapted into HQarroum-microbox's logging/error idiom (the
// teacher itself has no zygote — it runs one sandbox per process
// invocation — so this package's protocol is built directly from
// original_source/, while its Go shape follows the teacher's).
package sandbox

import "github.com/porkg-dev/sandboxcore/clone"

// Flags is a bitset of sandbox-level options orthogonal to clone.Flags.
type Flags uint64

const (
	// NetworkIsolation requests that the worker be cloned into a new
	// network namespace (CLONE_NEWNET) instead of sharing the host's.
	NetworkIsolation Flags = 1 << 0
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Options describes how a worker should be namespaced and which identity
// it should run the task's code as.
type Options struct {
	Flags      Flags
	SandboxUID uint32
	SandboxGID uint32

	// Hostname, if non-empty, is set via sethostname(2) inside the
	// worker's own UTS namespace before the task runs.
	//
	// (added, supplemented from HQarroum-microbox's --hostname flag):
	// the original Rust SandboxOptions has no equivalent field, but a
	// named, legible hostname distinct from the host's is a small,
	// teacher-grounded addition with obvious value for a sandboxed task.
	Hostname string

	// RootfsPath, if non-empty, is a staging directory the worker
	// assembles a minimal rootfs under (proc/dev/tmp/etc via package fs)
	// and then pivots into before the task runs. A task that wants to
	// exec directly in the worker's existing mount namespace (this
	// module's CLI demo task does) leaves it empty and skips rootfs
	// assembly entirely — the choice of rootfs strategy belongs to the
	// task, per CreateSandboxOptions, not to the sandbox package.
	RootfsPath string

	// Nameservers overrides the default DNS resolvers written to
	// RootfsPath's /etc/resolv.conf. Ignored when RootfsPath is empty.
	Nameservers []string
}

// WithNetworkIsolation returns a copy of o with NetworkIsolation set.
func (o Options) WithNetworkIsolation() Options {
	o.Flags |= NetworkIsolation
	return o
}

// cloneFlags computes the worker's clone(2) flag set from the sandbox
// options: the mandatory {user, pid, mount} triple, the teacher's cheap
// always-on {uts, ipc}, best-effort cgroup, and network namespace
// isolation only when requested.
func (o Options) cloneFlags(cgroupAvailable bool) clone.Flags {
	f := clone.NewUser | clone.NewPID | clone.NewNS | clone.NewUTS | clone.NewIPC
	if cgroupAvailable {
		f |= clone.NewCgroup
	}
	if o.Flags.Has(NetworkIsolation) {
		f |= clone.NewNet
	}
	return f
}

// Task is the unit of work a worker executes inside its sandbox. A task
// implementation supplies its own serialization through
// MarshalBinary/UnmarshalBinary (the demo CLI's task uses cbor), its
// desired sandbox configuration, and
// the code to run once the sandbox is ready.
type Task interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error

	// CreateSandboxOptions returns the sandbox configuration this task
	// wants to run under.
	CreateSandboxOptions() Options

	// Execute runs the task's payload inside the worker, after namespaces,
	// id mappings, hostname and rootfs (if any) have been set up and the
	// worker has dropped to SandboxUID/SandboxGID. fds are the file
	// descriptors passed alongside the task message, in order.
	Execute(fds []int) error
}

// ExitCoder lets a Task's Execute error choose its own process exit code,
// the same contract proc.ReportResult uses.
type ExitCoder interface {
	Report() int
}
