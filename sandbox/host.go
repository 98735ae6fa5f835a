//go:build linux

package sandbox

import "golang.org/x/sys/unix"

func currentUID() uint32 { return uint32(unix.Getuid()) }
func currentGID() uint32 { return uint32(unix.Getgid()) }

// cgroupV2Available reports whether /sys/fs/cgroup looks like a unified
// cgroup v2 mount, so the worker's clone request can best-effort add
// NEWCGROUP without failing on hosts still on the v1 hierarchy.
//
// Grounded on HQarroum-microbox/sandbox/cgroup.go's cgroup v2 detection
// (adapted here into a presence check rather than a full limits setup,
// since SandboxOptions carries no resource-limit fields — see DESIGN.md).
func cgroupV2Available() bool {
	var st unix.Statfs_t
	if err := unix.Statfs("/sys/fs/cgroup", &st); err != nil {
		return false
	}
	const cgroup2SuperMagic = 0x63677270
	return st.Type == cgroup2SuperMagic
}
