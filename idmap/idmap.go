//go:build linux

// Package idmap configures /proc/<pid>/{uid_map,gid_map,setgroups} for a
// process cloned into a new user namespace.
//
// Grounded on HQarroum-microbox/sandbox/id.go (the subuid/subgid-ranged
// newuidmap/newgidmap fallback and the procfs file layout) and
// original_source/crates/porkg-linux/src/proc.rs (the can_direct three-way
// check: root, OR a single identity mapping, OR a permitted
// CAP_SETUID/CAP_SETGID).
package idmap

import (
	"fmt"
)

// Mapping is one uid_map/gid_map line: length IDs starting at ChildStart
// inside the namespace map to HostStart outside it.
type Mapping struct {
	ChildStart uint32
	HostStart  uint32
	Length     uint32
}

// IdentityToRoot returns the single-entry mapping that maps uid/gid 0
// inside the namespace to id outside it — the "run as root inside the
// sandbox" mapping, and also the only mapping an unprivileged,
// capability-less caller is allowed to write (the kernel requires
// HostStart to be the caller's own current id in that case).
func IdentityToRoot(id uint32) Mapping {
	return Mapping{ChildStart: 0, HostStart: id, Length: 1}
}

// isIdentitySingleton reports whether mappings is exactly one entry with
// length 1 whose HostStart is the caller's own current id (ChildStart is
// unconstrained — 0 is the common "map to root" case) — the shape the
// kernel allows an unprivileged writer to use directly.
func isIdentitySingleton(mappings []Mapping, currentID uint32) bool {
	if len(mappings) != 1 {
		return false
	}
	m := mappings[0]
	return m.Length == 1 && m.HostStart == currentID
}

// Tools holds the paths to the shadow-utils helpers used to write mappings
// when the caller can't write them directly. Empty fields mean "not
// found". Resolved once, at zygote startup, and carried for its lifetime.
type Tools struct {
	NewUidMap string
	NewGidMap string
}

// NoMappingTools is returned when the caller is neither privileged enough
// to write mappings directly nor has the shadow-utils helpers available.
type NoMappingTools struct{}

func (NoMappingTools) Error() string {
	return "cannot write id mappings: not root, no permitted CAP_SETUID/CAP_SETGID, and newuidmap/newgidmap not found"
}

func formatLine(m Mapping) string {
	return fmt.Sprintf("%d %d %d\n", m.ChildStart, m.HostStart, m.Length)
}
