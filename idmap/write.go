//go:build linux

package idmap

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/moby/sys/capability"
)

// WriteMappings writes uid_map/gid_map/setgroups for childPID, choosing
// between writing them directly and shelling out to newuidmap/newgidmap
// per the can_direct three-way check:
//
//  1. the caller is euid 0, or
//  2. each mapping list is the single-entry identity mapping an
//     unprivileged writer is always allowed, or
//  3. the caller holds CAP_SETUID (for uidMappings) / CAP_SETGID (for
//     gidMappings) in its permitted set.
//
// Otherwise it falls back to tools, and NoMappingTools if those are also
// unavailable.
func WriteMappings(childPID int, uidMappings, gidMappings []Mapping, tools Tools) error {
	if childPID <= 0 {
		return fmt.Errorf("invalid child pid: %d", childPID)
	}

	// setgroups must be denied before gid_map can be written by an
	// unprivileged writer; doing it unconditionally matches both the
	// privileged and unprivileged paths.
	setgroupsPath := fmt.Sprintf("/proc/%d/setgroups", childPID)
	if err := os.WriteFile(setgroupsPath, []byte("deny"), 0o644); err != nil {
		return fmt.Errorf("write setgroups: %w", err)
	}

	canUID := canDirect(uidMappings, uint32(os.Geteuid()), capability.CAP_SETUID)
	canGID := canDirect(gidMappings, uint32(os.Getegid()), capability.CAP_SETGID)

	if canUID && canGID {
		if err := writeDirect(fmt.Sprintf("/proc/%d/uid_map", childPID), uidMappings); err != nil {
			return fmt.Errorf("write uid_map: %w", err)
		}
		if err := writeDirect(fmt.Sprintf("/proc/%d/gid_map", childPID), gidMappings); err != nil {
			return fmt.Errorf("write gid_map: %w", err)
		}
		return nil
	}

	if tools.NewUidMap == "" || tools.NewGidMap == "" {
		return NoMappingTools{}
	}
	if err := writeViaHelper(tools.NewUidMap, childPID, uidMappings); err != nil {
		return fmt.Errorf("newuidmap: %w", err)
	}
	if err := writeViaHelper(tools.NewGidMap, childPID, gidMappings); err != nil {
		return fmt.Errorf("newgidmap: %w", err)
	}
	return nil
}

func canDirect(mappings []Mapping, currentID uint32, cap capability.Cap) bool {
	if os.Geteuid() == 0 {
		return true
	}
	if isIdentitySingleton(mappings, currentID) {
		return true
	}
	return hasPermittedCapability(cap)
}

func hasPermittedCapability(cap capability.Cap) bool {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return false
	}
	if err := caps.Load(); err != nil {
		return false
	}
	return caps.Get(capability.PERMITTED, cap)
}

func writeDirect(path string, mappings []Mapping) error {
	var data []byte
	for _, m := range mappings {
		data = append(data, formatLine(m)...)
	}
	return os.WriteFile(path, data, 0o644)
}

// FindTools resolves newuidmap/newgidmap on PATH once, at zygote startup.
func FindTools() Tools {
	var t Tools
	if p, err := exec.LookPath("newuidmap"); err == nil {
		t.NewUidMap = p
	}
	if p, err := exec.LookPath("newgidmap"); err == nil {
		t.NewGidMap = p
	}
	return t
}

func writeViaHelper(bin string, pid int, mappings []Mapping) error {
	args := make([]string, 0, 1+3*len(mappings))
	args = append(args, strconv.Itoa(pid))
	for _, m := range mappings {
		args = append(args,
			strconv.FormatUint(uint64(m.ChildStart), 10),
			strconv.FormatUint(uint64(m.HostStart), 10),
			strconv.FormatUint(uint64(m.Length), 10),
		)
	}
	out, err := exec.Command(bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", bin, err, out)
	}
	return nil
}
