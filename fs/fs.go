//go:build linux

// Package fs wraps the mount(2)/pivot_root(2) family of syscalls used to
// assemble a sandboxed rootfs.
//
// Grounded on original_source/crates/porkg-linux/src/fs.rs (the Mount/
// Bind/Unmount/Pivot primitive shapes and the 8-step pivot algorithm) and
// HQarroum-microbox/fs/fs.go (the Go mount-option idiom:
// golang.org/x/sys/unix constants, wrapped-error conventions).
package fs

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Kind names a filesystem type passed to Mount.
type Kind string

const (
	Proc    Kind = "proc"
	SysFs   Kind = "sysfs"
	TmpFs   Kind = "tmpfs"
	DevPts  Kind = "devpts"
	Overlay Kind = "overlay"
	Fuse    Kind = "fuse"
)

// MountFlags mirrors the MS_* flags relevant to a plain mount(2) call.
type MountFlags uint64

const (
	ReadOnly     MountFlags = MountFlags(unix.MS_RDONLY)
	NoATime      MountFlags = MountFlags(unix.MS_NOATIME)
	NoDirATime   MountFlags = MountFlags(unix.MS_NODIRATIME)
	Private      MountFlags = MountFlags(unix.MS_PRIVATE)
	Slave        MountFlags = MountFlags(unix.MS_SLAVE)
	Shared       MountFlags = MountFlags(unix.MS_SHARED)
	RelativeTime MountFlags = MountFlags(unix.MS_RELATIME)
	StrictTime   MountFlags = MountFlags(unix.MS_STRICTATIME)
	LazyTime     MountFlags = MountFlags(unix.MS_LAZYTIME)
)

// BindFlags mirrors the MS_* flags relevant to a bind mount.
type BindFlags uint64

const (
	Recursive    BindFlags = BindFlags(unix.MS_REC)
	BindReadOnly BindFlags = BindFlags(unix.MS_RDONLY)
)

// UnmountFlags mirrors the relevant MNT_*/UMOUNT_* flags.
type UnmountFlags int

const (
	Force    UnmountFlags = UnmountFlags(unix.MNT_FORCE)
	Detach   UnmountFlags = UnmountFlags(unix.MNT_DETACH)
	Expire   UnmountFlags = UnmountFlags(unix.MNT_EXPIRE)
	NoFollow UnmountFlags = UnmountFlags(unix.UMOUNT_NOFOLLOW)
)

// MountError reports a failed mount(2) call.
type MountError struct {
	Path string
	Err  error
}

func (e *MountError) Error() string { return fmt.Sprintf("failed to mount %s: %v", e.Path, e.Err) }
func (e *MountError) Unwrap() error { return e.Err }

// BindError reports a failed bind-mount sequence.
type BindError struct {
	Path string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind mount %s: %v", e.Path, e.Err)
}
func (e *BindError) Unwrap() error { return e.Err }

// UnmountError reports a failed umount2(2) call.
type UnmountError struct {
	Path string
	Err  error
}

func (e *UnmountError) Error() string { return fmt.Sprintf("failed to unmount %s: %v", e.Path, e.Err) }
func (e *UnmountError) Unwrap() error { return e.Err }

// PivotError reports a failure anywhere in the pivot_root sequence.
type PivotError struct {
	Path string
	Err  error
}

func (e *PivotError) Error() string {
	return fmt.Sprintf("failed to pivot to new root at %s: %v", e.Path, e.Err)
}
func (e *PivotError) Unwrap() error { return e.Err }

// Mount wraps mount(2). source, kind and options may be empty, matching
// nix's Option<P> parameters in the original.
func Mount(source, target string, kind Kind, flags MountFlags, options string) error {
	if err := unix.Mount(source, target, string(kind), uintptr(flags), options); err != nil {
		return &MountError{Path: target, Err: err}
	}
	return nil
}

// Bind bind-mounts source onto target, optionally recursively and
// optionally remounted read-only (a bind mount's flags can't be combined
// with MS_RDONLY in the same call — the kernel requires a second
// MS_REMOUNT|MS_BIND|MS_RDONLY call, matching fs.rs's bind()).
func Bind(source, target string, flags BindFlags) error {
	mountFlags := uintptr(unix.MS_BIND)
	if flags&Recursive != 0 {
		mountFlags |= uintptr(unix.MS_REC)
	}
	if err := unix.Mount(source, target, "", mountFlags, ""); err != nil {
		return &BindError{Path: target, Err: err}
	}
	if flags&BindReadOnly != 0 {
		remount := uintptr(unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY)
		if err := unix.Mount("", target, "", remount, ""); err != nil {
			return &BindError{Path: target, Err: err}
		}
	}
	return nil
}

// Unmount wraps umount2(2).
func Unmount(path string, flags UnmountFlags) error {
	if err := unix.Unmount(path, int(flags)); err != nil {
		return &UnmountError{Path: path, Err: err}
	}
	return nil
}

// Pivot makes newRoot the process's root directory, following the 8-step
// sequence from fs.rs's pivot(): make the target mount private (or bind it
// to itself first if nothing is mounted there yet), open it, pivot_root
// into itself (collapsing the old root on top of the new one at the same
// path), mark the old root rslave, lazily unmount it, and chdir into the
// new root.
func Pivot(newRoot string) error {
	switch hasExistingSharedMount(newRoot) {
	case sharedYes:
		if err := unix.Mount("", newRoot, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
			return &PivotError{Path: newRoot, Err: err}
		}
	case sharedUnknown:
		if err := unix.Mount(newRoot, newRoot, "", unix.MS_PRIVATE|unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return &PivotError{Path: newRoot, Err: err}
		}
	case sharedNo:
		// Already a private mount; nothing to do.
	}

	fd, err := unix.Open(newRoot, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return &PivotError{Path: newRoot, Err: err}
	}
	defer unix.Close(fd)

	// Giving the same path for both old and new stacks the original root
	// above the new one at the same mount point, so the umount below drops
	// the original root without needing a separate temp directory.
	if err := unix.PivotRoot(newRoot, newRoot); err != nil {
		return &PivotError{Path: newRoot, Err: err}
	}

	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return &PivotError{Path: newRoot, Err: err}
	}

	if err := unix.Unmount("/", unix.MNT_DETACH); err != nil {
		return &PivotError{Path: newRoot, Err: err}
	}

	if err := unix.Fchdir(fd); err != nil {
		return &PivotError{Path: newRoot, Err: err}
	}
	return nil
}

type sharedState int

const (
	sharedUnknown sharedState = iota // nothing mounted at this path yet
	sharedNo                         // a private mount exists
	sharedYes                        // a shared mount exists
)

// hasExistingSharedMount inspects /proc/self/mountinfo for an entry whose
// mount point is exactly path, reporting whether it carries a "shared:"
// optional field. Errors are swallowed: making a superfluous bind mount
// private is harmless, matching fs.rs's has_existing_shared_mount.
func hasExistingSharedMount(path string) sharedState {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return sharedUnknown
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// mountinfo: id parentid major:minor root mountpoint opts opt-fields... - fstype ...
		if len(fields) < 7 || fields[4] != path {
			continue
		}
		for _, field := range fields[6:] {
			if field == "-" {
				break
			}
			if strings.HasPrefix(field, "shared:") {
				return sharedYes
			}
		}
		return sharedNo
	}
	return sharedUnknown
}
