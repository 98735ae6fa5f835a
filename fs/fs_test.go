//go:build linux

package fs

import (
	"os"
	"testing"

	"github.com/porkg-dev/sandboxcore/clone"
	"github.com/porkg-dev/sandboxcore/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHasExistingSharedMountOnRoot(t *testing.T) {
	// "/" is always mounted, so this should resolve to sharedYes or
	// sharedNo, never sharedUnknown (no entry found).
	state := hasExistingSharedMount("/")
	require.NotEqual(t, sharedUnknown, state)
}

func TestHasExistingSharedMountOnNonMountpoint(t *testing.T) {
	state := hasExistingSharedMount("/this/path/almost-certainly/does/not/exist/as/a/mountpoint")
	require.Equal(t, sharedUnknown, state)
}

func TestBindMountRoundTrip(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("bind mounts require privileges")
	}

	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, Bind(src, dst, Recursive))
	defer Unmount(dst, Detach)
}

func TestBindMountReadOnly(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("bind mounts require privileges")
	}

	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, Bind(src, dst, Recursive|BindReadOnly))
	defer Unmount(dst, Detach)

	err := unix.Access(dst, unix.W_OK)
	require.ErrorIs(t, err, unix.EROFS)
}

// TestPivotInNamespace runs Pivot inside a freshly cloned mount+user
// namespace (via testsupport.InNamespace) so the pivot actually takes
// effect without disturbing the test process's own root.
func TestPivotInNamespace(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("pivot_root requires privileges")
	}

	newRoot := t.TempDir()
	marker := newRoot + "/marker"
	require.NoError(t, os.WriteFile(marker, []byte("ok"), 0o644))

	testsupport.InNamespace(t, clone.NewUser|clone.NewNS, func() {
		if err := Pivot(newRoot); err != nil {
			panic(err)
		}
		if _, err := os.Stat("/marker"); err != nil {
			panic(err)
		}
	})
}
