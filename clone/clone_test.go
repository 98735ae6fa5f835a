//go:build linux

package clone

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFlagsHas(t *testing.T) {
	f := NewUser | NewPID | NewNS
	require.True(t, f.Has(NewUser))
	require.True(t, f.Has(NewUser|NewPID))
	require.False(t, f.Has(NewNet))
}

func TestAllocateGuardedStackReservesGuardPage(t *testing.T) {
	s, err := allocateGuardedStack(fallbackStackSize)
	require.NoError(t, err)
	defer freeGuardedStack(s)

	pageSize := unix.Getpagesize()
	require.Len(t, s.base, fallbackStackSize+pageSize)
}

func TestCloneReturnsCallbackExitCode(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to create new namespaces")
	}

	pid, err := Clone(func() int { return 7 }, 0)
	require.NoError(t, err)
	require.Positive(t, pid)

	var ws unix.WaitStatus
	_, err = unix.Wait4(pid, &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Exited())
	require.Equal(t, 7, ws.ExitStatus())
}

func TestCloneFallbackPathForced(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to create new namespaces")
	}

	pid, err := Clone(func() int { return 3 }, TestFallback)
	require.NoError(t, err)
	require.Positive(t, pid)

	var ws unix.WaitStatus
	_, err = unix.Wait4(pid, &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Exited())
	require.Equal(t, 3, ws.ExitStatus())
}
