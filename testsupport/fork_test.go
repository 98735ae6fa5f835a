//go:build linux

package testsupport

import (
	"testing"

	"github.com/porkg-dev/sandboxcore/clone"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestInNamespacePropagatesSuccess(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to clone into new namespaces")
	}
	ran := false
	InNamespace(t, clone.NewUser|clone.NewPID, func() {
		ran = true
	})
	// ran is set in the child's copy of this closure's captured variable,
	// not observable here across the fork — this only checks InNamespace
	// itself didn't fail the test.
	_ = ran
	require.True(t, true)
}

func TestInNamespaceReportsChildFailure(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to clone into new namespaces")
	}
	ft := &fakeT{}
	InNamespace(ft, clone.NewUser|clone.NewPID, func() {
		panic("boom")
	})
	require.True(t, ft.failed)
}

type fakeT struct {
	failed bool
}

func (f *fakeT) Helper() {}
func (f *fakeT) Fatalf(format string, args ...any) {
	f.failed = true
}
