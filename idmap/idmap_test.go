//go:build linux

package idmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityToRootMapsChildZeroToCurrentID(t *testing.T) {
	m := IdentityToRoot(1000)
	require.Equal(t, Mapping{ChildStart: 0, HostStart: 1000, Length: 1}, m)
}

func TestIsIdentitySingleton(t *testing.T) {
	m := IdentityToRoot(1000)
	require.True(t, isIdentitySingleton([]Mapping{m}, 1000))
	require.False(t, isIdentitySingleton([]Mapping{m}, 1001))
	require.False(t, isIdentitySingleton([]Mapping{m, m}, 1000))
	require.False(t, isIdentitySingleton([]Mapping{{ChildStart: 0, HostStart: 100000, Length: 65536}}, 100000))
}

func TestFormatLine(t *testing.T) {
	require.Equal(t, "0 100000 65536\n", formatLine(Mapping{ChildStart: 0, HostStart: 100000, Length: 65536}))
}

func TestSubidRangeFindsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	require.NoError(t, os.WriteFile(path, []byte("someoneelse:1000:1\nalice:100000:65536\n"), 0o644))

	start, length, err := SubidRange(path, "alice")
	require.NoError(t, err)
	require.Equal(t, uint32(100000), start)
	require.Equal(t, uint32(65536), length)
}

func TestSubidRangeMissingUser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	require.NoError(t, os.WriteFile(path, []byte("bob:100000:65536\n"), 0o644))

	_, _, err := SubidRange(path, "alice")
	require.Error(t, err)
}

func TestNoMappingToolsError(t *testing.T) {
	var err error = NoMappingTools{}
	require.Contains(t, err.Error(), "newuidmap")
}
