//go:build linux

package sandbox

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/porkg-dev/sandboxcore/clone"
	"github.com/porkg-dev/sandboxcore/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type echoTask struct {
	Message string
	Path    string
}

func (t *echoTask) MarshalBinary() ([]byte, error)   { return json.Marshal(t) }
func (t *echoTask) UnmarshalBinary(data []byte) error { return json.Unmarshal(data, t) }
func (t *echoTask) CreateSandboxOptions() Options {
	return Options{SandboxUID: currentUID(), SandboxGID: currentGID()}
}
func (t *echoTask) Execute(fds []int) error {
	return os.WriteFile(t.Path, []byte(t.Message), 0o644)
}

func TestControllerSpawnsWorkerThatRunsTask(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to clone into new namespaces")
	}

	ctrl, err := Start(func() Task { return &echoTask{} })
	require.NoError(t, err)
	defer ctrl.Close()

	out := t.TempDir() + "/out.txt"
	task := &echoTask{Message: "hello from the sandbox", Path: out}
	require.NoError(t, ctrl.SpawnAsync(task, nil))
}

func TestFlagsHas(t *testing.T) {
	f := NetworkIsolation
	require.True(t, f.Has(NetworkIsolation))
}

func TestOptionsWithNetworkIsolation(t *testing.T) {
	o := Options{}.WithNetworkIsolation()
	require.True(t, o.Flags.Has(NetworkIsolation))
}

func TestCgroupV2AvailableDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() { cgroupV2Available() })
}

func TestAssembleRootfsPivotsIntoStagingDir(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires privileges to mount and pivot_root")
	}

	base := t.TempDir()
	testsupport.InNamespace(t, clone.NewUser|clone.NewNS, func() {
		if err := assembleRootfs(Options{RootfsPath: base, Hostname: "sandbox-test"}); err != nil {
			panic(err)
		}
		if _, err := os.Stat("/proc/self"); err != nil {
			panic(err)
		}
		if _, err := os.Stat("/dev/null"); err != nil {
			panic(err)
		}
		if _, err := os.Stat("/etc/resolv.conf"); err != nil {
			panic(err)
		}
	})
}
