//go:build linux

package proc

import (
	"fmt"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func spawnSleeper(t *testing.T, d time.Duration) int {
	t.Helper()
	cmd := exec.Command("sleep", fmt.Sprintf("%.1f", d.Seconds()))
	require.NoError(t, cmd.Start())
	return cmd.Process.Pid
}

func TestChildProcessSIGTERMFastPath(t *testing.T) {
	pid := spawnSleeper(t, 30*time.Second)

	c := NewChildProcess(pid)
	start := time.Now()
	require.NoError(t, c.Close())
	require.Less(t, time.Since(start), 2*time.Second)

	reaped, err := poll(pid)
	require.NoError(t, err)
	require.True(t, reaped)
}

func TestChildProcessSIGKILLEscalation(t *testing.T) {
	orig := ChildDropWaitMillis
	ChildDropWaitMillis = 50
	defer func() { ChildDropWaitMillis = orig }()

	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	c := NewChildProcess(pid)
	start := time.Now()
	require.NoError(t, c.Close())
	elapsed := time.Since(start)
	require.Less(t, elapsed, 2*time.Second)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	reaped, err := poll(pid)
	require.NoError(t, err)
	require.True(t, reaped)
}

func TestChildProcessIdempotentOnAlreadyExited(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	pid := cmd.Process.Pid

	c := NewChildProcess(pid)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestChildProcessForgetSkipsSignalling(t *testing.T) {
	pid := spawnSleeper(t, 30*time.Second)
	c := NewChildProcess(pid)

	got := c.Forget()
	require.Equal(t, pid, got)
	require.NoError(t, c.Close())

	reaped, err := poll(pid)
	require.NoError(t, err)
	require.False(t, reaped)

	_ = exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
}
