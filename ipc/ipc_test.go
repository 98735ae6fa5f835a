//go:build linux

package ipc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSendRecvMessageRoundTrip(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	payload := []byte("hello sandbox")
	errCh := make(chan error, 1)
	go func() { errCh <- a.SendMessage(payload, nil) }()

	got, fds, err := b.RecvMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
	require.Empty(t, fds)
}

func TestSendRecvMessageCarriesFDs(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	f, err := os.CreateTemp(t.TempDir(), "ipc-fd-*")
	require.NoError(t, err)
	defer f.Close()

	payload := []byte("with fd")
	errCh := make(chan error, 1)
	go func() { errCh <- a.SendMessage(payload, []int{int(f.Fd())}) }()

	got, fds, err := b.RecvMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
	require.Len(t, fds, 1)
	unix.Close(fds[0])
}

func TestSendRecvMessageLargerThanChunk(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	payload := make([]byte, dataChunkSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendMessage(payload, nil) }()

	got, _, err := b.RecvMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
}

func TestSendRecvByte(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendByte(0x01) }()

	got, err := b.RecvByte()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, byte(0x01), got)
}
