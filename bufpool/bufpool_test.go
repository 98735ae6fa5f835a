//go:build linux

package bufpool

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTakeReturnsFreshBufferWhenEmpty(t *testing.T) {
	p := New(4)
	buf := p.Take()
	require.NotNil(t, buf)
	require.Equal(t, 0, buf.Len())
	require.GreaterOrEqual(t, buf.Cap(), DefaultBufferLen)
}

func TestPutTakeRoundTrip(t *testing.T) {
	p := New(4)
	buf := p.Take()
	buf.WriteString("hello")
	p.Put(buf)

	got := p.Take()
	require.Equal(t, buf, got)
}

func TestPutDropsOversizedBuffer(t *testing.T) {
	p := New(4)
	buf := bytes.NewBuffer(make([]byte, 0, MaxSingleBuffer+1))
	before := p.CurrentSize()
	p.Put(buf)
	require.Equal(t, before, p.CurrentSize())
}

func TestDefaultBucketCountIsMaxOfCoresAndCapacity(t *testing.T) {
	require.Equal(t, runtime.GOMAXPROCS(0), defaultBucketCount(1))
	require.Equal(t, 128, defaultBucketCount(128))
}

func TestReturnHookCanRejectBuffer(t *testing.T) {
	rejected := false
	p := New(4, WithReturnHook(func(b *bytes.Buffer) bool {
		rejected = true
		return false
	}))
	p.Put(p.Take())
	require.True(t, rejected)
}
