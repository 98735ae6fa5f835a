//go:build linux

package ipc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Conn is a mutex-serialized wrapper around a connected Unix domain socket
// fd. spec.md §4.5 describes separate sync and async variants; in Go the
// runtime already multiplexes blocking syscalls onto OS threads, so the
// "async" variant here is just this same blocking implementation made safe
// to call from many goroutines by serializing access with a mutex (see
// SPEC_FULL.md §4.5/§5).
type Conn struct {
	mu sync.Mutex
	fd int
}

// NewConn wraps an already-connected socket fd.
func NewConn(fd int) *Conn {
	return &Conn{fd: fd}
}

// Pair creates a connected pair of Unix domain sockets (SOCK_STREAM),
// wrapped as Conns, with CLOEXEC set so neither leaks across an exec in
// either process.
func Pair() (*Conn, *Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	return NewConn(fds[0]), NewConn(fds[1]), nil
}

// Fd returns the underlying file descriptor. Callers that need to hand it
// across a clone (e.g. the zygote's worker socketpair) should keep the
// Conn alive until the descriptor is no longer needed on this side.
func (c *Conn) Fd() int {
	return c.fd
}

// SendByte writes a single command/status byte, used for HELLO/START and
// the worker's proceed signal.
func (c *Conn) SendByte(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SendAll(c.fd, []byte{b}, nil)
}

// RecvByte reads a single command/status byte.
func (c *Conn) RecvByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, 1)
	if _, err := RecvExact(c.fd, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// SendMessage writes a framed message with optional attached descriptors.
func (c *Conn) SendMessage(payload []byte, rights []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SendMessage(c.fd, payload, rights)
}

// RecvMessage reads one framed message and any descriptors attached to it.
func (c *Conn) RecvMessage() ([]byte, []int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RecvMessage(c.fd)
}

// Close closes the underlying descriptor.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return unix.Close(c.fd)
}
