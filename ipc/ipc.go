//go:build linux

// Package ipc implements the framed, FD-passing protocol used between the
// controller, zygote and worker over Unix domain sockets.
//
// Grounded on original_source/crates/porkg-private/src/io.rs (send_all/
// recv_exact, the scratch buffer sizing) and other_examples'
// libcontainer-process_linux.go.go (the idiomatic Go SCM_RIGHTS shape).
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// dataChunkSize bounds a single sendmsg/recvmsg call's payload, per
	// spec.md §4.5.
	dataChunkSize = 8 * 1024
	// maxFDs bounds the descriptors carried on a single chunk, per
	// spec.md §4.5.
	maxFDs = 128

	// HeaderSize is the width of the length prefix on a framed message.
	HeaderSize = 8
)

// ErrShortWrite is returned when sendmsg accepts zero bytes without
// reporting an error. A partial write is not an error: the rest of the
// chunk is sent by the next sendmsg call.
var ErrShortWrite = errors.New("ipc: sendmsg accepted no bytes")

// SendAll writes all of data to fd, attaching rights (if any) as SCM_RIGHTS
// ancillary data on the first chunk only. Large payloads are sent in
// dataChunkSize pieces.
func SendAll(fd int, data []byte, rights []int) error {
	oob := rightsOOB(rights)
	for len(data) > 0 {
		n := len(data)
		if n > dataChunkSize {
			n = dataChunkSize
		}
		if err := sendmsgAll(fd, data[:n], oob); err != nil {
			return err
		}
		data = data[n:]
		oob = nil // only the first chunk carries descriptors.
	}
	return nil
}

func rightsOOB(rights []int) []byte {
	if len(rights) == 0 {
		return nil
	}
	if len(rights) > maxFDs {
		rights = rights[:maxFDs]
	}
	return unix.UnixRights(rights...)
}

func sendmsgAll(fd int, p []byte, oob []byte) error {
	for len(p) > 0 {
		n, _, err := unix.Sendmsg(fd, p, oob, nil, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("sendmsg: %w", err)
		}
		if n == 0 {
			return ErrShortWrite
		}
		p = p[n:]
		oob = nil
	}
	return nil
}

// RecvExact reads exactly len(buf) bytes from fd into buf, collecting any
// SCM_RIGHTS descriptors carried on the chunks (only the first chunk of a
// message is expected to carry them, but all chunks are scanned so a
// caller never silently drops a descriptor).
func RecvExact(fd int, buf []byte) ([]int, error) {
	var fds []int
	oob := make([]byte, unix.CmsgSpace(maxFDs*4))

	for len(buf) > 0 {
		n := len(buf)
		if n > dataChunkSize {
			n = dataChunkSize
		}
		got, oobn, err := recvmsgExact(fd, buf[:n], oob)
		if err != nil {
			return fds, err
		}
		if oobn > 0 {
			parsed, err := parseRights(oob[:oobn])
			if err != nil {
				return fds, err
			}
			fds = append(fds, parsed...)
		}
		buf = buf[got:]
	}
	return fds, nil
}

func recvmsgExact(fd int, p []byte, oob []byte) (int, int, error) {
	n, oobn, _, _, err := unix.Recvmsg(fd, p, oob, 0)
	if err != nil {
		if err == unix.EINTR {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("recvmsg: %w", err)
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("recvmsg: peer closed connection")
	}
	return n, oobn, nil
}

func parseRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			return nil, fmt.Errorf("parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// SendMessage writes an 8-byte native-endian length header followed by
// payload, attaching rights to the header+payload stream.
func SendMessage(fd int, payload []byte, rights []int) error {
	header := make([]byte, HeaderSize)
	binary.NativeEndian.PutUint64(header, uint64(len(payload)))
	if err := SendAll(fd, header, rights); err != nil {
		return fmt.Errorf("send header: %w", err)
	}
	if err := SendAll(fd, payload, nil); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}
	return nil
}

// RecvMessage reads one framed message, returning its payload and any FDs
// passed alongside the header.
func RecvMessage(fd int) ([]byte, []int, error) {
	header := make([]byte, HeaderSize)
	fds, err := RecvExact(fd, header)
	if err != nil {
		return nil, fds, fmt.Errorf("recv header: %w", err)
	}
	size := binary.NativeEndian.Uint64(header)
	payload := make([]byte, size)
	if size > 0 {
		morefds, err := RecvExact(fd, payload)
		if err != nil {
			return nil, fds, fmt.Errorf("recv payload: %w", err)
		}
		fds = append(fds, morefds...)
	}
	return payload, fds, nil
}
