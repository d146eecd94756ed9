// Package net provides a transport.Transport over a net.Conn, issuing
// real vectored (scatter/gather) writes via golang.org/x/sys/unix.Writev
// so that a batched aggregate plus any gather-written header/payload
// pairs reach the wire as a single syscall.
package net

import (
	"errors"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/behrlich/wsflush/transport"
)

// Transport writes through a net.Conn using writev when the connection
// exposes a raw file descriptor (true for *net.TCPConn and
// *net.UnixConn), falling back to sequential net.Conn.Write calls
// otherwise (e.g. over TLS, where there is no raw fd to vector into).
type Transport struct {
	conn   net.Conn
	raw    syscall.RawConn
	closed atomic.Bool
}

// New wraps conn. If conn implements syscall.Conn, its raw fd is used
// for vectored writes; otherwise Write falls back to sequential writes.
func New(conn net.Conn) *Transport {
	t := &Transport{conn: conn}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			t.raw = raw
		}
	}
	return t
}

// Write implements transport.Transport. It performs the write
// synchronously on the calling goroutine (the engine guarantees at most
// one Write is ever in flight) and invokes cb with the result before
// returning.
func (t *Transport) Write(cb transport.Completion, buffers [][]byte) {
	if t.closed.Load() {
		cb(ErrClosedConn)
		return
	}

	var err error
	if t.raw != nil {
		err = t.writevRaw(buffers)
	} else {
		err = t.writeSequential(buffers)
	}
	cb(err)
}

func (t *Transport) writevRaw(buffers [][]byte) error {
	remaining := buffers
	var opErr error
	for len(remaining) > 0 {
		ctrlErr := t.raw.Write(func(fd uintptr) bool {
			n, err := unix.Writev(int(fd), remaining)
			if err == unix.EAGAIN {
				return false
			}
			if err != nil {
				opErr = err
				return true
			}
			remaining = trimWritten(remaining, n)
			return len(remaining) == 0
		})
		if ctrlErr != nil {
			return ctrlErr
		}
		if opErr != nil {
			return opErr
		}
	}
	return nil
}

func (t *Transport) writeSequential(buffers [][]byte) error {
	for _, b := range buffers {
		if len(b) == 0 {
			continue
		}
		if _, err := t.conn.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// trimWritten drops the first n bytes from a gather list, splitting or
// dropping whole buffers as needed, for resuming a partial writev.
func trimWritten(buffers [][]byte, n int) [][]byte {
	for n > 0 && len(buffers) > 0 {
		if n < len(buffers[0]) {
			buffers[0] = buffers[0][n:]
			return buffers
		}
		n -= len(buffers[0])
		buffers = buffers[1:]
	}
	return buffers
}

// ErrClosedConn is returned when Write is attempted on an already-closed
// connection's wrapped transport, for callers that want a distinguished
// sentinel rather than inspecting the underlying net.OpError.
var ErrClosedConn = errors.New("net: connection closed")

// Close marks the transport closed and closes the underlying net.Conn.
// Any Write already past the closed check races with this call the same
// way a raw net.Conn.Write would; any Write issued after Close observes
// it and fails fast with ErrClosedConn instead of attempting a write
// against a connection that's already gone.
func (t *Transport) Close() error {
	t.closed.Store(true)
	return t.conn.Close()
}
