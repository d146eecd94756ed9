//go:build linux && giouring

// Package iouring provides a transport.Transport backed by io_uring
// writev submissions, for deployments that want to avoid a syscall per
// gather write and instead batch completions the way the kernel prefers.
//
// It uses CreateRing/GetSQE/PrepareWritev/SubmitAndWait/PeekBatchCQE/
// CQAdvance/QueueExit, narrowed from a general-purpose accept/connect/recv
// event loop down to the one operation wsflush needs: a vectored write
// with a completion callback.
package iouring

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/behrlich/wsflush/transport"
)

// Transport issues writev operations against fd through a dedicated
// io_uring instance, with a background goroutine polling completions.
type Transport struct {
	fd   int
	ring *giouring.Ring

	mu      sync.Mutex
	pending map[uint64]pendingWrite
	next    uint64
	closed  bool

	done chan struct{}
}

type pendingWrite struct {
	cb     transport.Completion
	pinner *runtime.Pinner
	iovecs []syscall.Iovec
}

// trimIovecs drops the first n bytes from iovecs, splitting or dropping
// whole entries as needed, for resuming a short writev. The underlying
// buffers are left pinned by the caller's runtime.Pinner: this only
// advances pointers within already-pinned memory.
func trimIovecs(iovecs []syscall.Iovec, n int) []syscall.Iovec {
	for n > 0 && len(iovecs) > 0 {
		l := int(iovecs[0].Len)
		if n < l {
			iovecs[0].Base = (*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(iovecs[0].Base)) + uintptr(n)))
			iovecs[0].SetLen(l - n)
			return iovecs
		}
		n -= l
		iovecs = iovecs[1:]
	}
	return iovecs
}

// Entries is the default io_uring submission/completion queue depth.
const Entries = 256

// New creates a Transport writing to fd via a new io_uring instance with
// Entries submission slots, and starts its completion-polling goroutine.
func New(fd int) (*Transport, error) {
	ring, err := giouring.CreateRing(Entries)
	if err != nil {
		return nil, fmt.Errorf("iouring: create ring: %w", err)
	}
	t := &Transport{
		fd:      fd,
		ring:    ring,
		pending: make(map[uint64]pendingWrite),
		done:    make(chan struct{}),
	}
	go t.pollLoop()
	return t, nil
}

// Write implements transport.Transport: it prepares one PrepareWritev
// submission covering buffers and returns immediately; cb fires from the
// polling goroutine once the kernel completes the operation.
func (t *Transport) Write(cb transport.Completion, buffers [][]byte) {
	iovecs := make([]syscall.Iovec, 0, len(buffers))
	var pinner runtime.Pinner
	for _, b := range buffers {
		if len(b) == 0 {
			continue
		}
		pinner.Pin(&b[0])
		iov := syscall.Iovec{Base: &b[0]}
		iov.SetLen(len(b))
		iovecs = append(iovecs, iov)
	}
	if len(iovecs) == 0 {
		cb(nil)
		return
	}
	pinner.Pin(&iovecs[0])

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pinner.Unpin()
		cb(errClosed())
		return
	}
	t.submitLocked(cb, &pinner, iovecs)
	t.mu.Unlock()

	t.ring.SubmitAndWait(0)
}

// submitLocked queues one writev submission and records it as pending,
// keyed by a fresh userData tag. Called with t.mu held.
func (t *Transport) submitLocked(cb transport.Completion, pinner *runtime.Pinner, iovecs []syscall.Iovec) {
	t.next++
	userData := t.next
	t.pending[userData] = pendingWrite{cb: cb, pinner: pinner, iovecs: iovecs}

	sqe := t.ring.GetSQE()
	for sqe == nil {
		t.ring.SubmitAndWait(0)
		sqe = t.ring.GetSQE()
	}
	sqe.PrepareWritev(t.fd, uintptr(unsafe.Pointer(&iovecs[0])), uint32(len(iovecs)), 0)
	sqe.UserData = userData
}

func errClosed() error { return fmt.Errorf("iouring: transport closed") }

func (t *Transport) pollLoop() {
	var cqes [batchSize]*giouring.CompletionQueueEvent
	for {
		select {
		case <-t.done:
			return
		default:
		}

		if _, err := t.ring.SubmitAndWait(1); err != nil {
			continue
		}

		peeked := t.ring.PeekBatchCQE(cqes[:])
		for _, cqe := range cqes[:peeked] {
			t.complete(cqe)
		}
		t.ring.CQAdvance(peeked)
	}
}

const batchSize = 64

// complete handles one CQE. A short writev (0 <= Res < the iovecs'
// combined length) resubmits the unwritten tail under the same
// runtime.Pinner rather than treating the partial write as done --
// mirroring transport/net's trimWritten resume loop for the raw-fd
// writev path.
func (t *Transport) complete(cqe *giouring.CompletionQueueEvent) {
	t.mu.Lock()
	pw, ok := t.pending[cqe.UserData]
	if ok {
		delete(t.pending, cqe.UserData)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	if cqe.Res < 0 {
		pw.pinner.Unpin()
		pw.cb(syscall.Errno(-cqe.Res))
		return
	}

	remaining := trimIovecs(pw.iovecs, int(cqe.Res))
	if len(remaining) == 0 {
		pw.pinner.Unpin()
		pw.cb(nil)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pw.pinner.Unpin()
		pw.cb(errClosed())
		return
	}
	t.submitLocked(pw.cb, pw.pinner, remaining)
	t.mu.Unlock()
	t.ring.SubmitAndWait(0)
}

// Close tears down the ring. It does not close fd -- ownership of fd
// remains with the caller, matching transport.Transport's borrowed-byte
// contract for buffers.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	t.ring.QueueExit()
	return nil
}
