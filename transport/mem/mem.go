// Package mem provides an in-memory transport.Transport, used by
// wsflush's own test suite and by callers who want to exercise Flusher
// without a real socket.
//
// A sharded-lock design is unnecessary here: a transport serializes its
// own writes by construction (the engine guarantees at most one Write in
// flight), so a single mutex over an append-only log suffices.
package mem

import (
	"errors"
	"sync"

	"github.com/behrlich/wsflush/transport"
)

// Write records one transport.Write call: the concatenation of its
// gather buffers, plus the individual buffer lengths for tests that care
// about how many pieces were gathered.
type Write struct {
	Bytes      []byte
	GatherLens []int
}

// Transport is an in-memory transport.Transport implementation.
type Transport struct {
	mu      sync.Mutex
	writes  []Write
	closed  bool
	async   bool
	failN   int
	failErr error
}

// New creates an in-memory Transport. If async is true, completions are
// delivered on a separate goroutine (simulating a real socket's
// asynchronous write path); if false, Write invokes cb synchronously,
// which is useful for deterministic single-threaded tests.
func New(async bool) *Transport {
	return &Transport{async: async}
}

// FailNextWrites arranges for the next n calls to Write to complete with
// err instead of succeeding, used to exercise the write-failure latch
// path in tests.
func (t *Transport) FailNextWrites(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failN = n
	t.failErr = err
}

// Write implements transport.Transport.
func (t *Transport) Write(cb transport.Completion, buffers [][]byte) {
	t.mu.Lock()

	var err error
	if t.failN > 0 {
		t.failN--
		err = t.failErr
	}

	var w Write
	if err == nil {
		w.GatherLens = make([]int, len(buffers))
		total := 0
		for i, b := range buffers {
			w.GatherLens[i] = len(b)
			total += len(b)
		}
		w.Bytes = make([]byte, 0, total)
		for _, b := range buffers {
			w.Bytes = append(w.Bytes, b...)
		}
		t.writes = append(t.writes, w)
	}
	t.mu.Unlock()

	if t.async {
		go cb(err)
	} else {
		cb(err)
	}
}

// Writes returns a snapshot of every successful write recorded so far,
// in issue order.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Write, len(t.writes))
	copy(out, t.writes)
	return out
}

// ErrInjected is a convenience error for tests that don't care about a
// specific failure cause.
var ErrInjected = errors.New("mem: injected transport failure")
