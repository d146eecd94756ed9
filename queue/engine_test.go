package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/generator"
	"github.com/behrlich/wsflush/internal/interfaces"
	"github.com/behrlich/wsflush/pool"
	"github.com/behrlich/wsflush/transport"
	"github.com/behrlich/wsflush/transport/mem"
)

func newTestEngine(tr transport.Transport, bufferSize, maxGather int) (*Queue, *Engine) {
	q := New(0)
	gen := generator.New(pool.Default)
	e := NewEngine(q, tr, gen, pool.Default, bufferSize, maxGather, nil, interfaces.NopObserver{}, nil)
	return q, e
}

// trackingCallback records exactly how many times it fired, and how.
type trackingCallback struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	lastErr   error
	done      chan struct{}
}

func newTrackingCallback() *trackingCallback {
	return &trackingCallback{done: make(chan struct{}, 1)}
}

func (c *trackingCallback) Succeeded() {
	c.mu.Lock()
	c.succeeded++
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *trackingCallback) Failed(err error) {
	c.mu.Lock()
	c.failed++
	c.lastErr = err
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *trackingCallback) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire")
	}
}

func (c *trackingCallback) counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded, c.failed
}

func submitText(t *testing.T, q *Queue, e *Engine, payload string) *trackingCallback {
	t.Helper()
	cb := newTrackingCallback()
	entry := &Entry{Frame: &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte(payload)}, Callback: cb, Hint: BatchOn}
	require.NoError(t, q.Submit(entry))
	e.Kick()
	return cb
}

func TestEngine_SuccessfulWriteFiresCallbackExactlyOnce(t *testing.T) {
	tr := mem.New(false)
	q, e := newTestEngine(tr, 4096, 16)

	cb := submitText(t, q, e, "hello")
	cb.wait(t)

	succeeded, failed := cb.counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
}

func TestEngine_WriteFailureFailsAndLatches(t *testing.T) {
	tr := mem.New(false)
	tr.FailNextWrites(1, mem.ErrInjected)
	q, e := newTestEngine(tr, 4096, 16)

	cb := submitText(t, q, e, "boom")
	cb.wait(t)

	_, failed := cb.counts()
	assert.Equal(t, 1, failed)
	assert.ErrorIs(t, cb.lastErr, mem.ErrInjected)
	assert.ErrorIs(t, q.Failure(), mem.ErrInjected)

	// a submission arriving after the latch should be rejected by Submit
	// itself, never reaching the engine.
	late := &Entry{Frame: &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte("late")}, Callback: newTrackingCallback()}
	err := q.Submit(late)
	assert.ErrorIs(t, err, mem.ErrInjected)
}

func TestEngine_PingJumpsAheadOfQueuedData(t *testing.T) {
	tr := mem.New(false)
	q, e := newTestEngine(tr, 4096, 16)

	// Queue a data frame without kicking the engine, then submit a ping;
	// the next drain must yield the ping ahead of the data frame.
	data := &Entry{Frame: &frame.Frame{Opcode: frame.Binary, Fin: true, Payload: make([]byte, 16)}, Callback: newTrackingCallback(), Hint: BatchOn}
	require.NoError(t, q.Submit(data))
	ping := &Entry{Frame: &frame.Frame{Opcode: frame.Ping, Fin: true}, Callback: newTrackingCallback()}
	require.NoError(t, q.Submit(ping))

	entries, _ := q.DrainSlice(16, 4096, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, frame.Ping, entries[0].Frame.Opcode)
}

// singleWriterTransport fails the test if Write is ever invoked while a
// previous call's completion hasn't fired yet.
type singleWriterTransport struct {
	inFlight atomic.Bool
	t        *testing.T
	writes   atomic.Int64
}

func (s *singleWriterTransport) Write(cb transport.Completion, buffers [][]byte) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.t.Error("transport.Write called while a previous write was still in flight")
	}
	s.writes.Add(1)
	go func() {
		time.Sleep(time.Millisecond)
		s.inFlight.Store(false)
		cb(nil)
	}()
}

func TestEngine_SingleWriterDiscipline(t *testing.T) {
	tr := &singleWriterTransport{t: t}
	q, e := newTestEngine(tr, 256, 4)

	const n = 20
	cbs := make([]*trackingCallback, n)
	for i := 0; i < n; i++ {
		cbs[i] = submitText(t, q, e, "x")
	}
	for _, cb := range cbs {
		cb.wait(t)
	}
	assert.Greater(t, tr.writes.Load(), int64(0))
}

// reentrantCallback submits a follow-up entry from within its own
// Succeeded method, exercising the no-callback-under-lock property: the
// engine must not hold the queue mutex while invoking callbacks, or this
// would deadlock.
type reentrantCallback struct {
	q        *Queue
	e        *Engine
	follow   *trackingCallback
	fireOnce sync.Once
}

func (r *reentrantCallback) Succeeded() {
	r.fireOnce.Do(func() {
		entry := &Entry{Frame: &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte("follow-up")}, Callback: r.follow}
		if err := r.q.Submit(entry); err == nil {
			r.e.Kick()
		}
	})
}

func (r *reentrantCallback) Failed(error) {}

func TestEngine_ReentrantSubmitFromCallbackDoesNotDeadlock(t *testing.T) {
	tr := mem.New(false)
	q, e := newTestEngine(tr, 4096, 16)

	follow := newTrackingCallback()
	initial := &reentrantCallback{q: q, e: e, follow: follow}
	entry := &Entry{Frame: &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte("initial")}, Callback: initial}
	require.NoError(t, q.Submit(entry))
	e.Kick()

	follow.wait(t)
	succeeded, _ := follow.counts()
	assert.Equal(t, 1, succeeded)
}

func TestEngine_PoolExhaustionFailsLikeWriteFailure(t *testing.T) {
	tr := mem.New(false)
	tiny := pool.New([]int{64})
	q := New(0)
	gen := generator.New(tiny)
	e := NewEngine(q, tr, gen, tiny, 4096, 16, nil, interfaces.NopObserver{}, nil)

	// The engine's 4096-byte aggregate exceeds the pool's only bucket
	// (64), so the aggregate's Acquire fails on first use.
	cb := newTrackingCallback()
	entry := &Entry{Frame: &frame.Frame{Opcode: frame.Text, Fin: true, Payload: []byte("hi")}, Callback: cb, Hint: BatchOn}
	// bucketFor returns no match for 4096 against {64}, so
	// Acquire(4096, ...) always fails.
	require.NoError(t, q.Submit(entry))
	e.Kick()
	cb.wait(t)

	_, failed := cb.counts()
	assert.Equal(t, 1, failed)
}

// TestEngine_AutoBatchAccumulationDoesNotOverflowAggregate reproduces a
// multi-slice AUTO accumulation that, before DrainSlice accounted for the
// aggregate's already-live fill, would silently truncate a payload (or
// spuriously fail an already-aggregated entry) once the running total
// crossed bufferSize partway through a second drain.
func TestEngine_AutoBatchAccumulationDoesNotOverflowAggregate(t *testing.T) {
	tr := mem.New(false)
	const bufferSize = 16384
	q, e := newTestEngine(tr, bufferSize, 16)

	const n = 17
	const payloadLen = 1000
	cbs := make([]*trackingCallback, n)
	for i := 0; i < n; i++ {
		cb := newTrackingCallback()
		cbs[i] = cb
		entry := &Entry{
			Frame:    &frame.Frame{Opcode: frame.Binary, Fin: true, Payload: make([]byte, payloadLen)},
			Callback: cb,
			Hint:     BatchAuto,
		}
		require.NoError(t, q.Submit(entry))
	}
	e.Kick()

	for i, cb := range cbs {
		cb.wait(t)
		succeeded, failed := cb.counts()
		assert.Equal(t, 1, succeeded, "entry %d should succeed exactly once", i)
		assert.Equal(t, 0, failed, "entry %d should not fail", i)
	}

	frameLen := generator.HeaderLength(&frame.Frame{Opcode: frame.Binary, Fin: true, Payload: make([]byte, payloadLen)}) + payloadLen
	wantTotal := n * frameLen

	writes := tr.Writes()
	gotTotal := 0
	for _, w := range writes {
		gotTotal += len(w.Bytes)
	}
	// No bytes dropped and none duplicated across however many transport
	// writes the accumulation was split into.
	assert.Equal(t, wantTotal, gotTotal)

	// Every individual rendered frame in every write must carry its full
	// payload length, not a truncated remainder of an overflowed buffer.
	for _, w := range writes {
		off := 0
		for off < len(w.Bytes) {
			payloadN := int(w.Bytes[off+2])<<8 | int(w.Bytes[off+3])
			assert.Equal(t, payloadLen, payloadN, "frame at offset %d in write was truncated", off)
			off += frameLen
		}
	}
}
