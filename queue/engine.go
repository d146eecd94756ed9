package queue

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/generator"
	"github.com/behrlich/wsflush/internal/interfaces"
	"github.com/behrlich/wsflush/pool"
	"github.com/behrlich/wsflush/transport"
)

// State is the flush engine's externally-observable state.
type State int32

const (
	StateIdle State = iota
	StateProcessing
	StatePending
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine is the iterating-callback flush engine: it drains the Queue
// under a single logical writer, decides batch-vs-gather per drain
// slice, drives the transport, and completes callbacks. A single hot
// loop coalesces several drained submissions into one transport.Write,
// under a strict single-in-flight-write discipline.
type Engine struct {
	q         *Queue
	transport transport.Transport
	gen       *generator.Generator
	pool      *pool.Pool

	bufferSize int
	maxGather  int

	logger   interfaces.Logger
	observer interfaces.Observer

	state   atomic.Int32
	kicked  atomic.Bool
	closing atomic.Bool

	// classify wraps a raw queue/transport/pool error into whatever
	// richer error type the embedding package (wsflush's *Error) wants
	// callbacks to observe. If nil, errors are passed through unwrapped.
	// Set once at construction; the root package supplies this to avoid
	// an import cycle (wsflush imports queue, not the reverse).
	classify func(error) error

	// Aggregate state. Only ever touched by the single goroutine
	// currently running loop() -- the single-writer discipline makes
	// this safe without its own lock.
	agg            pool.Buffer
	aggLen         int
	pendingEntries []*Entry
}

// NewEngine constructs an Engine. bufferSize and maxGather must already
// be validated positive by the caller (the root Config validation).
// classify may be nil; if set, it wraps every error reaching a
// callback's Failed method.
func NewEngine(q *Queue, tr transport.Transport, gen *generator.Generator, p *pool.Pool, bufferSize, maxGather int, logger interfaces.Logger, observer interfaces.Observer, classify func(error) error) *Engine {
	if observer == nil {
		observer = interfaces.NopObserver{}
	}
	if classify == nil {
		classify = func(err error) error { return err }
	}
	return &Engine{
		q:          q,
		transport:  tr,
		gen:        gen,
		pool:       p,
		bufferSize: bufferSize,
		maxGather:  maxGather,
		logger:     logger,
		observer:   observer,
		classify:   classify,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Kick wakes the engine: if it is idle, this goroutine wins the
// idle->processing transition and starts the step loop; otherwise the
// kicked flag is left set for whichever goroutine is already running the
// loop to observe at its next step boundary.
func (e *Engine) Kick() {
	e.kicked.Store(true)
	if e.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing)) {
		go e.loop()
	}
}

// Fail marks the engine as closing. If the engine is idle it transitions
// directly to Failed (there is nothing in flight and no pending entry to
// fail). Otherwise the running loop, or the in-flight write's successful
// completion, observes closing at its next checkpoint and fails the
// entries the engine still holds via failInternal. err itself is not
// used; failInternal reports the queue's latched failure.
func (e *Engine) Fail(err error) {
	e.closing.Store(true)
	if e.state.CompareAndSwap(int32(StateIdle), int32(StateFailed)) {
		return
	}
	// Engine is mid-loop or has a write in flight; it will observe
	// closing at its next checkpoint and fail its own internal state.
}

func (e *Engine) loop() {
	for {
		if e.closing.Load() {
			e.failInternal(e.q.Failure())
			return
		}

		e.kicked.Store(false)
		entries, decision := e.q.DrainSlice(e.maxGather, e.bufferSize, e.aggLen)
		e.observer.ObserveQueueDepth(e.q.Len())

		if len(entries) == 0 {
			if e.aggLen > 0 {
				e.issueWrite(nil)
				return
			}
			e.releaseAggregate()
			e.state.Store(int32(StateIdle))
			if e.kicked.Load() && e.state.CompareAndSwap(int32(StateIdle), int32(StateProcessing)) {
				continue
			}
			return
		}

		if decision == BatchOff {
			if err := e.renderGather(entries); err != nil {
				e.failDrainAndQueue(entries, err)
				return
			}
			e.issueWrite(entries)
			return
		}

		if err := e.appendToAggregate(entries); err != nil {
			e.failDrainAndQueue(entries, err)
			return
		}
		e.pendingEntries = append(e.pendingEntries, entries...)
		// Loop again: completing the step synthetically means no
		// transport write yet, not that callbacks fire now. The next
		// iteration typically finds the queue drained and forces the
		// aggregate flush in the empty-drain branch above.
	}
}

// renderGather renders headers for entries (skipping the sentinel, which
// contributes no bytes) into freshly-acquired pool buffers, stashing
// each in its Entry for later release.
func (e *Engine) renderGather(entries []*Entry) error {
	for _, en := range entries {
		if frame.IsSentinel(en.Frame) {
			continue
		}
		buf, err := e.gen.RenderHeader(en.Frame)
		if err != nil {
			return err
		}
		en.headerBuf = buf
	}
	return nil
}

// appendToAggregate lazily acquires the aggregate buffer and copies each
// entry's header and payload into it. Sentinel entries never reach here
// (DrainSlice always forces BatchOff for them).
func (e *Engine) appendToAggregate(entries []*Entry) error {
	if !e.agg.Valid() {
		buf, ok := e.pool.Acquire(e.bufferSize, false)
		if !ok {
			return ErrPoolExhaustion
		}
		e.agg = buf
		e.aggLen = 0
	}

	dst := e.agg.Bytes()
	for _, en := range entries {
		n, err := generator.RenderHeaderInto(en.Frame, dst[e.aggLen:])
		if err != nil {
			return err
		}
		e.aggLen += n
		if len(en.Frame.Payload) > 0 {
			e.aggLen += copy(dst[e.aggLen:], en.Frame.Payload)
		}
	}
	return nil
}

// issueWrite builds the gather buffer list for the current write (the
// aggregate, if non-empty, followed by any freshly-rendered
// header+payload pairs from a just-drained OFF-decision slice), issues
// it to the transport, and transitions to Pending. entries is the slice
// that triggered this write (nil for a pure forced aggregate flush with
// no new slice).
func (e *Engine) issueWrite(entries []*Entry) {
	var buffers [][]byte
	if e.aggLen > 0 {
		buffers = append(buffers, e.agg.Bytes()[:e.aggLen])
	}
	for _, en := range entries {
		if frame.IsSentinel(en.Frame) {
			continue
		}
		buffers = append(buffers, en.headerBuf.Bytes())
		if len(en.Frame.Payload) > 0 {
			buffers = append(buffers, en.Frame.Payload)
		}
	}

	completing := e.pendingEntries
	completing = append(completing, entries...)
	e.pendingEntries = nil
	writtenBytes := 0
	for _, b := range buffers {
		writtenBytes += len(b)
	}
	aggLenUsed := e.aggLen
	batched := aggLenUsed > 0
	gatherLen := len(buffers)
	e.aggLen = 0

	e.state.Store(int32(StatePending))
	start := time.Now()

	e.transport.Write(func(err error) {
		latency := time.Since(start)
		if err == nil {
			e.observer.ObserveWrite(writtenBytes, latency.Nanoseconds(), batched, gatherLen)
		}
		e.onWriteComplete(completing, err)
	}, buffers)
}

// onWriteComplete is the transport completion callback: it releases any
// header buffers owned by the completed entries, invokes each callback
// exactly once, and either resumes the loop (success) or fails the
// engine (error).
func (e *Engine) onWriteComplete(entries []*Entry, err error) {
	defer e.releaseHeaders(entries)

	if err != nil {
		e.completeFailure(entries, err)
		e.state.Store(int32(StateFailed))
		e.observer.ObserveFailure(KindWriteFailure)
		return
	}

	for _, en := range entries {
		e.safeSucceed(en)
	}

	if e.closing.Load() {
		e.failInternal(e.q.Failure())
		return
	}

	e.state.Store(int32(StateProcessing))
	e.loop()
}

// completeFailure latches err (or, if an earlier error already won the
// latch, logs err as a warning and reports that earlier error instead),
// fails entries in drain order, then snapshots and fails every entry
// still sitting in the queue.
func (e *Engine) completeFailure(entries []*Entry, err error) {
	if !e.q.LatchFailure(err) && e.logger != nil {
		e.logger.Warn("wsflush: later terminal error dropped, earlier failure stays latched", "error", err)
	}
	latched := e.q.Failure()
	if latched == nil {
		latched = err
	}
	for _, en := range entries {
		e.safeFail(en, latched)
	}
	for _, en := range e.q.Snapshot() {
		e.safeFail(en, latched)
	}
}

// failDrainAndQueue handles a synchronous failure discovered while
// preparing a write (render/pool exhaustion): it behaves exactly like a
// transport write failure that happened before any bytes went out.
func (e *Engine) failDrainAndQueue(entries []*Entry, err error) {
	e.releaseHeaders(entries)
	all := append(e.pendingEntries, entries...)
	e.pendingEntries = nil
	e.releaseAggregate()
	e.completeFailure(all, err)
	e.state.Store(int32(StateFailed))
	e.observer.ObserveFailure(KindWriteFailure)
}

// failInternal is invoked by the loop (or a racing write completion) once
// it observes the engine is closing: it fails every entry the engine is
// still holding internally (pendingEntries contributed to an unflushed
// aggregate) and transitions to Failed. Entries already sitting in the
// Queue at Close time were already failed by Close itself via
// Queue.Snapshot.
func (e *Engine) failInternal(cause error) {
	if cause == nil {
		cause = ErrClosed
	}
	pending := e.pendingEntries
	e.pendingEntries = nil
	e.releaseAggregate()
	for _, en := range pending {
		e.safeFail(en, cause)
	}
	e.state.Store(int32(StateFailed))
}

func (e *Engine) releaseAggregate() {
	if e.agg.Valid() {
		e.pool.Release(e.agg)
		e.agg = pool.Buffer{}
	}
	e.aggLen = 0
}

func (e *Engine) releaseHeaders(entries []*Entry) {
	for _, en := range entries {
		if en.headerBuf.Valid() {
			e.pool.Release(en.headerBuf)
			en.headerBuf = pool.Buffer{}
		}
	}
}

// safeSucceed and safeFail invoke a callback and recover from a panic so
// a misbehaving callback can never corrupt engine state.
func (e *Engine) safeSucceed(en *Entry) {
	defer e.recoverCallback()
	en.Callback.Succeeded()
}

func (e *Engine) safeFail(en *Entry, err error) {
	defer e.recoverCallback()
	en.Callback.Failed(e.classify(err))
}

func (e *Engine) recoverCallback() {
	if r := recover(); r != nil {
		if e.logger != nil {
			e.logger.Error("wsflush: submission callback panicked", "panic", r)
		}
		e.observer.ObserveFailure(KindCallbackException)
	}
}
