// Package wsflush provides an outbound WebSocket frame flusher: a
// single-writer, batching serializer that takes application-submitted
// frames, renders them to RFC 6455 wire bytes, and hands them to a
// byte-oriented transport while honoring frame ordering, a PING-priority
// exception, and exactly-once callback completion.
//
// The package does not perform the WebSocket handshake, does not
// interpret incoming frames, does not mask outgoing payloads, does not
// manage idle timeouts, and does not fragment messages — all of that is
// external collaborator responsibility; wsflush only owns the write
// path from accepted frame to completed callback.
package wsflush

import (
	"context"
	"fmt"

	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/generator"
	"github.com/behrlich/wsflush/internal/constants"
	"github.com/behrlich/wsflush/internal/interfaces"
	"github.com/behrlich/wsflush/internal/logging"
	"github.com/behrlich/wsflush/pool"
	"github.com/behrlich/wsflush/queue"
	"github.com/behrlich/wsflush/transport"
)

// Config holds the tunables a Flusher is constructed with.
type Config struct {
	// BufferSize is the aggregate buffer's capacity in bytes, and (by the
	// quarter-of-BufferSize rule) the implicit large-frame gather-write
	// threshold divisor.
	BufferSize int

	// MaxGather is the maximum number of entries drained from the submit
	// queue per engine step.
	MaxGather int

	// MaxQueueLength optionally bounds the submit queue; 0 means
	// unbounded. Over-bound submissions fail with KindQueueFull.
	MaxQueueLength int
}

// DefaultConfig returns a Config with the package's default tunables.
func DefaultConfig() Config {
	return Config{
		BufferSize: constants.DefaultBufferSize,
		MaxGather:  constants.DefaultMaxGather,
	}
}

func (c Config) validate() error {
	if c.BufferSize < constants.MinBufferSize {
		return fmt.Errorf("wsflush: BufferSize must be >= %d", constants.MinBufferSize)
	}
	if c.MaxGather <= 0 {
		return fmt.Errorf("wsflush: MaxGather must be > 0")
	}
	if c.MaxQueueLength < 0 {
		return fmt.Errorf("wsflush: MaxQueueLength must be >= 0")
	}
	return nil
}

// Observer receives metrics callbacks from the flush engine. See
// internal/interfaces.Observer for the method set; it is aliased here so
// callers never need to import the internal package directly.
type Observer = interfaces.Observer

// Options holds the optional collaborators a Flusher is constructed
// with.
type Options struct {
	Logger   *logging.Logger
	Observer Observer
	Context  context.Context
	Pool     *pool.Pool
}

// Flusher is the outbound frame flusher. The zero Flusher is not usable;
// construct one with New.
type Flusher struct {
	engine   *queue.Engine
	q        *queue.Queue
	gen      *generator.Generator
	ctx      context.Context
	observer Observer
}

// New constructs a Flusher writing through tr, rendering headers with
// gen (or, if gen is nil, a Generator over opts.Pool, which falls back
// to pool.Default when opts.Pool is nil).
func New(tr transport.Transport, gen *generator.Generator, cfg Config, opts *Options) (*Flusher, error) {
	if tr == nil {
		return nil, fmt.Errorf("wsflush: transport must not be nil")
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	p := opts.Pool
	if gen == nil {
		gen = generator.New(p)
	}
	if p == nil {
		p = gen.Pool()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	observer := opts.Observer
	if observer == nil {
		observer = interfaces.NopObserver{}
	}

	q := queue.New(cfg.MaxQueueLength)
	engine := queue.NewEngine(q, tr, gen, p, cfg.BufferSize, cfg.MaxGather, logger, observer,
		func(err error) error { return newError("flush", err) })

	f := &Flusher{engine: engine, q: q, gen: gen, ctx: ctx, observer: observer}
	go f.watchContext()
	return f, nil
}

func (f *Flusher) watchContext() {
	<-f.ctx.Done()
	_ = f.Close()
}

// Submit enqueues f for writing with completion reported via cb. It
// never blocks: it either accepts the submission and kicks the engine,
// or synchronously invokes cb.Failed with a classified *Error.
func (f *Flusher) Submit(fr *frame.Frame, cb queue.Callback, hint queue.BatchMode) error {
	entry := &queue.Entry{Frame: fr, Callback: cb, Hint: hint}
	if err := f.q.Submit(entry); err != nil {
		classified := classifySubmitError(err)
		cb.Failed(classified)
		return classified
	}
	f.observer.ObserveSubmit(fr.Opcode)
	f.engine.Kick()
	return nil
}

// Sentinel submits the distinguished flush sentinel, forcing any
// pending aggregated bytes to be written. It produces no on-wire bytes
// of its own; cb fires once the flush completes.
func (f *Flusher) Sentinel(cb queue.Callback) error {
	return f.Submit(frame.FlushSentinel, cb, queue.BatchOff)
}

// Close idempotently transitions the Flusher to a terminal state: every
// queued submission fails with KindClosed, and every subsequent Submit
// fails the same way. If a write is already in flight, its completion
// races with this call; both outcomes (success or KindClosed) are legal
// for that write's callbacks.
func (f *Flusher) Close() error {
	f.q.CloseNow()
	f.q.LatchFailure(queue.ErrClosed)

	for _, en := range f.q.Snapshot() {
		func() {
			defer func() { recover() }()
			en.Callback.Failed(ErrClosed)
		}()
	}

	f.engine.Fail(queue.ErrClosed)
	return nil
}
