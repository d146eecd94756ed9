package queue

import "errors"

// ErrClosed is returned by Submit once the queue has been closed (either
// by a CLOSE-opcode submission or by Flusher.Close), and is the error
// latched failures downstream of Close report as their cause.
var ErrClosed = errors.New("queue: closed")

// ErrPoolExhaustion is surfaced when the engine cannot acquire a buffer
// (aggregate or header) from the pool. It's treated exactly like a
// transport write failure: it latches and fails every affected and
// queued callback.
var ErrPoolExhaustion = errors.New("queue: buffer pool exhausted")
