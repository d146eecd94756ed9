package queue

import (
	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/pool"
)

// Callback is the completion capability a submitter supplies alongside a
// frame. The engine invokes exactly one of its two methods, exactly
// once, for every accepted submission.
type Callback interface {
	Succeeded()
	Failed(err error)
}

// CallbackFunc adapts two plain functions into a Callback, convenient for
// tests and simple call sites that don't want to define a type.
type CallbackFunc struct {
	OnSuccess func()
	OnFailure func(error)
}

func (f CallbackFunc) Succeeded() {
	if f.OnSuccess != nil {
		f.OnSuccess()
	}
}

func (f CallbackFunc) Failed(err error) {
	if f.OnFailure != nil {
		f.OnFailure(err)
	}
}

// BatchMode is a submission's batching hint. The zero value is Off; the
// total order Off < On < Auto matters — a drain slice's effective
// decision starts at Auto, drops to the lowest of its entries' hints, and
// is forced to Off by the size and sentinel conditions (see
// Queue.DrainSlice). The engine only distinguishes Off from the rest.
type BatchMode int

const (
	BatchOff BatchMode = iota
	BatchOn
	BatchAuto
)

func (m BatchMode) String() string {
	switch m {
	case BatchOff:
		return "off"
	case BatchOn:
		return "on"
	case BatchAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Entry is a queued submission: a frame, its callback, its batch hint,
// and a lazily-populated header buffer set only when the engine renders
// the header into a freshly-acquired buffer for a gather write rather
// than into the shared aggregate.
type Entry struct {
	Frame     *frame.Frame
	Callback  Callback
	Hint      BatchMode
	headerBuf pool.Buffer
}
