// Package interfaces provides internal interface definitions shared by
// wsflush's internal packages. These are kept separate from the public
// package so that the queue and transport packages can depend on them
// without importing the root wsflush package, which would be circular
// (the root package imports queue and transport).
package interfaces

import "github.com/behrlich/wsflush/frame"

// Logger is the narrow logging capability the engine depends on.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer is the metrics-collection capability the flush engine drives.
// Implementations must be safe for concurrent use, since methods are
// called from whatever goroutine is currently running the engine's step
// loop or a transport's completion callback.
type Observer interface {
	// ObserveWrite reports one successfully completed transport write: its
	// total byte count, latency, whether it included aggregated bytes
	// (batched) or was a pure gather write, and the gather list length.
	ObserveWrite(bytes int, latencyNs int64, batched bool, gatherLen int)
	// ObserveSubmit reports one accepted Submit call, tagged by opcode.
	ObserveSubmit(opcode frame.Opcode)
	// ObserveQueueDepth reports the submit queue's length immediately
	// after a drain.
	ObserveQueueDepth(n int)
	// ObserveFailure reports a terminal failure, tagged by error kind.
	ObserveFailure(kind string)
}

// NopObserver implements Observer with no-ops, used when no Observer is
// configured.
type NopObserver struct{}

func (NopObserver) ObserveWrite(int, int64, bool, int) {}
func (NopObserver) ObserveSubmit(frame.Opcode)         {}
func (NopObserver) ObserveQueueDepth(int)              {}
func (NopObserver) ObserveFailure(string)              {}
