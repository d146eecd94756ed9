// Package transport defines the byte-oriented write capability the flush
// engine drives. Concrete transports (transport/mem, transport/net,
// transport/iouring) implement Transport; the engine never depends on a
// specific one.
package transport

// Completion is invoked exactly once when a Write finishes, carrying nil
// on success or the transport error on failure. Transports may invoke it
// on an arbitrary goroutine (e.g. a completion-polling loop), never
// synchronously from inside Write unless the write is itself synchronous.
type Completion func(err error)

// Transport performs a single logical gather-write of buffers, in order,
// notifying cb exactly once when the write completes. Implementations
// must treat buffers as borrowed: they must not retain or modify them
// past the call to cb.
type Transport interface {
	Write(cb Completion, buffers [][]byte)
}
