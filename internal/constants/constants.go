// Package constants holds the default tunables shared across wsflush's
// internal packages.
package constants

// Default configuration constants.
const (
	// DefaultBufferSize is the default aggregate buffer capacity in bytes,
	// and (by the quarter-of-bufferSize rule) the implicit large-frame
	// gather-write threshold divisor.
	DefaultBufferSize = 16 * 1024

	// DefaultMaxGather is the default maximum number of entries drained
	// from the submit queue per engine step.
	DefaultMaxGather = 16

	// MinBufferSize is the smallest aggregate buffer size accepted by
	// Config validation.
	MinBufferSize = 256
)

// PoolBucketSizes are the buffer pool bucket sizes, in bytes. Buffers are
// bucketed to the smallest size at or above the requested capacity, a
// ladder suited to both frame headers and aggregate buffers.
var PoolBucketSizes = []int{
	64,
	256,
	1024,
	4096,
	16 * 1024,
	64 * 1024,
	256 * 1024,
	1024 * 1024,
}
