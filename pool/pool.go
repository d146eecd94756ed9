// Package pool provides a size-bucketed buffer pool used to avoid
// hot-path allocations when the flush engine renders headers or
// acquires an aggregate buffer.
//
// It uses an arbitrary bucket ladder rather than a single fixed size,
// since a WebSocket frame header (a handful of bytes) and an aggregate
// buffer (kilobytes) sit at very different scales.
package pool

import (
	"sort"
	"sync"

	"github.com/behrlich/wsflush/internal/constants"
)

// Buffer is a pool-owned byte slice. The zero Buffer is invalid; use
// Pool.Acquire to obtain one. Bytes returns the usable slice (length ==
// the originally requested capacity, capacity == the bucket size).
type Buffer struct {
	bytes  []byte
	bucket int
	pool   *Pool
}

// Bytes returns the acquired slice, sized to the originally requested
// capacity.
func (b Buffer) Bytes() []byte { return b.bytes }

// Valid reports whether b was actually returned by a successful Acquire.
func (b Buffer) Valid() bool { return b.pool != nil }

// Pool is a shared, bucketed buffer pool. The zero Pool is not usable;
// use New.
type Pool struct {
	buckets []int
	pools   []sync.Pool
}

// New creates a Pool with the given bucket ladder, sorted ascending. If
// buckets is empty, constants.PoolBucketSizes is used.
func New(buckets []int) *Pool {
	if len(buckets) == 0 {
		buckets = constants.PoolBucketSizes
	}
	sorted := append([]int(nil), buckets...)
	sort.Ints(sorted)

	p := &Pool{
		buckets: sorted,
		pools:   make([]sync.Pool, len(sorted)),
	}
	for i, size := range sorted {
		size := size
		p.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// Acquire returns a buffer of at least capacity bytes. direct is accepted
// for interface parity with transports that care about pinned/page-aligned
// memory (see transport/iouring); the default pool makes no such
// distinction and direct is otherwise ignored. Acquire never blocks; if
// capacity exceeds every bucket, ok is false and the caller should treat
// this as pool exhaustion.
func (p *Pool) Acquire(capacity int, direct bool) (buf Buffer, ok bool) {
	_ = direct
	idx := p.bucketFor(capacity)
	if idx < 0 {
		return Buffer{}, false
	}
	bucketSize := p.buckets[idx]
	ptr := p.pools[idx].Get().(*[]byte)
	b := *ptr
	if cap(b) < bucketSize {
		b = make([]byte, bucketSize)
	}
	return Buffer{bytes: b[:capacity], bucket: idx, pool: p}, true
}

// Release returns b to its bucket pool. Releasing the zero Buffer is a
// no-op. Callers must not call Release more than once per Buffer
// (exactly-once return, matching the core's contract with the pool).
func (p *Pool) Release(b Buffer) {
	if b.pool == nil {
		return
	}
	full := b.bytes[:cap(b.bytes)]
	if cap(full) != p.buckets[b.bucket] {
		// Non-standard capacity (shouldn't happen via Acquire); drop it
		// rather than corrupt the bucket's size invariant.
		return
	}
	p.pools[b.bucket].Put(&full)
}

func (p *Pool) bucketFor(capacity int) int {
	for i, size := range p.buckets {
		if size >= capacity {
			return i
		}
	}
	return -1
}

// Default is the shared pool used by generator.Generator and the flush
// engine's aggregate buffer when no explicit Pool is configured.
var Default = New(nil)
