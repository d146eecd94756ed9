// Package generator renders frame.Frame values into RFC 6455 wire bytes.
// It owns no scheduling state; it is a pure, allocation-conscious codec
// used by the flush engine (and usable standalone by callers who only
// want header bytes for a manual gather write).
package generator

import (
	"encoding/binary"
	"errors"

	"github.com/behrlich/wsflush/frame"
	"github.com/behrlich/wsflush/pool"
)

// MaxHeaderLength is the largest possible RFC 6455 header: 2 base bytes,
// 8 bytes of extended length, 4 bytes of mask key.
const MaxHeaderLength = 2 + 8 + 4

// ErrDstTooSmall is returned by RenderHeaderInto when the destination
// slice cannot hold HeaderLength(f) bytes.
var ErrDstTooSmall = errors.New("generator: destination too small for header")

// Generator renders WebSocket frame headers, drawing header buffers from
// a shared pool.Pool.
type Generator struct {
	pool *pool.Pool
}

// New creates a Generator backed by p. If p is nil, pool.Default is used.
func New(p *pool.Pool) *Generator {
	if p == nil {
		p = pool.Default
	}
	return &Generator{pool: p}
}

// Pool returns the buffer pool backing this generator.
func (g *Generator) Pool() *pool.Pool { return g.pool }

// HeaderLength returns the exact RFC 6455 header length for f: 2 base
// bytes, plus 2 or 8 extended length bytes depending on payload size,
// plus 4 mask key bytes if f.Mask is set.
func HeaderLength(f *frame.Frame) int {
	n := len(f.Payload)
	length := 2
	switch {
	case n >= 65536:
		length += 8
	case n >= 126:
		length += 2
	}
	if f.Mask != nil {
		length += 4
	}
	return length
}

// RenderHeader acquires a pool buffer sized to HeaderLength(f), writes
// the header into it, and returns the buffer sized to the bytes written.
// The caller must Release the buffer once the header bytes have been
// consumed by the transport.
func (g *Generator) RenderHeader(f *frame.Frame) (pool.Buffer, error) {
	n := HeaderLength(f)
	buf, ok := g.pool.Acquire(n, false)
	if !ok {
		return pool.Buffer{}, errPoolExhausted
	}
	if _, err := RenderHeaderInto(f, buf.Bytes()); err != nil {
		g.pool.Release(buf)
		return pool.Buffer{}, err
	}
	return buf, nil
}

// errPoolExhausted is a package-local sentinel; the root wsflush package
// wraps it into its own *Error taxonomy (KindPoolExhaustion) rather than
// exposing this type directly.
var errPoolExhausted = errors.New("generator: header buffer pool exhausted")

// ErrPoolExhausted reports whether err originates from header buffer pool
// exhaustion, for callers using errors.Is.
func ErrPoolExhausted(err error) bool {
	return errors.Is(err, errPoolExhausted)
}

// RenderHeaderInto writes f's RFC 6455 header into dst and returns the
// number of bytes written. dst must be at least HeaderLength(f) bytes.
//
// RenderHeaderInto never touches f.Payload: if f.Mask is set, the MASK
// bit and the mask key are encoded into the header, but masking the
// payload bytes themselves is left to the caller.
func RenderHeaderInto(f *frame.Frame, dst []byte) (int, error) {
	want := HeaderLength(f)
	if len(dst) < want {
		return 0, ErrDstTooSmall
	}

	var b0 byte
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	if f.RSV2 {
		b0 |= 0x20
	}
	if f.RSV3 {
		b0 |= 0x10
	}
	b0 |= byte(f.Opcode) & 0x0F
	dst[0] = b0

	var b1 byte
	masked := f.Mask != nil
	if masked {
		b1 |= 0x80
	}

	n := len(f.Payload)
	off := 2
	switch {
	case n < 126:
		b1 |= byte(n)
	case n < 65536:
		b1 |= 126
		binary.BigEndian.PutUint16(dst[2:4], uint16(n))
		off = 4
	default:
		b1 |= 127
		binary.BigEndian.PutUint64(dst[2:10], uint64(n))
		off = 10
	}
	dst[1] = b1

	if masked {
		copy(dst[off:off+4], f.Mask[:])
		off += 4
	}

	return off, nil
}
