package stream

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
)

var (
	ErrMalformedStream = errors.New("stream: malformed")
	ErrFrozen          = errors.New("stream: frozen")
)

// Stream is the read side shared by both stream flavours.
type Stream interface {
	Schema() schema.Header
	Count() uint32
	Size() uint64
	Span() span.Span
}

// ReadOnly is an immutable stream over a received buffer. Safe for
// concurrent readers as long as nobody mutates data.
type ReadOnly struct {
	schema  schema.Header
	count   uint32
	data    []byte
	version uint32
}

// NewReadOnly checks the declared size against the buffer it describes.
func NewReadOnly(h schema.Header, count uint32, size uint64, data []byte) (*ReadOnly, error) {
	if size != uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared %d bytes, buffer holds %d", ErrMalformedStream, size, len(data))
	}
	return &ReadOnly{schema: h, count: count, data: data}, nil
}

// WithVersion tags the stream with the producer's version id.
func (s *ReadOnly) WithVersion(v uint32) *ReadOnly {
	s.version = v
	return s
}

func (s *ReadOnly) Schema() schema.Header { return s.schema }
func (s *ReadOnly) Count() uint32         { return s.count }
func (s *ReadOnly) Size() uint64          { return uint64(len(s.data)) }
func (s *ReadOnly) Data() []byte          { return s.data }
func (s *ReadOnly) Version() uint32       { return s.version }
func (s *ReadOnly) Span() span.Span       { return span.New(s.data) }

// ReadWrite is an append-only builder. It is single writer: concurrent
// Allocate calls need external locking.
//
// Spans handed out by Allocate resolve against the current buffer on
// every access, so they stay valid when the buffer grows. They become
// invalid after Clear.
type ReadWrite struct {
	schema  schema.Header
	count   uint32
	buf     []byte
	version uint32
	frozen  bool
}

func NewReadWrite(h schema.Header) *ReadWrite {
	return &ReadWrite{schema: h}
}

func (s *ReadWrite) Schema() schema.Header { return s.schema }
func (s *ReadWrite) Count() uint32         { return s.count }
func (s *ReadWrite) Size() uint64          { return uint64(len(s.buf)) }
func (s *ReadWrite) Version() uint32       { return s.version }
func (s *ReadWrite) Frozen() bool          { return s.frozen }

// Bytes implements span.Source.
func (s *ReadWrite) Bytes() []byte { return s.buf }

func (s *ReadWrite) Span() span.Span {
	sp, _ := span.Over(s.generation(), 0, len(s.buf))
	return sp
}

// generation resolves to the buffer only while the stream has not been
// cleared since it was taken.
type generation struct {
	s       *ReadWrite
	version uint32
}

func (g generation) Bytes() []byte {
	if g.s.version != g.version {
		return nil
	}
	return g.s.buf
}

func (s *ReadWrite) generation() generation {
	return generation{s: s, version: s.version}
}

// GetOrSetSchema adopts h if no schema was set yet and returns the
// schema now in effect.
func (s *ReadWrite) GetOrSetSchema(h schema.Header) schema.Header {
	if s.schema.IsNone() && s.count == 0 && !s.frozen {
		s.schema = h
	}
	return s.schema
}

// Reserve grows capacity so the next n bytes of allocations do not
// relocate the buffer.
func (s *ReadWrite) Reserve(n int) {
	if n > 0 {
		s.buf = slices.Grow(s.buf, n)
	}
}

// Allocate appends n zeroed bytes as one record and returns a span over
// them.
func (s *ReadWrite) Allocate(n int) (span.Span, error) {
	if s.frozen {
		return span.Span{}, ErrFrozen
	}
	if n < 0 {
		return span.Span{}, span.ErrOutOfRange
	}
	off := len(s.buf)
	s.buf = slices.Grow(s.buf, n)
	s.buf = s.buf[:off+n]
	clear(s.buf[off:])
	s.count++
	return span.Over(s.generation(), off, n)
}

// Mark records the current end of the stream for Truncate.
type Mark struct {
	size  int
	count uint32
}

func (s *ReadWrite) Mark() Mark {
	return Mark{size: len(s.buf), count: s.count}
}

// Truncate drops every record appended after m. It undoes a failed
// append; spans over the dropped records must not be kept.
func (s *ReadWrite) Truncate(m Mark) error {
	if s.frozen {
		return ErrFrozen
	}
	if m.size > len(s.buf) || m.count > s.count {
		return span.ErrOutOfRange
	}
	s.buf = s.buf[:m.size]
	s.count = m.count
	return nil
}

// Clear drops every record and keeps the schema. Spans returned before
// Clear stop resolving, even once new records cover their range.
func (s *ReadWrite) Clear() {
	if s.frozen {
		// the frozen buffer belongs to a ReadOnly now
		s.buf = nil
	}
	s.buf = s.buf[:0]
	s.count = 0
	s.frozen = false
	s.version++
}

// Freeze ends the write phase and returns the read-only equivalent.
// The returned stream shares the buffer.
func (s *ReadWrite) Freeze() *ReadOnly {
	s.frozen = true
	return &ReadOnly{schema: s.schema, count: s.count, data: s.buf, version: s.version}
}

// ToReadOnly copies the current contents without freezing.
func (s *ReadWrite) ToReadOnly() *ReadOnly {
	return &ReadOnly{schema: s.schema, count: s.count, data: slices.Clone(s.buf), version: s.version}
}
