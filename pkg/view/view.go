package view

import (
	"errors"
	"fmt"

	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

const (
	DynamicHeaderSize = 8  // byte_size u64
	OrderedHeaderSize = 12 // id u32, byte_size u64
)

var (
	ErrReadOnly    = errors.New("view: stream is read-only")
	ErrEndOfStream = errors.New("view: end of stream")
)

type options struct {
	codec *message.Codec
}

type Option func(*options)

// WithCodec selects the codec used to encode and decode records.
func WithCodec(c *message.Codec) Option {
	return func(o *options) { o.codec = c }
}

func buildOptions(opts []Option) options {
	o := options{codec: message.Default}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// bind checks s against the wanted schema. A writable stream that has
// no schema yet adopts it.
func bind(s stream.Stream, want schema.Header) (*stream.ReadWrite, error) {
	rw, _ := s.(*stream.ReadWrite)
	have := s.Schema()
	if rw != nil {
		have = rw.GetOrSetSchema(want)
	}
	// the header id of an ordered stream carries no meaning
	if want.IsOrdered() && have.IsOrdered() {
		return rw, nil
	}
	if err := have.Expect(want); err != nil {
		return nil, err
	}
	return rw, nil
}

// reserve appends one size-prefixed record laid out by a. On error the
// caller truncates the stream back to where it was.
func reserve(rw *stream.ReadWrite, a message.Allocation, ordered bool) (span.Span, error) {
	hs := DynamicHeaderSize
	if ordered {
		hs = OrderedHeaderSize
	}
	size := a.Size()
	rec, err := rw.Allocate(hs + size)
	if err != nil {
		return span.Span{}, err
	}
	off := 0
	if ordered {
		if err := rec.PutUint32(0, a.ID); err != nil {
			return span.Span{}, err
		}
		off = 4
	}
	if err := rec.PutUint64(off, uint64(size)); err != nil {
		return span.Span{}, err
	}
	payload, err := rec.Slice(hs)
	if err != nil {
		return span.Span{}, err
	}
	return payload, a.Patch(payload)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{stream.ErrMalformedStream}, args...)...)
}

// cursor walks size-prefixed records. It starts positioned on the first
// record (or at the end) and only ever moves forward.
type cursor struct {
	data    span.Span
	ordered bool
	count   uint32

	pos     int
	seen    uint32
	id      uint32
	size    uint64
	payload span.Span
	done    bool
	err     error
}

func newCursor(s stream.Stream, ordered bool) *cursor {
	c := &cursor{data: s.Span(), ordered: ordered, count: s.Count()}
	c.load()
	return c
}

func (c *cursor) headerSize() int {
	if c.ordered {
		return OrderedHeaderSize
	}
	return DynamicHeaderSize
}

func (c *cursor) fail(err error) {
	c.err = err
	c.done = true
	c.payload = span.Span{}
}

func (c *cursor) load() {
	end := c.data.Len()
	if c.pos == end {
		c.done = true
		c.payload = span.Span{}
		if c.seen != c.count {
			c.err = malformed("walked %d records, stream declares %d", c.seen, c.count)
		}
		return
	}
	hs := c.headerSize()
	if end-c.pos < hs {
		c.fail(malformed("record header at %d crosses end %d", c.pos, end))
		return
	}
	off := c.pos
	if c.ordered {
		id, err := c.data.Uint32(off)
		if err != nil {
			c.fail(err)
			return
		}
		c.id = id
		off += 4
	}
	size, err := c.data.Uint64(off)
	if err != nil {
		c.fail(err)
		return
	}
	if size > uint64(end-c.pos-hs) {
		c.fail(malformed("record at %d declares %d bytes, %d left", c.pos, size, end-c.pos-hs))
		return
	}
	c.size = size
	c.payload, err = c.data.SliceN(c.pos+hs, int(size))
	if err != nil {
		c.fail(err)
		return
	}
	c.seen++
}

func (c *cursor) next() {
	if c.done {
		return
	}
	c.pos += c.headerSize() + int(c.size)
	c.load()
}
