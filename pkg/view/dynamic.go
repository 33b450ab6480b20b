package view

import (
	"fmt"
	"iter"

	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

// Dynamic is a single-type view whose records are prefixed with their
// payload byte size.
type Dynamic[T any, PT interface {
	*T
	message.Message
}] struct {
	s     stream.Stream
	rw    *stream.ReadWrite
	id    uint32
	codec *message.Codec
}

func NewDynamic[T any, PT interface {
	*T
	message.Message
}](s stream.Stream, opts ...Option) (*Dynamic[T, PT], error) {
	o := buildOptions(opts)
	var zero T
	id := PT(&zero).MessageID()
	rw, err := bind(s, schema.DynamicOf(id))
	if err != nil {
		return nil, err
	}
	return &Dynamic[T, PT]{s: s, rw: rw, id: id, codec: o.codec}, nil
}

func (v *Dynamic[T, PT]) Len() int { return int(v.s.Count()) }

// Reserve appends a record laid out by a and returns its payload with
// every tail header already patched.
func (v *Dynamic[T, PT]) Reserve(a message.Allocation) (span.Span, error) {
	if v.rw == nil {
		return span.Span{}, ErrReadOnly
	}
	if a.ID != v.id {
		return span.Span{}, fmt.Errorf("%w: record id %d in dynamic stream of %d", schema.ErrSchemaMismatch, a.ID, v.id)
	}
	if err := a.Validate(); err != nil {
		return span.Span{}, err
	}
	mark := v.rw.Mark()
	payload, err := reserve(v.rw, a, false)
	if err != nil {
		v.rw.Truncate(mark)
		return span.Span{}, err
	}
	return payload, nil
}

// Add appends m and returns its payload span.
func (v *Dynamic[T, PT]) Add(m T) (span.Span, error) {
	a, err := v.codec.AllocationOf(PT(&m))
	if err != nil {
		return span.Span{}, err
	}
	if v.rw == nil {
		return span.Span{}, ErrReadOnly
	}
	mark := v.rw.Mark()
	payload, err := v.Reserve(a)
	if err != nil {
		return span.Span{}, err
	}
	if err := v.codec.Encode(payload, PT(&m)); err != nil {
		v.rw.Truncate(mark)
		return span.Span{}, err
	}
	return payload, nil
}

// Records yields the raw payload of each record. A header or payload
// running past the end of the stream yields ErrMalformedStream and stops.
func (v *Dynamic[T, PT]) Records() iter.Seq2[span.Span, error] {
	return func(yield func(span.Span, error) bool) {
		c := newCursor(v.s, false)
		for ; !c.done; c.next() {
			if !yield(c.payload, nil) {
				return
			}
		}
		if c.err != nil {
			yield(span.Span{}, c.err)
		}
	}
}

// All decodes each record in turn.
func (v *Dynamic[T, PT]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for rec, err := range v.Records() {
			var out T
			if err == nil {
				err = v.codec.Decode(rec, PT(&out))
			}
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}
