package view

import (
	"fmt"
	"iter"

	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

// Ordered multiplexes records of any type; every record carries its id
// and payload size so unknown ids can be skipped.
type Ordered struct {
	s     stream.Stream
	rw    *stream.ReadWrite
	codec *message.Codec
}

func NewOrdered(s stream.Stream, opts ...Option) (*Ordered, error) {
	o := buildOptions(opts)
	rw, err := bind(s, schema.OrderedOf())
	if err != nil {
		return nil, err
	}
	return &Ordered{s: s, rw: rw, codec: o.codec}, nil
}

func (v *Ordered) Len() int               { return int(v.s.Count()) }
func (v *Ordered) Stream() stream.Stream { return v.s }

// Reserve appends a record laid out by a, writes its header and returns
// the payload with tail headers patched.
func (v *Ordered) Reserve(a message.Allocation) (span.Span, error) {
	if v.rw == nil {
		return span.Span{}, ErrReadOnly
	}
	if err := a.Validate(); err != nil {
		return span.Span{}, err
	}
	mark := v.rw.Mark()
	payload, err := reserve(v.rw, a, true)
	if err != nil {
		v.rw.Truncate(mark)
		return span.Span{}, err
	}
	return payload, nil
}

// Add appends m under its own id.
func (v *Ordered) Add(m message.Message) (span.Span, error) {
	a, err := v.codec.AllocationOf(m)
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
	if err := v.codec.Encode(payload, m); err != nil {
		v.rw.Truncate(mark)
		return span.Span{}, err
	}
	return payload, nil
}

// Iterator returns a cursor positioned on the first record.
func (v *Ordered) Iterator() *Iterator {
	return &Iterator{c: newCursor(v.s, true), codec: v.codec}
}

type Record struct {
	ID      uint32
	Payload span.Span
}

// All yields (record, nil) for each record, then (zero, err) if the walk
// hit a malformed record.
func (v *Ordered) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		it := v.Iterator()
		for ; it.Good(); it.Next() {
			if !yield(Record{ID: it.ID(), Payload: it.Payload()}, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Record{}, err)
		}
	}
}

// Iterator walks an ordered stream. It has two states: positioned on a
// record (Good is true) or at the end of the stream. The end is terminal;
// a malformed record also ends the walk and is reported by Err.
type Iterator struct {
	c     *cursor
	codec *message.Codec
}

func (it *Iterator) Good() bool { return !it.c.done }

// Next moves to the following record. It is a no-op at the end.
func (it *Iterator) Next() { it.c.next() }

// ID is the message id of the current record.
func (it *Iterator) ID() uint32 { return it.c.id }

// Size is the payload size of the current record.
func (it *Iterator) Size() uint64 { return it.c.size }

// Offset of the current record header inside the stream.
func (it *Iterator) Offset() int { return it.c.pos }

func (it *Iterator) Payload() span.Span { return it.c.payload }

func (it *Iterator) Err() error { return it.c.err }

// Decode reads the current record into m, which must be a pointer to a
// message with the record's id.
func (it *Iterator) Decode(m message.Message) error {
	if !it.Good() {
		return ErrEndOfStream
	}
	if m.MessageID() != it.ID() {
		return fmt.Errorf("%w: record id %d, target id %d", schema.ErrSchemaMismatch, it.ID(), m.MessageID())
	}
	return it.codec.Decode(it.Payload(), m)
}

// Get decodes the current record as T.
func Get[T any, PT interface {
	*T
	message.Message
}](it *Iterator) (T, error) {
	var out T
	err := it.Decode(PT(&out))
	return out, err
}
