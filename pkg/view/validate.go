package view

import (
	"iter"

	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

// Validate walks s according to its schema without decoding any record
// and reports the first structural problem. Static streams can only be
// checked for a whole number of equal strides since the stride belongs
// to the record type.
func Validate(s stream.Stream) error {
	l, err := s.Schema().Layout()
	if err != nil {
		return err
	}
	switch l.(type) {
	case schema.None:
		if s.Count() != 0 || s.Size() != 0 {
			return malformed("schema-less stream holds %d records", s.Count())
		}
	case schema.Static:
		if s.Count() == 0 {
			if s.Size() != 0 {
				return malformed("empty static stream has size %d", s.Size())
			}
			return nil
		}
		if s.Size()%uint64(s.Count()) != 0 {
			return malformed("static stream size %d is not a multiple of %d records", s.Size(), s.Count())
		}
	case schema.Dynamic:
		return walk(s, false)
	case schema.Ordered:
		return walk(s, true)
	}
	return nil
}

func walk(s stream.Stream, ordered bool) error {
	c := newCursor(s, ordered)
	for !c.done {
		c.next()
	}
	return c.err
}

// Walk yields every record of a dynamic or ordered stream without
// decoding it. Dynamic records carry the stream's message id. Other
// layouts yield a single schema mismatch error.
func Walk(s stream.Stream) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		h := s.Schema()
		if h.Kind != schema.KindDynamic && h.Kind != schema.KindOrdered {
			yield(Record{}, h.Expect(schema.OrderedOf()))
			return
		}
		c := newCursor(s, h.IsOrdered())
		for ; !c.done; c.next() {
			id := c.id
			if !c.ordered {
				id = h.ID
			}
			if !yield(Record{ID: id, Payload: c.payload}, nil) {
				return
			}
		}
		if c.err != nil {
			yield(Record{}, c.err)
		}
	}
}
