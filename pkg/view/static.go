package view

import (
	"iter"

	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

// Static is a fixed-stride view: record i lives at i*stride and carries
// no header. T must not have variable-length fields.
type Static[T any, PT interface {
	*T
	message.Message
}] struct {
	s      stream.Stream
	rw     *stream.ReadWrite
	id     uint32
	stride int
	codec  *message.Codec
}

func NewStatic[T any, PT interface {
	*T
	message.Message
}](s stream.Stream, opts ...Option) (*Static[T, PT], error) {
	o := buildOptions(opts)
	var zero T
	id := PT(&zero).MessageID()
	stride, err := o.codec.FixedSize(PT(&zero))
	if err != nil {
		return nil, err
	}
	rw, err := bind(s, schema.StaticOf(id))
	if err != nil {
		return nil, err
	}
	v := &Static[T, PT]{s: s, rw: rw, id: id, stride: stride, codec: o.codec}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Static[T, PT]) validate() error {
	if want := uint64(v.s.Count()) * uint64(v.stride); v.s.Size() != want {
		return malformed("static stream of %d x %d bytes has size %d", v.s.Count(), v.stride, v.s.Size())
	}
	return nil
}

func (v *Static[T, PT]) Len() int    { return int(v.s.Count()) }
func (v *Static[T, PT]) Stride() int { return v.stride }

// Add appends one record.
func (v *Static[T, PT]) Add(m T) error {
	if v.rw == nil {
		return ErrReadOnly
	}
	mark := v.rw.Mark()
	rec, err := v.rw.Allocate(v.stride)
	if err != nil {
		return err
	}
	if err := v.codec.Encode(rec, PT(&m)); err != nil {
		v.rw.Truncate(mark)
		return err
	}
	return nil
}

// Record returns the raw bytes of record i.
func (v *Static[T, PT]) Record(i int) (span.Span, error) {
	if i < 0 || i >= v.Len() {
		return span.Span{}, span.ErrOutOfRange
	}
	return v.s.Span().SliceN(i*v.stride, v.stride)
}

func (v *Static[T, PT]) Get(i int) (T, error) {
	var out T
	rec, err := v.Record(i)
	if err != nil {
		return out, err
	}
	err = v.codec.Decode(rec, PT(&out))
	return out, err
}

// All yields every record in storage order. It can be ranged over any
// number of times.
func (v *Static[T, PT]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := v.validate(); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for i := range v.Len() {
			if !yield(v.Get(i)) {
				return
			}
		}
	}
}
