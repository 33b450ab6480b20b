package inline

import (
	"errors"
	"math"

	"github.com/rawbytedev/msgstream/pkg/span"
)

const (
	PtrSize   = 8
	ArraySize = 16 // u64 offset, u32 count, 4 reserved
)

var (
	ErrStringSizeMismatch = errors.New("inline: string size mismatch")
	ErrUnset              = errors.New("inline: offset not set")
)

// Offsets are self-relative: the data lives at the primitive's own
// position plus the stored offset. Primitives are bound to the enclosing
// record span so a dereference can never leave the record.

// Ptr is an inline MessagePtr.
type Ptr[T any] struct {
	s  span.Span
	at int
	c  Codec[T]
}

// PtrAt binds a pointer stored at s[at:at+8].
func PtrAt[T any](s span.Span, at int, c Codec[T]) (Ptr[T], error) {
	if _, err := s.SliceN(at, PtrSize); err != nil {
		return Ptr[T]{}, err
	}
	return Ptr[T]{s: s, at: at, c: c}, nil
}

func (p Ptr[T]) Offset() (uint64, error) { return p.s.Uint64(p.at) }

func (p Ptr[T]) SetOffset(off uint64) error { return p.s.PutUint64(p.at, off) }

func (p Ptr[T]) IsSet() bool {
	off, err := p.Offset()
	return err == nil && off != 0
}

func (p Ptr[T]) target() (span.Span, error) {
	off, err := p.Offset()
	if err != nil {
		return span.Span{}, err
	}
	if off == 0 {
		return span.Span{}, ErrUnset
	}
	if off > uint64(p.s.Len()) {
		return span.Span{}, span.ErrOutOfRange
	}
	return p.s.SliceN(p.at+int(off), p.c.Size)
}

func (p Ptr[T]) Get() (T, error) {
	var zero T
	t, err := p.target()
	if err != nil {
		return zero, err
	}
	b, err := t.Read(0, p.c.Size)
	if err != nil {
		return zero, err
	}
	return p.c.Get(b), nil
}

func (p Ptr[T]) Set(v T) error {
	t, err := p.target()
	if err != nil {
		return err
	}
	b, err := t.Read(0, p.c.Size)
	if err != nil {
		return err
	}
	p.c.Put(b, v)
	return nil
}

// PutArrayHeader writes an array header (offset, count) at s[at:].
func PutArrayHeader(s span.Span, at int, off uint64, count int) error {
	if count < 0 || uint64(count) > math.MaxUint32 {
		return span.ErrOutOfRange
	}
	if err := s.PutUint64(at, off); err != nil {
		return err
	}
	return s.PutUint32(at+8, uint32(count))
}

// Array is an inline MessageArray.
type Array[T any] struct {
	s  span.Span
	at int
	c  Codec[T]
}

// ArrayAt binds an array header stored at s[at:at+16].
func ArrayAt[T any](s span.Span, at int, c Codec[T]) (Array[T], error) {
	if _, err := s.SliceN(at, ArraySize); err != nil {
		return Array[T]{}, err
	}
	return Array[T]{s: s, at: at, c: c}, nil
}

func (a Array[T]) Offset() (uint64, error) { return a.s.Uint64(a.at) }

func (a Array[T]) SetOffset(off uint64) error { return a.s.PutUint64(a.at, off) }

func (a Array[T]) Count() (int, error) {
	n, err := a.s.Uint32(a.at + 8)
	return int(n), err
}

func (a Array[T]) SetCount(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return span.ErrOutOfRange
	}
	return a.s.PutUint32(a.at+8, uint32(n))
}

// Region resolves the data of an array header stored at s[at:] whose
// elements are width bytes wide. It returns the region and the count.
func Region(s span.Span, at, width int) (span.Span, int, error) {
	n32, err := s.Uint32(at + 8)
	if err != nil {
		return span.Span{}, 0, err
	}
	n := int(n32)
	if n == 0 {
		return span.Span{}, 0, nil
	}
	off, err := s.Uint64(at)
	if err != nil {
		return span.Span{}, 0, err
	}
	if off == 0 {
		return span.Span{}, 0, ErrUnset
	}
	if off > uint64(s.Len()) {
		return span.Span{}, 0, span.ErrOutOfRange
	}
	d, err := s.SliceN(at+int(off), n*width)
	return d, n, err
}

// Data returns the backing region of the array.
func (a Array[T]) Data() (span.Span, error) {
	d, _, err := Region(a.s, a.at, a.c.Size)
	return d, err
}

func (a Array[T]) element(i int) ([]byte, error) {
	n, err := a.Count()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, span.ErrOutOfRange
	}
	d, err := a.Data()
	if err != nil {
		return nil, err
	}
	return d.Read(i*a.c.Size, a.c.Size)
}

func (a Array[T]) Get(i int) (T, error) {
	var zero T
	b, err := a.element(i)
	if err != nil {
		return zero, err
	}
	return a.c.Get(b), nil
}

func (a Array[T]) Set(i int, v T) error {
	b, err := a.element(i)
	if err != nil {
		return err
	}
	a.c.Put(b, v)
	return nil
}

// Store bulk-writes values into the front of the array.
func (a Array[T]) Store(values []T) error {
	n, err := a.Count()
	if err != nil {
		return err
	}
	if len(values) > n {
		return span.ErrOutOfRange
	}
	if len(values) == 0 {
		return nil
	}
	d, err := a.Data()
	if err != nil {
		return err
	}
	b, err := d.Read(0, len(values)*a.c.Size)
	if err != nil {
		return err
	}
	for i, v := range values {
		a.c.Put(b[i*a.c.Size:], v)
	}
	return nil
}

// Values decodes every element into a fresh slice.
func (a Array[T]) Values() ([]T, error) {
	n, err := a.Count()
	if err != nil {
		return nil, err
	}
	d, err := a.Data()
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	b := d.Bytes()
	for i := range out {
		out[i] = a.c.Get(b[i*a.c.Size:])
	}
	return out, nil
}

// String is an inline MessageString: an Array of ASCII bytes.
type String struct {
	a Array[uint8]
}

func StringAt(s span.Span, at int) (String, error) {
	a, err := ArrayAt(s, at, Uint8)
	if err != nil {
		return String{}, err
	}
	return String{a: a}, nil
}

func (s String) Len() (int, error) { return s.a.Count() }

// Borrow returns the text bytes without copying.
func (s String) Borrow() ([]byte, error) {
	d, err := s.a.Data()
	if err != nil {
		return nil, err
	}
	return d.Bytes(), nil
}

func (s String) Get() (string, error) {
	b, err := s.Borrow()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Set writes v. The array must already be sized to len(v).
func (s String) Set(v string) error {
	n, err := s.a.Count()
	if err != nil {
		return err
	}
	if n != len(v) {
		return ErrStringSizeMismatch
	}
	if n == 0 {
		return nil
	}
	d, err := s.a.Data()
	if err != nil {
		return err
	}
	return d.Write(0, []byte(v))
}
