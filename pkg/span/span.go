package span

import (
	"encoding/binary"
	"errors"
)

var ErrOutOfRange = errors.New("span: out of range")

// Source is anything that can hand out its current backing bytes.
// Spans ask the source on every access, so a source is free to grow
// (and relocate) its buffer between calls.
type Source interface {
	Bytes() []byte
}

type bytesSource []byte

func (b bytesSource) Bytes() []byte { return b }

// Span is a bounds-carrying window [off, off+n) over a Source.
// It never copies and never owns memory.
type Span struct {
	src Source
	off int
	n   int
}

// New wraps a plain byte slice.
func New(b []byte) Span {
	return Span{src: bytesSource(b), n: len(b)}
}

// Over returns a span over src[off:off+n]. The range is validated
// against the source's current length.
func Over(src Source, off, n int) (Span, error) {
	if src == nil || off < 0 || n < 0 || off+n > len(src.Bytes()) {
		return Span{}, ErrOutOfRange
	}
	return Span{src: src, off: off, n: n}, nil
}

func (s Span) Len() int      { return s.n }
func (s Span) IsEmpty() bool { return s.n == 0 }

// Offset is the absolute position of the span inside its source.
func (s Span) Offset() int { return s.off }

// Slice narrows the span to [off, Len()).
func (s Span) Slice(off int) (Span, error) {
	return s.SliceN(off, s.n-off)
}

// SliceN narrows the span to [off, off+n).
func (s Span) SliceN(off, n int) (Span, error) {
	if off < 0 || n < 0 || off > s.n || n > s.n-off {
		return Span{}, ErrOutOfRange
	}
	return Span{src: s.src, off: s.off + off, n: n}, nil
}

// Bytes returns the live window. It returns nil if the source shrank
// underneath the span (e.g. a cleared stream).
func (s Span) Bytes() []byte {
	b, err := s.live()
	if err != nil {
		return nil
	}
	return b
}

func (s Span) live() ([]byte, error) {
	if s.src == nil {
		if s.n == 0 {
			return nil, nil
		}
		return nil, ErrOutOfRange
	}
	b := s.src.Bytes()
	if s.off+s.n > len(b) {
		return nil, ErrOutOfRange
	}
	return b[s.off : s.off+s.n : s.off+s.n], nil
}

func (s Span) at(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > s.n || n > s.n-off {
		return nil, ErrOutOfRange
	}
	b, err := s.live()
	if err != nil {
		return nil, err
	}
	return b[off : off+n], nil
}

// Read borrows n bytes at off. The result aliases the source.
func (s Span) Read(off, n int) ([]byte, error) {
	return s.at(off, n)
}

// Write copies p into the span at off.
func (s Span) Write(off int, p []byte) error {
	b, err := s.at(off, len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Fill sets every byte of the span to v.
func (s Span) Fill(v byte) error {
	b, err := s.live()
	if err != nil {
		return err
	}
	for i := range b {
		b[i] = v
	}
	return nil
}

func (s Span) Uint8(off int) (uint8, error) {
	b, err := s.at(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s Span) PutUint8(off int, v uint8) error {
	b, err := s.at(off, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (s Span) Uint32(off int) (uint32, error) {
	b, err := s.at(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s Span) PutUint32(off int, v uint32) error {
	b, err := s.at(off, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (s Span) Uint64(off int) (uint64, error) {
	b, err := s.at(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s Span) PutUint64(off int, v uint64) error {
	b, err := s.at(off, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
