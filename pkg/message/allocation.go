package message

import (
	"errors"
	"fmt"
	"math"

	"github.com/rawbytedev/msgstream/pkg/inline"
	"github.com/rawbytedev/msgstream/pkg/span"
)

var ErrInvalidAllocation = errors.New("message: invalid allocation")

// Tail is one variable-length field: the array header sits at At inside
// the fixed part, its Count elements of Width bytes go after the fixed
// part.
type Tail struct {
	At    int
	Count int
	Width int
}

// Allocation declares the complete payload of a record before anything
// is written, so byte_size is always known up front.
type Allocation struct {
	ID    uint32
	Fixed int
	Tails []Tail
}

// Size is the payload byte size (record header excluded).
func (a Allocation) Size() int {
	n := a.Fixed
	for _, t := range a.Tails {
		n += t.Count * t.Width
	}
	return n
}

// Validate checks that every tail header fits inside the fixed part and
// every tail region has a sane size.
func (a Allocation) Validate() error {
	if a.Fixed < 0 {
		return fmt.Errorf("%w: fixed size %d", ErrInvalidAllocation, a.Fixed)
	}
	for i, t := range a.Tails {
		switch {
		case t.At < 0 || t.At+inline.ArraySize > a.Fixed:
			return fmt.Errorf("%w: tail %d header at %d outside fixed part of %d", ErrInvalidAllocation, i, t.At, a.Fixed)
		case t.Count < 0 || uint64(t.Count) > math.MaxUint32:
			return fmt.Errorf("%w: tail %d count %d", ErrInvalidAllocation, i, t.Count)
		case t.Width <= 0:
			return fmt.Errorf("%w: tail %d width %d", ErrInvalidAllocation, i, t.Width)
		}
	}
	return nil
}

// Patch lays the tails out in declaration order behind the fixed part
// and points every array header at its region.
func (a Allocation) Patch(s span.Span) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if s.Len() < a.Size() {
		return span.ErrOutOfRange
	}
	cursor := a.Fixed
	for _, t := range a.Tails {
		if err := inline.PutArrayHeader(s, t.At, uint64(cursor-t.At), t.Count); err != nil {
			return err
		}
		cursor += t.Count * t.Width
	}
	return nil
}
