package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind tells how the records of a stream are laid out.
type Kind uint32

const (
	KindNone Kind = iota
	KindStatic
	KindDynamic
	KindOrdered
)

// HeaderSize is the encoded size of a Header.
const HeaderSize = 8

// OrderedID is the id carried by ordered stream headers; every record
// inside an ordered stream carries its own id.
const OrderedID uint32 = 0xFFFFFFFF

var (
	ErrSchemaMismatch = errors.New("schema: mismatch")
	ErrUnknownKind    = errors.New("schema: unknown kind")
	ErrShortHeader    = errors.New("schema: short header")
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	case KindOrdered:
		return "ordered"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Header is the 8 byte discriminator stored in front of a stream.
type Header struct {
	Kind Kind
	ID   uint32
}

func StaticOf(id uint32) Header  { return Header{Kind: KindStatic, ID: id} }
func DynamicOf(id uint32) Header { return Header{Kind: KindDynamic, ID: id} }
func OrderedOf() Header          { return Header{Kind: KindOrdered, ID: OrderedID} }

func (h Header) IsNone() bool            { return h.Kind == KindNone }
func (h Header) IsStatic(id uint32) bool { return h.Kind == KindStatic && h.ID == id }
func (h Header) IsDynamic(id uint32) bool {
	return h.Kind == KindDynamic && h.ID == id
}
func (h Header) IsOrdered() bool { return h.Kind == KindOrdered }

func (h Header) String() string {
	if h.Kind == KindOrdered {
		return "ordered"
	}
	return fmt.Sprintf("%s(%d)", h.Kind, h.ID)
}

// Encode appends the header to buf.
func (h Header) Encode(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Kind))
	return binary.LittleEndian.AppendUint32(buf, h.ID)
}

// Put writes the header into the first 8 bytes of b.
func (h Header) Put(b []byte) error {
	if len(b) < HeaderSize {
		return ErrShortHeader
	}
	binary.LittleEndian.PutUint32(b[0:], uint32(h.Kind))
	binary.LittleEndian.PutUint32(b[4:], h.ID)
	return nil
}

// Decode parses a header from b. The kind is not validated here, use
// Layout for that.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Kind: Kind(binary.LittleEndian.Uint32(b[0:])),
		ID:   binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// Expect returns ErrSchemaMismatch unless h equals want.
func (h Header) Expect(want Header) error {
	if h != want {
		return fmt.Errorf("%w: have %s, want %s", ErrSchemaMismatch, h, want)
	}
	return nil
}
