package schema

import "fmt"

// Layout is the closed set of stream layouts. Switch on it with a type
// switch; the unexported marker keeps other packages from adding cases.
type Layout interface {
	layout()
	Header() Header
}

type None struct{}

type Static struct{ ID uint32 }

type Dynamic struct{ ID uint32 }

type Ordered struct{}

func (None) layout()    {}
func (Static) layout()  {}
func (Dynamic) layout() {}
func (Ordered) layout() {}

func (None) Header() Header      { return Header{} }
func (l Static) Header() Header  { return StaticOf(l.ID) }
func (l Dynamic) Header() Header { return DynamicOf(l.ID) }
func (Ordered) Header() Header   { return OrderedOf() }

// Layout converts the wire header into its sum type.
func (h Header) Layout() (Layout, error) {
	switch h.Kind {
	case KindNone:
		return None{}, nil
	case KindStatic:
		return Static{ID: h.ID}, nil
	case KindDynamic:
		return Dynamic{ID: h.ID}, nil
	case KindOrdered:
		return Ordered{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(h.Kind))
	}
}
