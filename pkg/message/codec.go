package message

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"unsafe"

	"github.com/rawbytedev/msgstream/internal/common"
	"github.com/rawbytedev/msgstream/pkg/inline"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/span"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

var (
	ErrNotStruct    = errors.New("message: value must be a struct or *struct")
	ErrNotStructPtr = errors.New("message: decode target must be a non-nil *struct")
	ErrUnsupported  = errors.New("message: unsupported field type")
	ErrNotFixed     = errors.New("message: type has variable-length fields")
	ErrSizeMismatch = errors.New("message: span does not match allocation")
)

// Message is any record type that can travel in a stream. Exported
// fields are laid out in declaration order with no padding:
//
//	bool, ints, uints, floats  fixed width, little-endian
//	string                     MessageString (16 byte header + tail)
//	[]fixed                    MessageArray  (16 byte header + tail)
//	SubStream                  embedded stream (32 byte header + tail)
type Message interface {
	MessageID() uint32
}

// Options mirrors the safety knobs of the decoder.
type Options struct {
	// UnsafeStrings makes decoded strings alias the record bytes.
	UnsafeStrings bool
	// UnsafePrimitives makes decoded []byte and SubStream data alias the
	// record bytes.
	UnsafePrimitives bool
}

type fieldClass uint8

const (
	classFixed fieldClass = iota
	classString
	classArray
	classSubStream
)

const subStreamSize = schema.HeaderSize + 8 + inline.ArraySize

var subStreamType = reflect.TypeOf(SubStream{})

type fieldInfo struct {
	idx   int
	name  string
	class fieldClass
	kind  reflect.Kind // value kind, or element kind for arrays
	size  int          // value width, or element width for arrays
	at    int          // offset inside the fixed part
}

type plan struct {
	fixed  int
	tails  int
	fields []fieldInfo
}

// Codec encodes and decodes messages field by field. Layout plans are
// cached per type.
type Codec struct {
	Opts Options
	mu   sync.RWMutex
	plan map[reflect.Type]*plan
}

func NewCodec(opts Options) *Codec {
	return &Codec{Opts: opts, plan: make(map[reflect.Type]*plan)}
}

// Default is the safe codec used by the package level helpers.
var Default = NewCodec(Options{})

func AllocationOf(m Message) (Allocation, error) { return Default.AllocationOf(m) }
func FixedSize(m Message) (int, error)           { return Default.FixedSize(m) }
func Encode(s span.Span, m Message) error        { return Default.Encode(s, m) }
func Decode(s span.Span, m Message) error        { return Default.Decode(s, m) }

func (c *Codec) getPlan(t reflect.Type) (*plan, error) {
	c.mu.RLock()
	if p, ok := c.plan[t]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check
	if p, ok := c.plan[t]; ok {
		return p, nil
	}

	p := &plan{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		fi := fieldInfo{idx: i, name: sf.Name, at: p.fixed}
		kind := sf.Type.Kind()
		switch {
		case common.IsFixedKind(kind):
			fi.class, fi.kind, fi.size = classFixed, kind, common.FixedSize(kind)
			p.fixed += fi.size
		case kind == reflect.String:
			fi.class, fi.kind, fi.size = classString, reflect.Uint8, 1
			p.fixed += inline.ArraySize
			p.tails++
		case kind == reflect.Slice && common.IsFixedKind(sf.Type.Elem().Kind()):
			ek := sf.Type.Elem().Kind()
			fi.class, fi.kind, fi.size = classArray, ek, common.FixedSize(ek)
			p.fixed += inline.ArraySize
			p.tails++
		case sf.Type == subStreamType:
			fi.class, fi.kind, fi.size = classSubStream, reflect.Uint8, 1
			p.fixed += subStreamSize
			p.tails++
		default:
			return nil, fmt.Errorf("%w: %s.%s (%s)", ErrUnsupported, t.Name(), sf.Name, sf.Type)
		}
		p.fields = append(p.fields, fi)
	}
	c.plan[t] = p
	return p, nil
}

func (c *Codec) inspect(m Message) (reflect.Value, *plan, error) {
	v := reflect.ValueOf(m)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, nil, ErrNotStruct
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, nil, ErrNotStruct
	}
	p, err := c.getPlan(v.Type())
	return v, p, err
}

// AllocationOf computes the payload layout for m.
func (c *Codec) AllocationOf(m Message) (Allocation, error) {
	v, p, err := c.inspect(m)
	if err != nil {
		return Allocation{}, err
	}
	a := Allocation{ID: m.MessageID(), Fixed: p.fixed}
	if p.tails == 0 {
		return a, nil
	}
	a.Tails = make([]Tail, 0, p.tails)
	for _, f := range p.fields {
		fv := v.Field(f.idx)
		switch f.class {
		case classString, classArray:
			a.Tails = append(a.Tails, Tail{At: f.at, Count: fv.Len(), Width: f.size})
		case classSubStream:
			sub := fv.Interface().(SubStream)
			a.Tails = append(a.Tails, Tail{At: f.at + schema.HeaderSize + 8, Count: len(sub.Data), Width: 1})
		}
	}
	return a, nil
}

// FixedSize returns the stride of a message type without tails.
func (c *Codec) FixedSize(m Message) (int, error) {
	_, p, err := c.inspect(m)
	if err != nil {
		return 0, err
	}
	if p.tails != 0 {
		return 0, fmt.Errorf("%w: %T", ErrNotFixed, m)
	}
	return p.fixed, nil
}

// Encode writes m into s. s must be exactly AllocationOf(m).Size() long.
func (c *Codec) Encode(s span.Span, m Message) error {
	v, p, err := c.inspect(m)
	if err != nil {
		return err
	}
	a, err := c.AllocationOf(m)
	if err != nil {
		return err
	}
	if s.Len() != a.Size() {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrSizeMismatch, s.Len(), a.Size())
	}
	if err := a.Patch(s); err != nil {
		return err
	}
	for _, f := range p.fields {
		fv := v.Field(f.idx)
		switch f.class {
		case classFixed:
			b, err := s.Read(f.at, f.size)
			if err != nil {
				return err
			}
			common.PutFixed(b, fv, f.kind)
		case classString:
			str, err := inline.StringAt(s, f.at)
			if err != nil {
				return err
			}
			if err := str.Set(fv.String()); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		case classArray:
			d, n, err := inline.Region(s, f.at, f.size)
			if err != nil {
				return err
			}
			b := d.Bytes()
			for i := 0; i < n; i++ {
				common.PutFixed(b[i*f.size:], fv.Index(i), f.kind)
			}
		case classSubStream:
			sub := fv.Interface().(SubStream)
			hdr, err := s.Read(f.at, schema.HeaderSize)
			if err != nil {
				return err
			}
			if err := sub.Schema.Put(hdr); err != nil {
				return err
			}
			if err := s.PutUint64(f.at+schema.HeaderSize, uint64(sub.Count)); err != nil {
				return err
			}
			d, _, err := inline.Region(s, f.at+schema.HeaderSize+8, 1)
			if err != nil {
				return err
			}
			if err := d.Write(0, sub.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Decode fills the struct m points to from the payload s.
func (c *Codec) Decode(s span.Span, m Message) error {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	v, p, err := c.inspect(m)
	if err != nil {
		return err
	}
	if s.Len() < p.fixed {
		return fmt.Errorf("%w: record of %d bytes, fixed part needs %d", stream.ErrMalformedStream, s.Len(), p.fixed)
	}
	for _, f := range p.fields {
		fv := v.Field(f.idx)
		switch f.class {
		case classFixed:
			b, err := s.Read(f.at, f.size)
			if err != nil {
				return err
			}
			common.SetFixed(fv, b, f.kind)
		case classString:
			str, err := inline.StringAt(s, f.at)
			if err != nil {
				return err
			}
			b, err := str.Borrow()
			if err != nil {
				return malformed(f.name, err)
			}
			if c.Opts.UnsafeStrings && len(b) > 0 {
				fv.SetString(unsafe.String(&b[0], len(b)))
			} else {
				fv.SetString(string(b))
			}
		case classArray:
			d, n, err := inline.Region(s, f.at, f.size)
			if err != nil {
				return malformed(f.name, err)
			}
			if n == 0 {
				fv.Set(reflect.Zero(fv.Type()))
				continue
			}
			b := d.Bytes()
			if f.size == 1 && c.Opts.UnsafePrimitives && fv.Type().Elem().Kind() == reflect.Uint8 {
				fv.Set(reflect.ValueOf(b).Convert(fv.Type()))
				continue
			}
			out := reflect.MakeSlice(fv.Type(), n, n)
			for i := 0; i < n; i++ {
				common.SetFixed(out.Index(i), b[i*f.size:], f.kind)
			}
			fv.Set(out)
		case classSubStream:
			hdr, err := s.Read(f.at, schema.HeaderSize)
			if err != nil {
				return err
			}
			h, err := schema.Decode(hdr)
			if err != nil {
				return err
			}
			count, err := s.Uint64(f.at + schema.HeaderSize)
			if err != nil {
				return err
			}
			if count > math.MaxUint32 {
				return malformed(f.name, fmt.Errorf("record count %d", count))
			}
			d, _, err := inline.Region(s, f.at+schema.HeaderSize+8, 1)
			if err != nil {
				return malformed(f.name, err)
			}
			data := d.Bytes()
			if !c.Opts.UnsafePrimitives && data != nil {
				data = append([]byte(nil), data...)
			}
			fv.Set(reflect.ValueOf(SubStream{Schema: h, Count: uint32(count), Data: data}))
		}
	}
	return nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", stream.ErrMalformedStream, field, err)
}
