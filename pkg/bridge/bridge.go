package bridge

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rawbytedev/msgstream/pkg/envelope"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
	"github.com/rawbytedev/msgstream/pkg/view"
)

// Listener receives committed streams. It must check the schema before
// building a view over the stream.
type Listener interface {
	Handle(s *stream.ReadOnly, count uint32) error
}

type ListenerFunc func(s *stream.ReadOnly, count uint32) error

func (f ListenerFunc) Handle(s *stream.ReadOnly, count uint32) error { return f(s, count) }

type registration struct {
	token uint64
	l     Listener
}

type Option func(*Bridge)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithSink sends committed bus streams to w as envelope frames instead
// of looping them back to local listeners.
func WithSink(w io.Writer) Option {
	return func(b *Bridge) { b.sink = w }
}

func WithCodec(c *envelope.Codec) Option {
	return func(b *Bridge) { b.codec = c }
}

// Bridge routes streams between producers and listeners. Producers
// append to a shared ordered bus with Submit or hand over whole streams
// with Push; remote bytes come in through Ingest. Nothing reaches a
// listener before Commit.
type Bridge struct {
	log       zerolog.Logger
	codec     *envelope.Codec
	ownsCodec bool
	sink      io.Writer

	storage Storage

	mu    sync.RWMutex
	token uint64
	all   []registration
	byID  map[uint32][]registration

	busMu   sync.Mutex
	bus     *stream.ReadWrite
	busView *view.Ordered
}

func New(opts ...Option) (*Bridge, error) {
	b := &Bridge{
		log:  zerolog.Nop(),
		byID: make(map[uint32][]registration),
	}
	for _, fn := range opts {
		fn(b)
	}
	if b.codec == nil {
		c, err := envelope.NewCodec(envelope.Options{})
		if err != nil {
			return nil, err
		}
		b.codec, b.ownsCodec = c, true
	}
	return b, nil
}

func (b *Bridge) Close() {
	if b.ownsCodec {
		b.codec.Close()
	}
}

// Register delivers streams whose schema targets id: static and dynamic
// streams of that message id, or every ordered stream for
// schema.OrderedID. The returned func removes the listener.
func (b *Bridge) Register(id uint32, l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token++
	tok := b.token
	b.byID[id] = append(b.byID[id], registration{token: tok, l: l})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byID[id] = remove(b.byID[id], tok)
		if len(b.byID[id]) == 0 {
			delete(b.byID, id)
		}
	}
}

// RegisterAll delivers every stream to l.
func (b *Bridge) RegisterAll(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token++
	tok := b.token
	b.all = append(b.all, registration{token: tok, l: l})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, tok)
	}
}

func remove(regs []registration, tok uint64) []registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.token != tok {
			out = append(out, r)
		}
	}
	return out
}

// Submit appends records to the shared bus. Records added before fn
// returns an error are kept.
func (b *Bridge) Submit(fn func(*view.Ordered) error) error {
	b.busMu.Lock()
	defer b.busMu.Unlock()
	if b.bus == nil {
		b.bus = stream.NewReadWrite(schema.OrderedOf())
		v, err := view.NewOrdered(b.bus)
		if err != nil {
			return err
		}
		b.busView = v
	}
	return fn(b.busView)
}

// Push queues a finished stream for the next commit.
func (b *Bridge) Push(ro *stream.ReadOnly) {
	b.storage.Add(ro)
}

// Pending is the number of streams waiting for Commit.
func (b *Bridge) Pending() int { return b.storage.Len() }

// Flush freezes the bus and either sends it to the sink or queues it
// locally.
func (b *Bridge) Flush() error {
	b.busMu.Lock()
	bus := b.bus
	b.bus, b.busView = nil, nil
	b.busMu.Unlock()
	if bus == nil || bus.Count() == 0 {
		return nil
	}
	ro := bus.Freeze()
	if b.sink == nil {
		b.storage.Add(ro)
		return nil
	}
	frame, err := b.codec.Marshal(ro)
	if err != nil {
		return errors.Wrap(err, "bridge: frame bus")
	}
	n, err := b.sink.Write(frame)
	bytesSent.Add(float64(n))
	if err != nil {
		return errors.Wrap(err, "bridge: write sink")
	}
	return nil
}

// Commit flushes the bus and dispatches every pending stream.
func (b *Bridge) Commit() error {
	err := b.Flush()
	for _, ro := range b.storage.Consume() {
		b.dispatch(ro)
	}
	return err
}

// Ingest decodes envelope frames from data into pending streams and
// returns the number of bytes consumed. A trailing incomplete frame is
// left unconsumed. Bad frames are dropped and skipped; an error is only
// returned when the input cannot be resynchronised.
func (b *Bridge) Ingest(data []byte) (int, error) {
	consumed := 0
	defer func() { bytesIngested.Add(float64(consumed)) }()
	for consumed < len(data) {
		ro, n, err := b.codec.Unmarshal(data[consumed:])
		if err != nil {
			if n == 0 {
				b.drop("fatal", err)
				return consumed, errors.Wrapf(err, "bridge: ingest at byte %d", consumed)
			}
			b.drop(dropReason(err), err)
			consumed += n
			continue
		}
		if n == 0 {
			break
		}
		consumed += n
		// the transport owns data; keep our own copy
		owned, err := stream.NewReadOnly(ro.Schema(), ro.Count(), ro.Size(), bytes.Clone(ro.Data()))
		if err != nil {
			b.drop("malformed", err)
			continue
		}
		b.storage.Add(owned.WithVersion(ro.Version()))
	}
	return consumed, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, envelope.ErrChecksum):
		return "checksum"
	case errors.Is(err, envelope.ErrTooLarge):
		return "limits"
	case errors.Is(err, schema.ErrUnknownKind):
		return "schema"
	default:
		return "malformed"
	}
}

func (b *Bridge) drop(reason string, err error) {
	batchesDropped.WithLabelValues(reason).Inc()
	b.log.Warn().Err(err).Str("reason", reason).Msg("dropped message batch")
}

func (b *Bridge) listeners(l schema.Layout) []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Listener
	for _, r := range b.all {
		out = append(out, r.l)
	}
	var id uint32
	switch l := l.(type) {
	case schema.None:
		return out
	case schema.Static:
		id = l.ID
	case schema.Dynamic:
		id = l.ID
	case schema.Ordered:
		id = schema.OrderedID
	}
	for _, r := range b.byID[id] {
		out = append(out, r.l)
	}
	return out
}

func (b *Bridge) dispatch(ro *stream.ReadOnly) {
	layout, err := ro.Schema().Layout()
	if err != nil {
		b.drop("schema", err)
		return
	}
	if err := view.Validate(ro); err != nil {
		b.drop("malformed", err)
		return
	}
	targets := b.listeners(layout)
	streamsDelivered.WithLabelValues(ro.Schema().Kind.String()).Inc()
	recordsDelivered.Add(float64(ro.Count()))
	if len(targets) == 0 {
		b.log.Debug().Stringer("schema", ro.Schema()).Msg("no listener for stream")
		return
	}
	for _, l := range targets {
		if err := l.Handle(ro, ro.Count()); err != nil {
			listenerErrors.Inc()
			b.log.Error().Err(err).Stringer("schema", ro.Schema()).Uint32("count", ro.Count()).Msg("listener failed")
		}
	}
}
