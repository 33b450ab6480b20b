package envelope

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

const (
	Magic      uint32 = 0x3147534D // "MSG1" on the wire
	VersionV1  uint16 = 1
	HeaderSize        = 40
	crcSize           = 4
)

const (
	FlagZstd uint16 = 1 << iota
)

var (
	ErrBadMagic = errors.New("envelope: bad magic")
	ErrVersion  = errors.New("envelope: unsupported version")
	ErrChecksum = errors.New("envelope: crc mismatch")
	ErrTooLarge = errors.New("envelope: stream exceeds limits")
)

// Header precedes every frame. Frame layout:
//
//	header (40) | payload (PayloadSize) | crc32 over header+payload (4)
type Header struct {
	Magic         uint32 `struc:"uint32,little"`
	Version       uint16 `struc:"uint16,little"`
	Flags         uint16 `struc:"uint16,little"`
	Kind          uint32 `struc:"uint32,little"`
	ID            uint32 `struc:"uint32,little"`
	Count         uint32 `struc:"uint32,little"`
	StreamVersion uint32 `struc:"uint32,little"`
	RawSize       uint64 `struc:"uint64,little"`
	PayloadSize   uint64 `struc:"uint64,little"`
}

func (h *Header) Schema() schema.Header {
	return schema.Header{Kind: schema.Kind(h.Kind), ID: h.ID}
}

// FrameSize is the full encoded length of the frame h describes.
func (h *Header) FrameSize() uint64 {
	return HeaderSize + h.PayloadSize + crcSize
}

// ParseHeader decodes the fixed header at the front of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, errors.Errorf("envelope: need %d header bytes, have %d", HeaderSize, len(b))
	}
	if err := struc.Unpack(bytes.NewReader(b[:HeaderSize]), &h); err != nil {
		return h, errors.Wrap(err, "envelope: unpack header")
	}
	if h.Magic != Magic {
		return h, errors.Wrapf(ErrBadMagic, "got %#08x", h.Magic)
	}
	if h.Version != VersionV1 {
		return h, errors.Wrapf(ErrVersion, "got %d", h.Version)
	}
	return h, nil
}

type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	if c == CompressionZstd {
		return "zstd"
	}
	return "none"
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, errors.Errorf("envelope: unknown compression %q", s)
	}
}

// Limits bound what a decoder accepts.
type Limits struct {
	MaxStreamBytes uint64
	MaxRecords     uint32
}

func DefaultLimits() Limits {
	return Limits{MaxStreamBytes: 64 << 20, MaxRecords: 1 << 20}
}

type Options struct {
	Compression Compression
	// Level is a zstd level (1 fastest .. 4 best). Zero picks the default.
	Level  int
	Limits Limits
}

// Codec turns streams into frames and back. A Codec is safe for
// concurrent use.
type Codec struct {
	opts Options
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func NewCodec(opts Options) (*Codec, error) {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	c := &Codec{opts: opts}
	level := zstd.SpeedDefault
	if opts.Level > 0 {
		level = zstd.EncoderLevelFromZstd(opts.Level)
	}
	var err error
	c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "envelope: zstd encoder")
	}
	c.dec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(opts.Limits.MaxStreamBytes))
	if err != nil {
		c.enc.Close()
		return nil, errors.Wrap(err, "envelope: zstd decoder")
	}
	return c, nil
}

func (c *Codec) Limits() Limits { return c.opts.Limits }

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Marshal frames s.
func (c *Codec) Marshal(s stream.Stream) ([]byte, error) {
	return c.Append(nil, s)
}

// Append frames s onto dst.
func (c *Codec) Append(dst []byte, s stream.Stream) ([]byte, error) {
	raw := s.Span().Bytes()
	if uint64(len(raw)) > c.opts.Limits.MaxStreamBytes || s.Count() > c.opts.Limits.MaxRecords {
		return dst, errors.Wrapf(ErrTooLarge, "%d bytes, %d records", len(raw), s.Count())
	}
	h := Header{
		Magic:   Magic,
		Version: VersionV1,
		Kind:    uint32(s.Schema().Kind),
		ID:      s.Schema().ID,
		Count:   s.Count(),
		RawSize: uint64(len(raw)),
	}
	if v, ok := s.(interface{ Version() uint32 }); ok {
		h.StreamVersion = v.Version()
	}
	payload := raw
	if c.opts.Compression == CompressionZstd {
		payload = c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2+64))
		h.Flags |= FlagZstd
	}
	h.PayloadSize = uint64(len(payload))

	var hdr bytes.Buffer
	hdr.Grow(HeaderSize)
	if err := struc.Pack(&hdr, &h); err != nil {
		return dst, errors.Wrap(err, "envelope: pack header")
	}
	start := len(dst)
	dst = append(dst, hdr.Bytes()...)
	dst = append(dst, payload...)
	crc := crc32.ChecksumIEEE(dst[start:])
	return binary.LittleEndian.AppendUint32(dst, crc), nil
}

// Unmarshal decodes the frame at the front of b and reports how many
// bytes it consumed.
//
//   - n == 0, err == nil: b holds an incomplete frame, call again with more.
//   - n > 0, err != nil: the frame was bad and has been skipped. This
//     covers checksum, limit and schema failures.
//   - n == 0, err != nil: the input cannot be resynchronised. Besides a
//     bad magic or version this is an over-limit frame that is not fully
//     in b, since waiting for it would mean buffering past the limit.
//
// Uncompressed payloads alias b.
func (c *Codec) Unmarshal(b []byte) (*stream.ReadOnly, int, error) {
	if len(b) < HeaderSize {
		return nil, 0, nil
	}
	h, err := ParseHeader(b)
	if err != nil {
		return nil, 0, err
	}
	lim := c.opts.Limits
	if h.PayloadSize > lim.MaxStreamBytes {
		err := errors.Wrapf(ErrTooLarge, "payload of %d bytes", h.PayloadSize)
		if len(b) >= HeaderSize+crcSize && uint64(len(b)-HeaderSize-crcSize) >= h.PayloadSize {
			return nil, int(h.FrameSize()), err
		}
		return nil, 0, err
	}
	frame := int(h.FrameSize())
	if len(b) < frame {
		return nil, 0, nil
	}
	body := b[:frame-crcSize]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(b[frame-crcSize:]) {
		return nil, frame, ErrChecksum
	}
	if h.RawSize > lim.MaxStreamBytes || h.Count > lim.MaxRecords {
		return nil, frame, errors.Wrapf(ErrTooLarge, "%d bytes, %d records", h.RawSize, h.Count)
	}
	if _, err := h.Schema().Layout(); err != nil {
		return nil, frame, err
	}

	data := body[HeaderSize:]
	if h.Flags&FlagZstd != 0 {
		data, err = c.dec.DecodeAll(data, make([]byte, 0, h.RawSize))
		if err != nil {
			return nil, frame, errors.Wrap(stream.ErrMalformedStream, err.Error())
		}
	}
	ro, err := stream.NewReadOnly(h.Schema(), h.Count, h.RawSize, data)
	if err != nil {
		return nil, frame, err
	}
	return ro.WithVersion(h.StreamVersion), frame, nil
}
