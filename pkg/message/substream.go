package message

import (
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
)

// SubStream is a complete stream nested inside a record. On the wire it
// is the stream schema (8), the record count as u64 (8) and the stream
// bytes as an Array<byte> (16).
type SubStream struct {
	Schema schema.Header
	Count  uint32
	Data   []byte
}

// Embed captures the current contents of s. The bytes are shared, not
// copied.
func Embed(s stream.Stream) SubStream {
	return SubStream{Schema: s.Schema(), Count: s.Count(), Data: s.Span().Bytes()}
}

// Stream reopens the nested stream for reading.
func (e SubStream) Stream() (*stream.ReadOnly, error) {
	return stream.NewReadOnly(e.Schema, e.Count, uint64(len(e.Data)), e.Data)
}
