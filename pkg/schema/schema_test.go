package schema

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderWireLayout(t *testing.T) {
	buf := DynamicOf(0x0A0B0C0D).Encode(nil)
	require.Equal(t, []byte{2, 0, 0, 0, 0x0D, 0x0C, 0x0B, 0x0A}, buf)

	h, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, DynamicOf(0x0A0B0C0D), h)

	_, err = Decode(buf[:7])
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestHeaderRoundTrip(t *testing.T) {
	condition := func(kind uint32, id uint32) bool {
		in := Header{Kind: Kind(kind), ID: id}
		b := make([]byte, HeaderSize)
		if in.Put(b) != nil {
			return false
		}
		out, err := Decode(b)
		return err == nil && out == in
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestPredicates(t *testing.T) {
	s := StaticOf(4)
	assert.True(t, s.IsStatic(4))
	assert.False(t, s.IsStatic(5))
	assert.False(t, s.IsDynamic(4))
	assert.False(t, s.IsOrdered())

	o := OrderedOf()
	assert.True(t, o.IsOrdered())
	assert.Equal(t, OrderedID, o.ID)
	assert.True(t, Header{}.IsNone())

	require.NoError(t, s.Expect(StaticOf(4)))
	require.ErrorIs(t, s.Expect(DynamicOf(4)), ErrSchemaMismatch)
}

func TestLayout(t *testing.T) {
	cases := []struct {
		h    Header
		want Layout
	}{
		{Header{}, None{}},
		{StaticOf(3), Static{ID: 3}},
		{DynamicOf(9), Dynamic{ID: 9}},
		{OrderedOf(), Ordered{}},
	}
	for _, c := range cases {
		l, err := c.h.Layout()
		require.NoError(t, err)
		assert.Equal(t, c.want, l)
		assert.Equal(t, c.h, l.Header())
	}

	_, err := Header{Kind: 4}.Layout()
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, "kind(4)", Kind(4).String())
}
