package common

import (
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

type fixedSet struct {
	B   bool
	I8  int8
	U8  uint8
	I16 int16
	U16 uint16
	I32 int32
	U32 uint32
	I64 int64
	U64 uint64
	F32 float32
	F64 float64
}

func TestPutSetFixed(t *testing.T) {
	condition := func(in fixedSet) bool {
		var out fixedSet
		src := reflect.ValueOf(in)
		dst := reflect.ValueOf(&out).Elem()
		buf := make([]byte, 8)
		for i := range src.NumField() {
			k := src.Field(i).Kind()
			if !IsFixedKind(k) {
				return false
			}
			n := FixedSize(k)
			PutFixed(buf[:n], src.Field(i), k)
			SetFixed(dst.Field(i), buf[:n], k)
		}
		return reflect.DeepEqual(in, out) || in.F32 != in.F32 || in.F64 != in.F64
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestFixedSize(t *testing.T) {
	require.Equal(t, -1, FixedSize(reflect.String))
	require.False(t, IsFixedKind(reflect.Slice))
	require.Equal(t, 8, FixedSize(reflect.Float64))
}
