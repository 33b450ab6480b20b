package inline

import (
	"encoding/binary"
	"math"
)

// Codec describes the fixed wire layout of an element type.
type Codec[T any] struct {
	Size int
	Get  func([]byte) T
	Put  func([]byte, T)
}

var (
	Bool = Codec[bool]{1,
		func(b []byte) bool { return b[0] != 0 },
		func(b []byte, v bool) {
			b[0] = 0
			if v {
				b[0] = 1
			}
		}}
	Uint8 = Codec[uint8]{1,
		func(b []byte) uint8 { return b[0] },
		func(b []byte, v uint8) { b[0] = v }}
	Int8 = Codec[int8]{1,
		func(b []byte) int8 { return int8(b[0]) },
		func(b []byte, v int8) { b[0] = byte(v) }}
	Uint16 = Codec[uint16]{2, binary.LittleEndian.Uint16, binary.LittleEndian.PutUint16}
	Int16  = Codec[int16]{2,
		func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) },
		func(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) }}
	Uint32 = Codec[uint32]{4, binary.LittleEndian.Uint32, binary.LittleEndian.PutUint32}
	Int32  = Codec[int32]{4,
		func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) },
		func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }}
	Uint64 = Codec[uint64]{8, binary.LittleEndian.Uint64, binary.LittleEndian.PutUint64}
	Int64  = Codec[int64]{8,
		func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) },
		func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }}
	Float32 = Codec[float32]{4,
		func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) },
		func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }}
	Float64 = Codec[float64]{8,
		func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) },
		func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }}
)
