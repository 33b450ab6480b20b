package common

import (
	"encoding/binary"
	"math"
	"reflect"
)

// IsFixedKind reports whether k is a fixed-size primitive kind.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

// SetFixed decodes a fixed-width primitive from b and sets dst.
func SetFixed(dst reflect.Value, b []byte, k reflect.Kind) {
	switch k {
	case reflect.Bool:
		dst.SetBool(b[0] != 0)
	case reflect.Int8:
		dst.SetInt(int64(int8(b[0])))
	case reflect.Uint8:
		dst.SetUint(uint64(b[0]))
	case reflect.Int16:
		dst.SetInt(int64(int16(binary.LittleEndian.Uint16(b))))
	case reflect.Uint16:
		dst.SetUint(uint64(binary.LittleEndian.Uint16(b)))
	case reflect.Int32:
		dst.SetInt(int64(int32(binary.LittleEndian.Uint32(b))))
	case reflect.Uint32:
		dst.SetUint(uint64(binary.LittleEndian.Uint32(b)))
	case reflect.Int64:
		dst.SetInt(int64(binary.LittleEndian.Uint64(b)))
	case reflect.Uint64:
		dst.SetUint(binary.LittleEndian.Uint64(b))
	case reflect.Float32:
		dst.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case reflect.Float64:
		dst.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
}

// PutFixed encodes the fixed-width primitive v into b.
func PutFixed(b []byte, v reflect.Value, k reflect.Kind) {
	switch k {
	case reflect.Bool:
		b[0] = 0
		if v.Bool() {
			b[0] = 1
		}
	case reflect.Int8:
		b[0] = byte(v.Int())
	case reflect.Uint8:
		b[0] = byte(v.Uint())
	case reflect.Int16:
		binary.LittleEndian.PutUint16(b, uint16(v.Int()))
	case reflect.Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v.Uint()))
	case reflect.Int32:
		binary.LittleEndian.PutUint32(b, uint32(v.Int()))
	case reflect.Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v.Uint()))
	case reflect.Int64:
		binary.LittleEndian.PutUint64(b, uint64(v.Int()))
	case reflect.Uint64:
		binary.LittleEndian.PutUint64(b, v.Uint())
	case reflect.Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float()))
	}
}
