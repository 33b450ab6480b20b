package message

import (
	"testing"

	"github.com/rawbytedev/msgstream/pkg/span"
)

func benchShader() ShaderSourceMapping {
	return ShaderSourceMapping{
		ShaderGUID: 0xDEADBEEF,
		SGUID:      9,
		Line:       120,
		Column:     4,
		Contents:   "float4 main(float4 pos : SV_Position) : SV_Target { return pos; }",
	}
}

func BenchmarkEncodeFixed(b *testing.B) {
	z := JobDiagnostic{Remaining: 1}
	s := span.New(make([]byte, 4))
	b.ReportAllocs()
	for b.Loop() {
		_ = Encode(s, z)
	}
}

func BenchmarkEncode(b *testing.B) {
	z := benchShader()
	a, _ := AllocationOf(z)
	s := span.New(make([]byte, a.Size()))
	b.SetBytes(int64(a.Size()))
	b.ReportAllocs()
	for b.Loop() {
		_ = Encode(s, z)
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, bc := range []struct {
		name string
		opts Options
	}{
		{"safe", Options{}},
		{"unsafe", Options{UnsafeStrings: true, UnsafePrimitives: true}},
	} {
		b.Run(bc.name, func(b *testing.B) {
			c := NewCodec(bc.opts)
			z := benchShader()
			a, _ := c.AllocationOf(z)
			s := span.New(make([]byte, a.Size()))
			if err := c.Encode(s, z); err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(a.Size()))
			b.ReportAllocs()
			for b.Loop() {
				var out ShaderSourceMapping
				_ = c.Decode(s, &out)
			}
		})
	}
}
