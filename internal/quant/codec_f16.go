package quant

import (
	"github.com/x448/float16"
)

// F32ToF16 converts a float32 sequence to IEEE-754 binary16, one value at
// a time, using round-to-nearest-ties-to-even (float16.Fromfloat32's
// documented rounding mode). This resolves Open Question (c) in favor of
// correct rounding over the source project's mantissa truncation.
func F32ToF16(src []float32) []uint16 {
	out := make([]uint16, len(src))
	for i, f := range src {
		out[i] = uint16(float16.Fromfloat32(f))
	}
	return out
}

// F16ToF32 is the inverse of F32ToF16.
func F16ToF32(src []uint16) []float32 {
	out := make([]float32, len(src))
	for i, bits := range src {
		out[i] = float16.Float16(bits).Float32()
	}
	return out
}
