package quant

import (
	bfloat16 "github.com/d4l3k/go-bfloat16"
)

// BF16ToF32 converts a BF16 byte stream (as stored in a safetensors BF16
// tensor) to float32. BF16 is the top 16 bits of an IEEE-754 binary32
// value, so the conversion is a left-shift-by-16 into the F32 bit
// pattern with no mantissa rounding; go-bfloat16 implements exactly that.
func BF16ToF32(data []byte) []float32 {
	return bfloat16.Decode(data)
}
