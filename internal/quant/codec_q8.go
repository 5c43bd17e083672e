package quant

import "math"

// QuantizeQ8 partitions src into ceil(len(src)/block) contiguous blocks.
// Each block is quantized independently to signed 8-bit values in
// [-127, 127] with one f32 scale: scale = maxabs/127, and
// value = round(clamp(x/scale, -128, 127)). A block whose maxabs is 0
// gets scale 0 and all-zero outputs. Returns the raw int8 byte stream and
// the per-block scales, in block order.
func QuantizeQ8(src []float32, block int) (data []byte, scales []float32) {
	nb := numBlocks(len(src), block)
	data = make([]byte, len(src))
	scales = make([]float32, nb)

	for b := 0; b < nb; b++ {
		start := b * block
		end := min(start+block, len(src))
		chunk := src[start:end]

		var maxabs float32
		for _, x := range chunk {
			if a := float32(math.Abs(float64(x))); a > maxabs {
				maxabs = a
			}
		}

		var scale float32
		if maxabs != 0 {
			scale = maxabs / 127
		}
		scales[b] = scale

		for i, x := range chunk {
			var q float64
			if scale != 0 {
				q = math.Round(clamp(float64(x)/float64(scale), -128, 127))
			}
			data[start+i] = byte(int8(q))
		}
	}

	return data, scales
}

// DequantizeQ8 reconstructs float32 values from a Q8 byte stream and its
// per-block scales. n is the total element count (the caller-known shape
// product); it may be less than block*len(scales) for the final block.
func DequantizeQ8(data []byte, scales []float32, block, n int) []float32 {
	out := make([]float32, n)
	for b, scale := range scales {
		start := b * block
		end := min(start+block, n)
		for i := start; i < end; i++ {
			out[i] = float32(int8(data[i])) * scale
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
