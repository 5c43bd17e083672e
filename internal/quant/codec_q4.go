package quant

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// QuantizeQ4 partitions src into ceil(len(src)/block) blocks and quantizes
// each to signed 4-bit values in [-8, 7] (x/scale is clamped to that
// range; without calibration it stays within [-7, 7]), two values packed per output
// byte with the even-indexed element in the low nibble. When calibrate is
// true, the per-block maxabs used to derive the scale is replaced by the
// 99th percentile of |x| within the block, trading a little dynamic range
// for robustness to a single outlier weight.
func QuantizeQ4(src []float32, block int, calibrate bool) (data []byte, scales []float32) {
	nb := numBlocks(len(src), block)
	data = make([]byte, nb*ceilDiv(block, 2))
	scales = make([]float32, nb)

	for b := 0; b < nb; b++ {
		start := b * block
		end := min(start+block, len(src))
		chunk := src[start:end]

		maxabs := blockMaxAbs(chunk, calibrate)

		var scale float32
		if maxabs != 0 {
			scale = maxabs / 7
		}
		scales[b] = scale

		byteBase := b * ceilDiv(block, 2)
		for i, x := range chunk {
			var q int8
			if scale != 0 {
				v := int(math.Round(clamp(float64(x)/float64(scale), -8, 7)))
				q = int8(v & 0xF)
			}

			byteIdx := byteBase + i/2
			if i%2 == 0 {
				data[byteIdx] = (data[byteIdx] &^ 0x0F) | byte(q&0x0F)
			} else {
				data[byteIdx] = (data[byteIdx] &^ 0xF0) | (byte(q&0x0F) << 4)
			}
		}
	}

	return data, scales
}

// blockMaxAbs computes the scale-deriving magnitude for one block: the
// true max absolute value, or its 99th-percentile robust estimate when
// calibrate is requested.
func blockMaxAbs(chunk []float32, calibrate bool) float32 {
	if !calibrate {
		var maxabs float32
		for _, x := range chunk {
			if a := float32(math.Abs(float64(x))); a > maxabs {
				maxabs = a
			}
		}
		return maxabs
	}

	abs := make([]float64, len(chunk))
	for i, x := range chunk {
		abs[i] = math.Abs(float64(x))
	}
	sort.Float64s(abs)
	return float32(stat.Quantile(0.99, stat.LinInterp, abs, nil))
}

// DequantizeQ4 reconstructs float32 values from a packed Q4 byte stream
// and its per-block scales.
func DequantizeQ4(data []byte, scales []float32, block, n int) []float32 {
	out := make([]float32, n)
	for b, scale := range scales {
		start := b * block
		end := min(start+block, n)
		byteBase := b * ceilDiv(block, 2)
		for i := start; i < end; i++ {
			byteIdx := byteBase + (i-start)/2
			var nibble byte
			if (i-start)%2 == 0 {
				nibble = data[byteIdx] & 0x0F
			} else {
				nibble = (data[byteIdx] >> 4) & 0x0F
			}
			out[i] = toSigned4(nibble) * scale
		}
	}
	return out
}

// toSigned4 interprets a 4-bit nibble as a two's-complement value in
// [-8, 7].
func toSigned4(nibble byte) float32 {
	if nibble&0x8 != 0 {
		return float32(int8(nibble) - 16)
	}
	return float32(nibble)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
