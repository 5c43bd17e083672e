// Package kernel implements the fixed set of forward-pass compute
// kernels: token_embed, rms_norm, three matmul variants (f32/q8/q4),
// rope_embed, attention_score, weighted_value_sum, swiglu, lm_head,
// residual_add, and kv_cache_copy.
//
// Each kernel is a pure function over plain float32 slices, and the
// orchestrator calls these functions directly. Thin adapters in
// device_ops.go additionally wrap five of them (rms_norm, matmul_f32,
// rope_embed, swiglu, residual_add) as device.KernelFunc pipelines for
// internal/device's command encoder; the other kernels have no device
// adapter. Keeping the math pure-Go makes it directly testable without a
// device in the loop, the same separation
// runner/ollamarunner/runner_compute.go keeps between batch assembly and
// the backend calls it drives.
package kernel

import (
	"math"

	"github.com/localinfer/localinfer/internal/quant"
)

// TokenEmbed copies the hiddenSize-wide row for tokenID out of a
// [vocabSize, hiddenSize] row-major embedding table.
func TokenEmbed(table []float32, hiddenSize, tokenID int) []float32 {
	start := tokenID * hiddenSize
	out := make([]float32, hiddenSize)
	copy(out, table[start:start+hiddenSize])
	return out
}

// RMSNorm applies root-mean-square layer normalization: x / rms(x) * weight.
func RMSNorm(x, weight []float32, eps float64) []float32 {
	var sumSq float64
	for _, v := range x {
		sumSq += float64(v) * float64(v)
	}
	rms := math.Sqrt(sumSq/float64(len(x)) + eps)

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(float64(v)/rms) * weight[i]
	}
	return out
}

// MatMulF32 computes w * x for a row-major [rows, cols] weight matrix and
// a length-cols input vector, returning a length-rows output.
func MatMulF32(w, x []float32, rows, cols int) []float32 {
	out := make([]float32, rows)
	for r := 0; r < rows; r++ {
		var acc float64
		row := w[r*cols : r*cols+cols]
		for c, xv := range x {
			acc += float64(row[c]) * float64(xv)
		}
		out[r] = float32(acc)
	}
	return out
}

// MatMulQ8 dequantizes a block-quantized Q8 weight matrix row by row and
// multiplies it against x, so the full dequantized matrix never has to
// be materialized at once.
func MatMulQ8(packedRows [][]byte, scalesRows [][]float32, x []float32, rows, cols, block int) []float32 {
	out := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := quant.DequantizeQ8(packedRows[r], scalesRows[r], block, cols)
		var acc float64
		for c, xv := range x {
			acc += float64(row[c]) * float64(xv)
		}
		out[r] = float32(acc)
	}
	return out
}

// MatMulQ4 is MatMulQ8's Q4 counterpart.
func MatMulQ4(packedRows [][]byte, scalesRows [][]float32, x []float32, rows, cols, block int) []float32 {
	out := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := quant.DequantizeQ4(packedRows[r], scalesRows[r], block, cols)
		var acc float64
		for c, xv := range x {
			acc += float64(row[c]) * float64(xv)
		}
		out[r] = float32(acc)
	}
	return out
}

// RopeEmbed applies rotary position embedding to a single head's vector,
// given its absolute sequence position, rotating element i together with
// element i+len(vec)/2. It returns a new slice and leaves vec unchanged.
func RopeEmbed(vec []float32, pos int, theta float64) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)

	halfDim := len(vec) / 2
	for i := 0; i < halfDim; i++ {
		freq := 1.0 / math.Pow(theta, float64(2*i)/float64(len(vec)))
		angle := float64(pos) * freq
		sin, cos := math.Sincos(angle)

		x0 := float64(vec[i])
		x1 := float64(vec[i+halfDim])
		out[i] = float32(x0*cos - x1*sin)
		out[i+halfDim] = float32(x0*sin + x1*cos)
	}
	return out
}

// AttentionScore computes softmax(q . k_t / sqrt(headDim)) over kv_pos+1
// cached key vectors using a stable two-pass max-then-sum-exp reduction.
// A naive single-pass accumulate-and-normalize reduction can silently
// overflow on long contexts or large logits; this kernel always finds
// the row max before exponentiating.
func AttentionScore(q []float32, keys [][]float32, headDim int) []float32 {
	n := len(keys)
	logits := make([]float32, n)
	scale := 1.0 / math.Sqrt(float64(headDim))

	for i, k := range keys {
		var dot float64
		for d := 0; d < headDim; d++ {
			dot += float64(q[d]) * float64(k[d])
		}
		logits[i] = float32(dot * scale)
	}

	maxLogit := float32(math.Inf(-1))
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}

	var sum float64
	weights := make([]float32, n)
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		weights[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return weights
	}
	for i := range weights {
		weights[i] = float32(float64(weights[i]) / sum)
	}
	return weights
}

// WeightedValueSum combines attention weights with their corresponding
// cached value vectors into a single headDim-wide output, the second
// half of the attention kernel after AttentionScore's softmax.
func WeightedValueSum(weights []float32, values [][]float32, headDim int) []float32 {
	out := make([]float32, headDim)
	for i, w := range weights {
		v := values[i]
		for d := 0; d < headDim; d++ {
			out[d] += w * v[d]
		}
	}
	return out
}

// SwiGLU computes silu(gate) * up element-wise, the activation the
// feed-forward block applies between its gate/up and down projections.
func SwiGLU(gate, up []float32) []float32 {
	out := make([]float32, len(gate))
	for i, g := range gate {
		silu := g / (1 + float32(math.Exp(float64(-g))))
		out[i] = silu * up[i]
	}
	return out
}

// ResidualAdd adds residual into x element-wise, returning a new slice.
func ResidualAdd(x, residual []float32) []float32 {
	out := make([]float32, len(x))
	for i := range x {
		out[i] = x[i] + residual[i]
	}
	return out
}

// KVCacheCopy writes vec into cache at the row given by pos, where cache
// is a row-major [capacity, headDim] buffer.
func KVCacheCopy(cache []float32, pos, headDim int, vec []float32) {
	copy(cache[pos*headDim:pos*headDim+headDim], vec)
}

// LMHead projects a final hidden state through the (possibly tied)
// output embedding matrix to produce unnormalized vocabulary logits. It
// is the same row-major matmul as MatMulF32; kept as a distinct name
// since it is its own kernel with its own dispatch slot.
func LMHead(w, x []float32, vocabSize, hiddenSize int) []float32 {
	return MatMulF32(w, x, vocabSize, hiddenSize)
}
