package orchestrator

import (
	"fmt"

	"github.com/localinfer/localinfer/internal/kernel"
	"github.com/localinfer/localinfer/internal/kvcache"
	"github.com/localinfer/localinfer/internal/quant"
)

// apply dispatches a projection's matmul against x, picking matmul_f32,
// matmul_q8, or matmul_q4 by the projection's stored dtype.
func apply(p Projection, x []float32) ([]float32, error) {
	switch p.DType {
	case quant.F32, quant.F16:
		return kernel.MatMulF32(p.F32, x, p.Rows, p.Cols), nil
	case quant.Q8:
		return kernel.MatMulQ8(p.PackedRow, p.ScaleRow, x, p.Rows, p.Cols, p.Block), nil
	case quant.Q4:
		return kernel.MatMulQ4(p.PackedRow, p.ScaleRow, x, p.Rows, p.Cols, p.Block), nil
	default:
		return nil, fmt.Errorf("orchestrator: unsupported projection dtype %v", p.DType)
	}
}

// splitHeads reshapes a flat [numHeads*headDim] vector into numHeads
// headDim-length slices.
func splitHeads(flat []float32, numHeads, headDim int) [][]float32 {
	out := make([][]float32, numHeads)
	for h := 0; h < numHeads; h++ {
		out[h] = flat[h*headDim : (h+1)*headDim]
	}
	return out
}

func joinHeads(heads [][]float32) []float32 {
	if len(heads) == 0 {
		return nil
	}
	headDim := len(heads[0])
	out := make([]float32, len(heads)*headDim)
	for h, vec := range heads {
		copy(out[h*headDim:(h+1)*headDim], vec)
	}
	return out
}

// Step runs one token position through every layer: RMSNorm, QKV
// projection, RoPE, cached causal attention, output projection,
// residual, RMSNorm, SwiGLU feed-forward, residual. It writes this
// position's K/V into cache but only calls cache.Commit once every layer
// has produced its attention output without error, so a mid-stack
// failure never advances kv_pos past a position with some layers'
// K/V written and others not.
func Step(w *Weights, cache *kvcache.Cache, tokenID, pos int) ([]float32, error) {
	cfg := w.Config
	headDim := cfg.HeadDim()
	numHeads := cfg.NumAttentionHeads
	numKVHeads := cfg.NumKeyValueHeads
	if numKVHeads == 0 {
		numKVHeads = numHeads
	}
	groupSize := numHeads / numKVHeads

	var hidden []float32
	if w.TokenEmbed.DType.IsQuantized() {
		// Embedding lookup dequantizes by row on demand since the raw
		// table is block-packed, not stored as contiguous F32.
		var err error
		hidden, err = embedQuantized(w.TokenEmbed, tokenID, cfg.HiddenSize)
		if err != nil {
			return nil, err
		}
	} else {
		hidden = kernel.TokenEmbed(w.TokenEmbed.F32, cfg.HiddenSize, tokenID)
	}

	for l, layer := range w.Layers {
		residual := hidden

		normed := kernel.RMSNorm(hidden, layer.InputNorm, cfg.RMSNormEps)

		q, err := apply(layer.QProj, normed)
		if err != nil {
			return nil, fmt.Errorf("layer %d q_proj: %w", l, err)
		}
		k, err := apply(layer.KProj, normed)
		if err != nil {
			return nil, fmt.Errorf("layer %d k_proj: %w", l, err)
		}
		v, err := apply(layer.VProj, normed)
		if err != nil {
			return nil, fmt.Errorf("layer %d v_proj: %w", l, err)
		}

		qHeads := splitHeads(q, numHeads, headDim)
		kHeads := splitHeads(k, numKVHeads, headDim)
		vHeads := splitHeads(v, numKVHeads, headDim)

		for h := range qHeads {
			qHeads[h] = kernel.RopeEmbed(qHeads[h], pos, cfg.RopeTheta)
		}
		for h := range kHeads {
			kHeads[h] = kernel.RopeEmbed(kHeads[h], pos, cfg.RopeTheta)
		}

		if err := cache.WriteLayer(l, kHeads, vHeads); err != nil {
			return nil, fmt.Errorf("layer %d kv write: %w", l, err)
		}

		attnHeads := make([][]float32, numHeads)
		for h := 0; h < numHeads; h++ {
			kvHead := h / groupSize
			keys := append(cache.Keys(l, kvHead), kHeads[kvHead])
			values := append(cache.Values(l, kvHead), vHeads[kvHead])

			weights := kernel.AttentionScore(qHeads[h], keys, headDim)
			attnHeads[h] = kernel.WeightedValueSum(weights, values, headDim)
		}

		attnOut, err := apply(layer.OProj, joinHeads(attnHeads))
		if err != nil {
			return nil, fmt.Errorf("layer %d o_proj: %w", l, err)
		}

		hidden = kernel.ResidualAdd(attnOut, residual)
		residual = hidden

		normed = kernel.RMSNorm(hidden, layer.PostAttnNorm, cfg.RMSNormEps)
		gate, err := apply(layer.GateProj, normed)
		if err != nil {
			return nil, fmt.Errorf("layer %d gate_proj: %w", l, err)
		}
		up, err := apply(layer.UpProj, normed)
		if err != nil {
			return nil, fmt.Errorf("layer %d up_proj: %w", l, err)
		}
		ff := kernel.SwiGLU(gate, up)
		down, err := apply(layer.DownProj, ff)
		if err != nil {
			return nil, fmt.Errorf("layer %d down_proj: %w", l, err)
		}

		hidden = kernel.ResidualAdd(down, residual)
	}

	// Every layer's attention succeeded; make this token's KV writes
	// visible with a single cursor advance. A failure anywhere above
	// returns before this call, so kv_pos never moves past a token
	// with only some layers' K/V committed.
	if err := cache.Commit(); err != nil {
		return nil, fmt.Errorf("kv commit: %w", err)
	}

	final := kernel.RMSNorm(hidden, w.FinalNorm, cfg.RMSNormEps)
	logits, err := apply(w.LMHead, final)
	if err != nil {
		return nil, fmt.Errorf("lm_head: %w", err)
	}
	return logits, nil
}

// Prefill runs every token of a prompt through Step in turn, returning
// the final position's logits -- the only ones a caller needs before
// the first decode step. pos starts at 0 and kv_pos is 0 at entry.
func Prefill(w *Weights, cache *kvcache.Cache, tokens []int) ([]float32, error) {
	var logits []float32
	for i, tok := range tokens {
		out, err := Step(w, cache, tok, cache.Pos())
		if err != nil {
			return nil, fmt.Errorf("prefill token %d: %w", i, err)
		}
		logits = out
	}
	return logits, nil
}

// Decode runs a single new token through Step, with kv_pos>0 at entry.
func Decode(w *Weights, cache *kvcache.Cache, tokenID int) ([]float32, error) {
	return Step(w, cache, tokenID, cache.Pos())
}

func embedQuantized(p Projection, tokenID, hiddenSize int) ([]float32, error) {
	if tokenID < 0 || tokenID >= p.Rows {
		return nil, fmt.Errorf("orchestrator: token id %d out of range [0,%d)", tokenID, p.Rows)
	}
	switch p.DType {
	case quant.Q8:
		return quant.DequantizeQ8(p.PackedRow[tokenID], p.ScaleRow[tokenID], p.Block, hiddenSize), nil
	case quant.Q4:
		return quant.DequantizeQ4(p.PackedRow[tokenID], p.ScaleRow[tokenID], p.Block, hiddenSize), nil
	default:
		return nil, fmt.Errorf("orchestrator: unsupported embedding dtype %v", p.DType)
	}
}
