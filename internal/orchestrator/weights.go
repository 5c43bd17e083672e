// Package orchestrator drives the forward pass: prefill
// over a whole prompt or decode of a single new token, building the
// per-layer dispatch sequence (norm -> attention -> residual -> norm ->
// feed-forward -> residual), selecting the matmul kernel variant a
// projection's stored dtype calls for, and committing KV cache writes
// once per step, only after every layer has succeeded.
//
// Grounded on runner/ollamarunner/runner_compute.go's computeBatch, a
// per-batch staged compute driver, adapted from GGML tensor graph
// construction to direct calls against internal/kernel's pure
// functions.
package orchestrator

import (
	"fmt"
	"math"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/localinfer/localinfer/internal/quant"
	"github.com/localinfer/localinfer/internal/shard"
)

// Projection is a loaded weight matrix ready for the forward pass: for
// quantized dtypes, its data is pre-split into per-row packed blocks so
// internal/kernel's matmul variants can index straight into them.
type Projection struct {
	DType quant.DType
	Rows  int
	Cols  int
	Block int

	F32       []float32 // valid when DType == quant.F32 or quant.F16 (already widened)
	PackedRow [][]byte  // valid when DType.IsQuantized(); per-row packed bytes
	ScaleRow  [][]float32
}

// LayerWeights holds every tensor one transformer layer needs.
type LayerWeights struct {
	InputNorm     []float32
	QProj, KProj  Projection
	VProj, OProj  Projection
	PostAttnNorm  []float32
	GateProj      Projection
	UpProj        Projection
	DownProj      Projection
}

// Weights is a fully loaded model, ready to run.
type Weights struct {
	Config       bundle.Config
	TokenEmbed   Projection // [vocab, hidden]
	LMHead       Projection // [vocab, hidden]; aliases TokenEmbed when tied
	FinalNorm    []float32
	Layers       []LayerWeights
}

// LoadFromRecords assembles a Weights from a shard's parsed tensor
// records and the bundle's inferred config. Unrecognized tensor names
// are ignored, since a bundle may carry extra bookkeeping tensors this
// engine doesn't need.
func LoadFromRecords(cfg bundle.Config, records []shard.Record, blockSize int) (*Weights, error) {
	byName := make(map[string]shard.Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	w := &Weights{Config: cfg, Layers: make([]LayerWeights, cfg.NumHiddenLayers)}

	embed, ok := byName["model.embed_tokens.weight"]
	if !ok {
		return nil, fmt.Errorf("orchestrator: missing embedding tensor")
	}
	tokenEmbed, err := loadProjection(embed, blockSize)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading embedding: %w", err)
	}
	w.TokenEmbed = tokenEmbed

	if lmHead, ok := byName["lm_head.weight"]; ok {
		p, err := loadProjection(lmHead, blockSize)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: loading lm_head: %w", err)
		}
		w.LMHead = p
	} else {
		w.LMHead = tokenEmbed
	}

	if norm, ok := byName["model.norm.weight"]; ok {
		w.FinalNorm = widenToF32(norm)
	} else {
		w.FinalNorm = make([]float32, cfg.HiddenSize)
		for i := range w.FinalNorm {
			w.FinalNorm[i] = 1
		}
	}

	for l := 0; l < cfg.NumHiddenLayers; l++ {
		layer := LayerWeights{}
		prefix := fmt.Sprintf("model.layers.%d.", l)

		var err error
		layer.InputNorm, err = loadNormOrDefault(byName, prefix+"input_layernorm.weight", cfg.HiddenSize)
		if err != nil {
			return nil, err
		}
		layer.PostAttnNorm, err = loadNormOrDefault(byName, prefix+"post_attention_layernorm.weight", cfg.HiddenSize)
		if err != nil {
			return nil, err
		}

		for _, spec := range []struct {
			name string
			dst  *Projection
		}{
			{prefix + "self_attn.q_proj.weight", &layer.QProj},
			{prefix + "self_attn.k_proj.weight", &layer.KProj},
			{prefix + "self_attn.v_proj.weight", &layer.VProj},
			{prefix + "self_attn.o_proj.weight", &layer.OProj},
			{prefix + "mlp.gate_proj.weight", &layer.GateProj},
			{prefix + "mlp.up_proj.weight", &layer.UpProj},
			{prefix + "mlp.down_proj.weight", &layer.DownProj},
		} {
			rec, ok := byName[spec.name]
			if !ok {
				return nil, fmt.Errorf("orchestrator: missing tensor %q", spec.name)
			}
			p, err := loadProjection(rec, blockSize)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: loading %q: %w", spec.name, err)
			}
			*spec.dst = p
		}

		w.Layers[l] = layer
	}

	return w, nil
}

func loadNormOrDefault(byName map[string]shard.Record, name string, hiddenSize int) ([]float32, error) {
	rec, ok := byName[name]
	if !ok {
		out := make([]float32, hiddenSize)
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	return widenToF32(rec), nil
}

func widenToF32(rec shard.Record) []float32 {
	switch rec.DType {
	case quant.F32:
		return bytesToF32(rec.Data)
	case quant.F16:
		return quant.F16ToF32(bytesToU16(rec.Data))
	default:
		return bytesToF32(rec.Data)
	}
}

func loadProjection(rec shard.Record, blockSize int) (Projection, error) {
	if len(rec.Shape) != 2 {
		return Projection{}, fmt.Errorf("orchestrator: projection %q must be 2-D, got shape %v", rec.Name, rec.Shape)
	}
	rows, cols := rec.Shape[0], rec.Shape[1]

	if !rec.DType.IsQuantized() {
		return Projection{DType: rec.DType, Rows: rows, Cols: cols, F32: widenToF32(rec)}, nil
	}

	if cols%blockSize != 0 {
		return Projection{}, fmt.Errorf("orchestrator: projection %q cols=%d not a multiple of block=%d", rec.Name, cols, blockSize)
	}
	n := rows * cols
	packed, scales, err := quant.UnpackQuantized(rec.DType, rec.Data, n, blockSize)
	if err != nil {
		return Projection{}, fmt.Errorf("orchestrator: unpacking %q: %w", rec.Name, err)
	}

	blocksPerRow := cols / blockSize
	bytesPerBlock := len(packed) / (rows * blocksPerRow)

	packedRow := make([][]byte, rows)
	scaleRow := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		packedRow[r] = packed[r*blocksPerRow*bytesPerBlock : (r+1)*blocksPerRow*bytesPerBlock]
		scaleRow[r] = scales[r*blocksPerRow : (r+1)*blocksPerRow]
	}

	return Projection{
		DType:     rec.DType,
		Rows:      rows,
		Cols:      cols,
		Block:     blockSize,
		PackedRow: packedRow,
		ScaleRow:  scaleRow,
	}, nil
}

func bytesToF32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func bytesToU16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = uint16(data[i*2]) | uint16(data[i*2+1])<<8
	}
	return out
}
