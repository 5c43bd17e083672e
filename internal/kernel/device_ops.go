package kernel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/localinfer/localinfer/internal/device"
)

// Pipeline names registered on an internal/device.Device, matching
// the kernel set's identifiers.
const (
	OpTokenEmbed     = "token_embed"
	OpRMSNorm        = "rms_norm"
	OpMatMulF32      = "matmul_f32"
	OpMatMulQ8       = "matmul_q8"
	OpMatMulQ4       = "matmul_q4"
	OpRopeEmbed      = "rope_embed"
	OpAttentionScore = "attention_score"
	OpSwiGLU         = "swiglu"
	OpLMHead         = "lm_head"
	OpResidualAdd    = "residual_add"
	OpKVCacheCopy    = "kv_cache_copy"
)

// RegisterAll creates pipelines on d for the five kernels that have a
// device adapter (rms_norm, matmul_f32, rope_embed, swiglu,
// residual_add), keyed by their OpXxx names; the other OpXxx names get
// no pipeline. The orchestrator does not use these pipelines: it calls
// the kernels as pure functions.
func RegisterAll(d device.Device) (map[string]device.Pipeline, error) {
	pipelines := make(map[string]device.Pipeline)

	specs := []struct {
		name string
		fn   device.KernelFunc
	}{
		{OpRMSNorm, rmsNormOp},
		{OpMatMulF32, matMulF32Op},
		{OpRopeEmbed, ropeEmbedOp},
		{OpSwiGLU, swiGLUOp},
		{OpResidualAdd, residualAddOp},
	}

	for _, s := range specs {
		p, err := d.CreatePipeline(s.name, s.fn)
		if err != nil {
			return nil, fmt.Errorf("kernel: registering %s: %w", s.name, err)
		}
		pipelines[s.name] = p
	}
	return pipelines, nil
}

// rmsNormOp's uniform layout: u32 n, f32 eps. Bindings: [x, weight, out].
func rmsNormOp(args []byte, bindings []device.Buffer) error {
	if len(bindings) != 3 {
		return fmt.Errorf("rms_norm: expected 3 bindings, got %d", len(bindings))
	}
	eps := float64(math.Float32frombits(binary.LittleEndian.Uint32(args[4:8])))

	x, ok1 := device.Float32Slice(bindings[0])
	w, ok2 := device.Float32Slice(bindings[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("rms_norm: bindings must be byte-backed float32 buffers")
	}

	out := RMSNorm(x, w, eps)
	if !device.PutFloat32Slice(bindings[2], out) {
		return fmt.Errorf("rms_norm: output binding size mismatch")
	}
	return nil
}

// matMulF32Op's uniform layout: u32 rows, u32 cols. Bindings: [w, x, out].
func matMulF32Op(args []byte, bindings []device.Buffer) error {
	if len(bindings) != 3 {
		return fmt.Errorf("matmul_f32: expected 3 bindings, got %d", len(bindings))
	}
	rows := int(binary.LittleEndian.Uint32(args[0:4]))
	cols := int(binary.LittleEndian.Uint32(args[4:8]))

	w, ok1 := device.Float32Slice(bindings[0])
	x, ok2 := device.Float32Slice(bindings[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("matmul_f32: bindings must be byte-backed float32 buffers")
	}

	out := MatMulF32(w, x, rows, cols)
	if !device.PutFloat32Slice(bindings[2], out) {
		return fmt.Errorf("matmul_f32: output binding size mismatch")
	}
	return nil
}

// ropeEmbedOp's uniform layout: u32 pos, f32 theta. Bindings: [vec, out].
func ropeEmbedOp(args []byte, bindings []device.Buffer) error {
	if len(bindings) != 2 {
		return fmt.Errorf("rope_embed: expected 2 bindings, got %d", len(bindings))
	}
	pos := int(binary.LittleEndian.Uint32(args[0:4]))
	theta := float64(math.Float32frombits(binary.LittleEndian.Uint32(args[4:8])))

	vec, ok := device.Float32Slice(bindings[0])
	if !ok {
		return fmt.Errorf("rope_embed: binding must be byte-backed float32 buffer")
	}

	out := RopeEmbed(vec, pos, theta)
	if !device.PutFloat32Slice(bindings[1], out) {
		return fmt.Errorf("rope_embed: output binding size mismatch")
	}
	return nil
}

// swiGLUOp has no uniform fields. Bindings: [gate, up, out].
func swiGLUOp(args []byte, bindings []device.Buffer) error {
	if len(bindings) != 3 {
		return fmt.Errorf("swiglu: expected 3 bindings, got %d", len(bindings))
	}
	gate, ok1 := device.Float32Slice(bindings[0])
	up, ok2 := device.Float32Slice(bindings[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("swiglu: bindings must be byte-backed float32 buffers")
	}

	out := SwiGLU(gate, up)
	if !device.PutFloat32Slice(bindings[2], out) {
		return fmt.Errorf("swiglu: output binding size mismatch")
	}
	return nil
}

// residualAddOp has no uniform fields. Bindings: [x, residual, out].
func residualAddOp(args []byte, bindings []device.Buffer) error {
	if len(bindings) != 3 {
		return fmt.Errorf("residual_add: expected 3 bindings, got %d", len(bindings))
	}
	x, ok1 := device.Float32Slice(bindings[0])
	r, ok2 := device.Float32Slice(bindings[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("residual_add: bindings must be byte-backed float32 buffers")
	}

	out := ResidualAdd(x, r)
	if !device.PutFloat32Slice(bindings[2], out) {
		return fmt.Errorf("residual_add: output binding size mismatch")
	}
	return nil
}

