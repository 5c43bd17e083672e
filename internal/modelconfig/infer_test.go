package modelconfig

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func llamaTensors(layers int) []TensorShape {
	ts := []TensorShape{
		{Name: "model.embed_tokens.weight", Shape: []int{32000, 4096}},
		{Name: "lm_head.weight", Shape: []int{32000, 4096}},
	}
	for l := 0; l < layers; l++ {
		ts = append(ts,
			TensorShape{Name: fmt.Sprintf("model.layers.%d.self_attn.q_proj.weight", l), Shape: []int{4096, 4096}},
			TensorShape{Name: fmt.Sprintf("model.layers.%d.self_attn.k_proj.weight", l), Shape: []int{1024, 4096}},
			TensorShape{Name: fmt.Sprintf("model.layers.%d.mlp.gate_proj.weight", l), Shape: []int{11008, 4096}},
		)
	}
	return ts
}

func TestDetectArchLlama(t *testing.T) {
	arch := DetectArch(llamaTensors(2), false, false)
	assert.Equal(t, ArchLlama, arch)
}

func TestDetectArchLlamaLegacy(t *testing.T) {
	ts := []TensorShape{{Name: "layers.0.attention.wq.weight", Shape: []int{4096, 4096}}}
	assert.Equal(t, ArchLlamaLegacy, DetectArch(ts, false, false))
}

func TestDetectArchPhi(t *testing.T) {
	ts := []TensorShape{{Name: "transformer.h.0.mlp.fc1.weight", Shape: []int{4096, 4096}}}
	assert.Equal(t, ArchPhi, DetectArch(ts, false, false))
}

func TestDetectArchUnknown(t *testing.T) {
	ts := []TensorShape{{Name: "some.random.tensor", Shape: []int{4, 4}}}
	assert.Equal(t, ArchUnknown, DetectArch(ts, false, false))
}

func TestInferGQA(t *testing.T) {
	cfg := Infer(llamaTensors(2), ArchLlama)
	assert.Equal(t, 2, cfg.NumHiddenLayers)
	assert.Equal(t, 4096, cfg.HiddenSize)
	assert.Equal(t, 32000, cfg.VocabSize)
	assert.Equal(t, 32, cfg.NumAttentionHeads)
	assert.Equal(t, 8, cfg.NumKeyValueHeads) // GQA: 1024/128 = 8 < 32
	assert.Equal(t, 11008, cfg.IntermediateSize)
	assert.False(t, cfg.TieWordEmbeddings) // lm_head.weight present
}

func TestInferDefaultsWhenEmpty(t *testing.T) {
	cfg := Infer(nil, ArchUnknown)
	assert.Equal(t, 32, cfg.NumHiddenLayers)
	assert.Equal(t, 4096, cfg.HiddenSize)
	assert.Equal(t, 32000, cfg.VocabSize)
	assert.True(t, cfg.TieWordEmbeddings) // no lm_head.weight
}
