package orchestrator

import (
	"math"
	"testing"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/localinfer/localinfer/internal/kvcache"
	"github.com/localinfer/localinfer/internal/quant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityProjection(rows, cols int) Projection {
	data := make([]float32, rows*cols)
	for i := 0; i < rows && i < cols; i++ {
		data[i*cols+i] = 1
	}
	return Projection{DType: quant.F32, Rows: rows, Cols: cols, F32: data}
}

func onesVec(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func tinyWeights() *Weights {
	cfg := bundle.Config{
		Arch:              "llama",
		NumHiddenLayers:   1,
		HiddenSize:        4,
		NumAttentionHeads: 2,
		NumKeyValueHeads:  2,
		IntermediateSize:  4,
		VocabSize:         5,
		RMSNormEps:        1e-5,
		RopeTheta:         10000,
	}

	embed := Projection{DType: quant.F32, Rows: cfg.VocabSize, Cols: cfg.HiddenSize, F32: []float32{
		0.1, 0.2, 0.3, 0.4,
		0.5, 0.6, 0.7, 0.8,
		0.2, 0.1, 0.4, 0.3,
		0.9, 0.1, 0.2, 0.3,
		0.0, 0.0, 0.0, 1.0,
	}}

	layer := LayerWeights{
		InputNorm:    onesVec(4),
		QProj:        identityProjection(4, 4),
		KProj:        identityProjection(4, 4),
		VProj:        identityProjection(4, 4),
		OProj:        identityProjection(4, 4),
		PostAttnNorm: onesVec(4),
		GateProj:     identityProjection(4, 4),
		UpProj:       identityProjection(4, 4),
		DownProj:     identityProjection(4, 4),
	}

	return &Weights{
		Config:     cfg,
		TokenEmbed: embed,
		LMHead:     embed,
		FinalNorm:  onesVec(4),
		Layers:     []LayerWeights{layer},
	}
}

func TestPrefillThenDecodeProducesFiniteLogits(t *testing.T) {
	w := tinyWeights()
	cache := kvcache.New(1, 8, 2, 2)

	logits, err := Prefill(w, cache, []int{0, 1})
	require.NoError(t, err)
	require.Len(t, logits, 5)
	for _, l := range logits {
		assert.False(t, math.IsNaN(float64(l)))
	}
	assert.Equal(t, 2, cache.Pos())

	logits, err = Decode(w, cache, 2)
	require.NoError(t, err)
	require.Len(t, logits, 5)
	assert.Equal(t, 3, cache.Pos())
}

func TestStepAdvancesCachePositionOncePerStep(t *testing.T) {
	w := tinyWeights()
	w.Config.NumHiddenLayers = 3
	w.Layers = []LayerWeights{w.Layers[0], w.Layers[0], w.Layers[0]}
	cache := kvcache.New(3, 8, 2, 2)

	_, err := Step(w, cache, 0, cache.Pos())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Pos()) // shared cursor, not one per layer
}

func TestCacheFullStopsFurtherDecoding(t *testing.T) {
	w := tinyWeights()
	cache := kvcache.New(1, 1, 2, 2)

	_, err := Decode(w, cache, 0)
	require.NoError(t, err)

	_, err = Decode(w, cache, 1)
	assert.Error(t, err)
}
