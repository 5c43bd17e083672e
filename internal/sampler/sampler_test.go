package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreedyAtZeroTemperature(t *testing.T) {
	s := New(Params{Temperature: 0})
	idx, err := s.Sample([]float32{1, 5, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestNonFiniteLogitsFallBackToArgmax(t *testing.T) {
	s := New(Params{Temperature: 1.0, TopK: 4})
	idx, err := s.Sample([]float32{1, float32(math.NaN()), 2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx) // argmax over the non-NaN comparisons keeps index 2 as max seen
}

func TestSameSeedIsDeterministic(t *testing.T) {
	logits := []float32{1, 2, 3, 0.5, 4}
	a := New(Params{Temperature: 0.8, TopK: 5, TopP: 0.95, Seed: 42})
	b := New(Params{Temperature: 0.8, TopK: 5, TopP: 0.95, Seed: 42})

	for i := 0; i < 20; i++ {
		idxA, err := a.Sample(logits)
		require.NoError(t, err)
		idxB, err := b.Sample(logits)
		require.NoError(t, err)
		assert.Equal(t, idxA, idxB)
	}
}

func TestTopKRestrictsToHighestLogits(t *testing.T) {
	logits := []float32{10, 0, 0, 0, 0}
	s := New(Params{Temperature: 1.0, TopK: 1, Seed: 1})
	for i := 0; i < 10; i++ {
		idx, err := s.Sample(logits)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
	}
}

func TestEmptyLogitsErrors(t *testing.T) {
	s := New(Params{Temperature: 1.0})
	_, err := s.Sample(nil)
	assert.Error(t, err)
}

func TestTopPNarrowsToSingleDominantToken(t *testing.T) {
	logits := []float32{100, 0, 0, 0}
	s := New(Params{Temperature: 1.0, TopP: 0.5, Seed: 7})
	idx, err := s.Sample(logits)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}
