package kvcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLayerThenCommitMakesRowVisible(t *testing.T) {
	c := New(2, 4, 1, 3)

	k := [][]float32{{1, 2, 3}}
	v := [][]float32{{4, 5, 6}}

	require.NoError(t, c.WriteLayer(0, k, v))
	assert.Empty(t, c.Keys(0, 0)) // not yet committed

	require.NoError(t, c.Commit())
	assert.Equal(t, 1, c.Pos())
	assert.Equal(t, [][]float32{{1, 2, 3}}, c.Keys(0, 0))
	assert.Equal(t, [][]float32{{4, 5, 6}}, c.Values(0, 0))
}

func TestUncommittedWriteIsInvisibleOnFailure(t *testing.T) {
	c := New(2, 4, 1, 2)

	require.NoError(t, c.WriteLayer(0, [][]float32{{1, 1}}, [][]float32{{2, 2}}))
	// Simulate layer 1 failing before Commit is ever called.
	assert.Equal(t, 0, c.Pos())
	assert.Empty(t, c.Keys(0, 0))
}

func TestWriteLayerRejectsWrongHeadCount(t *testing.T) {
	c := New(1, 4, 2, 2)
	err := c.WriteLayer(0, [][]float32{{1, 1}}, [][]float32{{1, 1}})
	assert.Error(t, err)
}

func TestWriteLayerFailsWhenFull(t *testing.T) {
	c := New(1, 1, 1, 1)
	require.NoError(t, c.WriteLayer(0, [][]float32{{1}}, [][]float32{{1}}))
	require.NoError(t, c.Commit())
	assert.True(t, c.Full())

	err := c.WriteLayer(0, [][]float32{{2}}, [][]float32{{2}})
	assert.Error(t, err)
}

func TestResetRewindsCursor(t *testing.T) {
	c := New(1, 4, 1, 1)
	require.NoError(t, c.WriteLayer(0, [][]float32{{9}}, [][]float32{{9}}))
	require.NoError(t, c.Commit())
	require.Equal(t, 1, c.Pos())

	c.Reset()
	assert.Equal(t, 0, c.Pos())
	assert.Empty(t, c.Keys(0, 0))
}
