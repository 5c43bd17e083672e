package shard

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/localinfer/localinfer/internal/quant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackParseRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x2A}, 48)
	packed, err := PackTensor("w.1", quant.Q4, []int{4, 8}, data)
	require.NoError(t, err)

	records, err := ParseShard(packed)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "w.1", rec.Name)
	assert.Equal(t, quant.Q4, rec.DType)
	assert.Equal(t, []int{4, 8}, rec.Shape)
	assert.Equal(t, data, rec.Data)
}

func TestPackParseMultipleRecordsConcatenated(t *testing.T) {
	p1, err := PackTensor("a", quant.F32, []int{2, 2}, bytes.Repeat([]byte{1}, 16))
	require.NoError(t, err)
	p2, err := PackTensor("b", quant.F32, []int{3}, bytes.Repeat([]byte{2}, 12))
	require.NoError(t, err)

	records, err := ParseShard(append(p1, p2...))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Name)
	assert.Equal(t, "b", records[1].Name)
}

func TestParseShardTruncatedFails(t *testing.T) {
	packed, err := PackTensor("w", quant.F32, []int{1}, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = ParseShard(packed[:len(packed)-2])
	assert.Error(t, err)
}

func TestQ4ScenarioDataLen(t *testing.T) {
	// pack {"w.1", Q4, [4,8], 0.5 repeated 32
	// times}; expect data_len = 32*4/8 + 4 (32 nibbles packed two per
	// byte, plus one f32 scale per block).
	values := make([]float32, 32)
	for i := range values {
		values[i] = 0.5
	}

	packedData, scales := quant.QuantizeQ4(values, 32, false)
	require.Len(t, scales, 1)

	var blob bytes.Buffer
	for _, s := range scales {
		require.NoError(t, binary.Write(&blob, binary.LittleEndian, s))
	}
	blob.Write(packedData)

	assert.Equal(t, 32/2+4, blob.Len()) // 16 packed bytes + 4 scale bytes

	packed, err := PackTensor("w.1", quant.Q4, []int{4, 8}, blob.Bytes())
	require.NoError(t, err)

	records, err := ParseShard(packed)
	require.NoError(t, err)
	assert.Equal(t, blob.Len(), len(records[0].Data))
}
