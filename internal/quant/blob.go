package quant

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PackQuantized assembles a shard tensor data blob for a quantized dtype:
// each block's f32 scale (little-endian) followed by the packed integer
// payload. This is the same layout internal/shard's tests build by hand
// for Q4/Q8 tensors.
func PackQuantized(scales []float32, packed []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(scales)*4 + len(packed))
	for _, s := range scales {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	buf.Write(packed)
	return buf.Bytes()
}

// UnpackQuantized splits a shard tensor data blob back into its per-block
// scales and packed payload, given the element count n and block size the
// tensor was quantized with.
func UnpackQuantized(dtype DType, blob []byte, n, block int) (packed []byte, scales []float32, err error) {
	nb := numBlocks(n, block)
	scaleBytes := nb * 4
	if len(blob) < scaleBytes {
		return nil, nil, fmt.Errorf("quant: blob too short for %d scales", nb)
	}

	scales = make([]float32, nb)
	r := bytes.NewReader(blob[:scaleBytes])
	for i := range scales {
		if err := binary.Read(r, binary.LittleEndian, &scales[i]); err != nil {
			return nil, nil, err
		}
	}

	return blob[scaleBytes:], scales, nil
}
