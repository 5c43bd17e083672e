package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// PackUniform serializes fields (each a fixed-width numeric type:
// uint32, int32, or float32) little-endian into a UniformBufferSize-byte
// buffer, the layout every kernel's uniform argument struct uses.
func PackUniform(fields ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("device: packing uniform field %d: %w", i, err)
		}
	}
	if buf.Len() > UniformBufferSize {
		return nil, fmt.Errorf("device: packed uniform fields exceed %d bytes (got %d)", UniformBufferSize, buf.Len())
	}
	out := make([]byte, UniformBufferSize)
	copy(out, buf.Bytes())
	return out, nil
}

// byteBacked is implemented by buffers whose contents a kernel running on
// the same host can view directly. The CPU reference device's buffers
// satisfy it; a real GPU device's buffers would not, and a kernel
// targeting one would instead express its work purely through
// Device.WriteBuffer/ReadBuffer and dispatch arguments.
type byteBacked interface {
	Bytes() []byte
}

func (b *cpuBuffer) Bytes() []byte { return b.data }

// Bytes returns a mutable view of buf's backing storage when the device
// that created it exposes one directly (the CPU reference device does).
func Bytes(buf Buffer) ([]byte, bool) {
	bb, ok := buf.(byteBacked)
	if !ok {
		return nil, false
	}
	return bb.Bytes(), true
}

// Float32Slice decodes buf's raw bytes as a float32 slice. The slice is a
// copy, not a view -- kernels that mutate it must write the result back
// through PutFloat32Slice or WriteBuffer.
func Float32Slice(buf Buffer) ([]float32, bool) {
	raw, ok := Bytes(buf)
	if !ok || len(raw)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, true
}

// PutFloat32Slice encodes values little-endian into buf's raw bytes,
// overwriting its full contents. len(values)*4 must equal buf.Size().
func PutFloat32Slice(buf Buffer, values []float32) bool {
	raw, ok := Bytes(buf)
	if !ok || len(raw) != len(values)*4 {
		return false
	}
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return true
}
