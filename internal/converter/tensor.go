package converter

import (
	"fmt"
	"math"

	"github.com/localinfer/localinfer/internal/quant"
	"github.com/localinfer/localinfer/internal/safetensors"
	"github.com/localinfer/localinfer/internal/shard"
)

// pendingRecord is a converted tensor awaiting a shard.PackTensor call.
type pendingRecord struct {
	Name  string
	DType quant.DType
	Shape []int
	Data  []byte
}

func numElems(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// decodeToF32 interprets raw tensor bytes per their declared safetensors
// dtype and returns the values as float32.
func decodeToF32(dtype string, raw []byte, n int) ([]float32, error) {
	switch dtype {
	case "F32":
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	case "F16":
		u16 := make([]uint16, n)
		for i := 0; i < n; i++ {
			u16[i] = uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
		}
		return quant.F16ToF32(u16), nil
	case "BF16":
		return quant.BF16ToF32(raw), nil
	default:
		return nil, fmt.Errorf("converter: unsupported source dtype %q", dtype)
	}
}

// convertOne decides a target dtype for meta and produces the packed
// shard tensor data for it: quantized weight matrices get block Q4/Q8
// encoding, everything else (1-D tensors, and any tensor below
// MinTensorElemsForQuant) is stored as F16, or as F32 when the target
// is F32.
func convertOne(meta safetensors.TensorMeta, raw []byte, opts Options) (pendingRecord, error) {
	shapeInt := toIntShape(meta.Shape)
	n := numElems(meta.Shape)

	values, err := decodeToF32(meta.DType, raw, n)
	if err != nil {
		return pendingRecord{}, err
	}

	eligible := len(shapeInt) >= 2 && n >= MinTensorElemsForQuant && opts.TargetQuant.IsQuantized()
	if !eligible {
		// TargetQuant==F32 means quantization is disabled entirely, so
		// every tensor -- not just the ones too small to quantize --
		// passes through as true F32, not F16.
		if opts.TargetQuant == quant.F32 {
			data := make([]byte, n*4)
			for i, v := range values {
				bits := math.Float32bits(v)
				data[i*4] = byte(bits)
				data[i*4+1] = byte(bits >> 8)
				data[i*4+2] = byte(bits >> 16)
				data[i*4+3] = byte(bits >> 24)
			}
			return pendingRecord{Name: meta.Name, DType: quant.F32, Shape: shapeInt, Data: data}, nil
		}

		f16 := quant.F32ToF16(values)
		data := make([]byte, len(f16)*2)
		for i, v := range f16 {
			data[i*2] = byte(v)
			data[i*2+1] = byte(v >> 8)
		}
		return pendingRecord{Name: meta.Name, DType: quant.F16, Shape: shapeInt, Data: data}, nil
	}

	block := opts.blockSize()
	var packed []byte
	var scales []float32
	switch opts.TargetQuant {
	case quant.Q4:
		packed, scales = quant.QuantizeQ4(values, block, opts.Calibrate)
	case quant.Q8:
		packed, scales = quant.QuantizeQ8(values, block)
	default:
		return pendingRecord{}, fmt.Errorf("converter: unsupported target quant %v", opts.TargetQuant)
	}

	blob := quant.PackQuantized(scales, packed)
	return pendingRecord{Name: meta.Name, DType: opts.TargetQuant, Shape: shapeInt, Data: blob}, nil
}

func (p pendingRecord) pack() ([]byte, error) {
	return shard.PackTensor(p.Name, p.DType, p.Shape, p.Data)
}
