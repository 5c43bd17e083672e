package device

import (
	"fmt"
	"log/slog"

	"github.com/klauspost/cpuid/v2"
)

// cpuBuffer is a plain in-process byte slice standing in for a GPU
// allocation.
type cpuBuffer struct {
	data  []byte
	usage Usage
}

func (b *cpuBuffer) Size() int    { return len(b.data) }
func (b *cpuBuffer) Usage() Usage { return b.usage }

type cpuPipeline struct {
	name string
	fn   KernelFunc
}

func (p *cpuPipeline) Name() string { return p.name }

type dispatchCmd struct {
	pipeline *cpuPipeline
	uniform  *cpuBuffer
	bindings []Buffer
}

type cpuCommandEncoder struct {
	cmds []dispatchCmd
}

func (e *cpuCommandEncoder) Dispatch(pipeline Pipeline, uniform Buffer, bindings []Buffer) {
	p, _ := pipeline.(*cpuPipeline)
	u, _ := uniform.(*cpuBuffer)
	e.cmds = append(e.cmds, dispatchCmd{pipeline: p, uniform: u, bindings: bindings})
}

// CPUDevice is the reference Device implementation: every dispatch runs
// synchronously, in the calling goroutine, against ordinary Go slices.
// Submission order on a CommandEncoder is the execution order, exactly
// as a single GPU queue would serialize it.
type CPUDevice struct {
	features string
}

// NewCPUDevice builds the CPU reference device, logging the detected CPU
// feature set (the closest analogue this environment has to a GPU
// capability query) so a caller can tell which SIMD path a future
// vectorized kernel implementation would have selected.
func NewCPUDevice() *CPUDevice {
	features := "scalar"
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		features = "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2):
		features = "avx2"
	case cpuid.CPU.Supports(cpuid.SSE4):
		features = "sse4"
	}
	slog.Debug("device: cpu reference device ready", "features", features, "brand", cpuid.CPU.BrandName)
	return &CPUDevice{features: features}
}

func (d *CPUDevice) Name() string { return "cpu" }

func (d *CPUDevice) CreateBuffer(size int, usage Usage) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("device: negative buffer size %d", size)
	}
	if usage.Has(UsageUniform) && size != UniformBufferSize {
		return nil, fmt.Errorf("device: uniform buffers must be exactly %d bytes, got %d", UniformBufferSize, size)
	}
	return &cpuBuffer{data: make([]byte, size), usage: usage}, nil
}

func (d *CPUDevice) WriteBuffer(buf Buffer, offset int, data []byte) error {
	b, ok := buf.(*cpuBuffer)
	if !ok {
		return fmt.Errorf("device: buffer not owned by cpu device")
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("device: write out of bounds (offset=%d len=%d size=%d)", offset, len(data), len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *CPUDevice) ReadBuffer(buf Buffer, offset, size int) ([]byte, error) {
	b, ok := buf.(*cpuBuffer)
	if !ok {
		return nil, fmt.Errorf("device: buffer not owned by cpu device")
	}
	if offset < 0 || offset+size > len(b.data) {
		return nil, fmt.Errorf("device: read out of bounds (offset=%d size=%d bufsize=%d)", offset, size, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

func (d *CPUDevice) CreatePipeline(name string, fn KernelFunc) (Pipeline, error) {
	if fn == nil {
		return nil, fmt.Errorf("device: pipeline %q has nil kernel func", name)
	}
	return &cpuPipeline{name: name, fn: fn}, nil
}

func (d *CPUDevice) NewCommandEncoder() CommandEncoder {
	return &cpuCommandEncoder{}
}

// Submit runs every recorded dispatch in order, stopping at the first
// error so a failed kernel never lets a later dispatch observe
// partially written buffers it depends on.
func (d *CPUDevice) Submit(enc CommandEncoder) error {
	e, ok := enc.(*cpuCommandEncoder)
	if !ok {
		return fmt.Errorf("device: command encoder not owned by cpu device")
	}

	for i, cmd := range e.cmds {
		args := cmd.uniform.data
		if err := cmd.pipeline.fn(args, cmd.bindings); err != nil {
			return fmt.Errorf("device: dispatch %d (%s): %w", i, cmd.pipeline.Name(), err)
		}
	}
	return nil
}
