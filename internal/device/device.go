// Package device defines an abstract compute device facade: typed
// buffers, pipelines, a recording command encoder, and synchronous
// submission. A real implementation would sit on top of a WebGPU
// binding; this module ships only the CPU reference device, since no GPU
// binding is available in this environment. internal/kernel registers
// five of its kernels as pipelines on a Device; the forward-pass
// orchestrator calls the kernels as pure functions and does not
// dispatch through a Device.
//
// Grounded on ml/backend.go's Backend interface and its
// RegisterBackend/NewBackend factory-registration pattern, adapted from a
// whole-model execution backend to a lower-level buffer/pipeline/dispatch
// facade closer to what the kernel set actually needs.
package device

import "fmt"

// Usage is a bitset of how a buffer will be accessed. Mirroring WebGPU's
// buffer usage flags keeps the CPU reference device's contract close to
// what a real GPU device would enforce.
type Usage uint8

const (
	UsageStorage Usage = 1 << iota
	UsageUniform
	UsageReadback
)

// Has reports whether usage includes flag.
func (u Usage) Has(flag Usage) bool { return u&flag != 0 }

// UniformBufferSize is the fixed size of every uniform buffer a kernel
// binds, matching WebGPU's minimum uniform buffer binding alignment.
const UniformBufferSize = 256

// Buffer is an opaque device-resident allocation. Its contents are
// observable through Device.WriteBuffer/ReadBuffer, or directly through
// Bytes on devices that expose host memory (the CPU reference device).
type Buffer interface {
	Size() int
	Usage() Usage
}

// KernelFunc is a single dispatched kernel invocation: args is the
// decoded contents of the dispatch's uniform buffer, bindings are the
// storage/uniform buffers bound in declaration order.
type KernelFunc func(args []byte, bindings []Buffer) error

// Pipeline is a compiled, dispatchable kernel.
type Pipeline interface {
	Name() string
}

// CommandEncoder records a sequence of dispatches to be executed, in
// order, when the device submits them. Recording never executes a
// dispatch immediately -- that only happens on Device.Submit, mirroring
// WebGPU's command-buffer model.
type CommandEncoder interface {
	Dispatch(pipeline Pipeline, uniform Buffer, bindings []Buffer)
}

// Device is the facade every compute kernel is written against.
type Device interface {
	Name() string

	CreateBuffer(size int, usage Usage) (Buffer, error)
	WriteBuffer(buf Buffer, offset int, data []byte) error
	ReadBuffer(buf Buffer, offset, size int) ([]byte, error)

	CreatePipeline(name string, fn KernelFunc) (Pipeline, error)
	NewCommandEncoder() CommandEncoder

	// Submit executes every dispatch recorded on enc synchronously, in
	// order, and returns the first kernel error encountered, if any.
	Submit(enc CommandEncoder) error
}

var factories = make(map[string]func() (Device, error))

// Register adds a named device factory. It panics if name is already
// registered, the same fail-fast contract ml.RegisterBackend uses.
func Register(name string, f func() (Device, error)) {
	if _, ok := factories[name]; ok {
		panic("device: device already registered: " + name)
	}
	factories[name] = f
}

// New creates a device by name.
func New(name string) (Device, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("device: unknown device %q", name)
	}
	return f()
}

func init() {
	Register("cpu", func() (Device, error) { return NewCPUDevice(), nil })
}
