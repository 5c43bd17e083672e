package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCPUDeviceViaRegistry(t *testing.T) {
	d, err := New("cpu")
	require.NoError(t, err)
	assert.Equal(t, "cpu", d.Name())
}

func TestNewUnknownDevice(t *testing.T) {
	_, err := New("webgpu")
	assert.Error(t, err)
}

func TestUniformBufferSizeEnforced(t *testing.T) {
	d := NewCPUDevice()
	_, err := d.CreateBuffer(128, UsageUniform)
	assert.Error(t, err)

	buf, err := d.CreateBuffer(UniformBufferSize, UsageUniform)
	require.NoError(t, err)
	assert.Equal(t, UniformBufferSize, buf.Size())
}

func TestWriteReadBufferRoundTrip(t *testing.T) {
	d := NewCPUDevice()
	buf, err := d.CreateBuffer(8, UsageStorage)
	require.NoError(t, err)

	require.NoError(t, d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	got, err := d.ReadBuffer(buf, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, got)
}

func TestWriteBufferOutOfBounds(t *testing.T) {
	d := NewCPUDevice()
	buf, err := d.CreateBuffer(4, UsageStorage)
	require.NoError(t, err)
	err = d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestDispatchExecutesInOrder(t *testing.T) {
	d := NewCPUDevice()

	var order []int
	makePipeline := func(id int) Pipeline {
		p, err := d.CreatePipeline("step", func(args []byte, bindings []Buffer) error {
			order = append(order, id)
			return nil
		})
		require.NoError(t, err)
		return p
	}

	uniform, err := d.CreateBuffer(UniformBufferSize, UsageUniform)
	require.NoError(t, err)

	enc := d.NewCommandEncoder()
	enc.Dispatch(makePipeline(1), uniform, nil)
	enc.Dispatch(makePipeline(2), uniform, nil)
	enc.Dispatch(makePipeline(3), uniform, nil)

	require.NoError(t, d.Submit(enc))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSubmitStopsAtFirstError(t *testing.T) {
	d := NewCPUDevice()

	ran := 0
	failing, err := d.CreatePipeline("boom", func(args []byte, bindings []Buffer) error {
		ran++
		return assert.AnError
	})
	require.NoError(t, err)
	never, err := d.CreatePipeline("never", func(args []byte, bindings []Buffer) error {
		ran++
		return nil
	})
	require.NoError(t, err)

	uniform, err := d.CreateBuffer(UniformBufferSize, UsageUniform)
	require.NoError(t, err)

	enc := d.NewCommandEncoder()
	enc.Dispatch(failing, uniform, nil)
	enc.Dispatch(never, uniform, nil)

	err = d.Submit(enc)
	assert.Error(t, err)
	assert.Equal(t, 1, ran)
}

func TestPackUniformPadsToUniformBufferSize(t *testing.T) {
	packed, err := PackUniform(uint32(1), uint32(2), float32(3.5))
	require.NoError(t, err)
	assert.Len(t, packed, UniformBufferSize)
}

func TestFloat32SliceRoundTrip(t *testing.T) {
	d := NewCPUDevice()
	buf, err := d.CreateBuffer(16, UsageStorage)
	require.NoError(t, err)

	values := []float32{1.5, -2.25, 0, 100}
	require.True(t, PutFloat32Slice(buf, values))

	got, ok := Float32Slice(buf)
	require.True(t, ok)
	assert.Equal(t, values, got)
}
