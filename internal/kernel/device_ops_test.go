package kernel

import (
	"testing"

	"github.com/localinfer/localinfer/internal/device"
	"github.com/stretchr/testify/require"
)

func TestRegisterAllAndDispatchResidualAdd(t *testing.T) {
	d, err := device.New("cpu")
	require.NoError(t, err)

	pipelines, err := RegisterAll(d)
	require.NoError(t, err)
	require.Contains(t, pipelines, OpResidualAdd)

	x, err := d.CreateBuffer(8, device.UsageStorage)
	require.NoError(t, err)
	r, err := d.CreateBuffer(8, device.UsageStorage)
	require.NoError(t, err)
	out, err := d.CreateBuffer(8, device.UsageStorage)
	require.NoError(t, err)
	uniform, err := d.CreateBuffer(device.UniformBufferSize, device.UsageUniform)
	require.NoError(t, err)

	require.True(t, device.PutFloat32Slice(x, []float32{1, 2}))
	require.True(t, device.PutFloat32Slice(r, []float32{3, 4}))

	enc := d.NewCommandEncoder()
	enc.Dispatch(pipelines[OpResidualAdd], uniform, []device.Buffer{x, r, out})
	require.NoError(t, d.Submit(enc))

	got, ok := device.Float32Slice(out)
	require.True(t, ok)
	require.Equal(t, []float32{4, 6}, got)
}
