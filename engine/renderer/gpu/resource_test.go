package gpu_test

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeList(t *testing.T, dev *gputest.FakeDevice, typ gpu.CommandListType, record func(*gpu.CommandList)) {
	t.Helper()
	q := gpu.NewCommandQueue(dev, typ)
	pool, err := gpu.NewCommandListPool(dev, q, 1, 1)
	require.NoError(t, err)
	h, err := pool.AllocList()
	require.NoError(t, err)
	record(pool.MustList(h))
	v, err := pool.ExecuteAndFreeList(h)
	require.NoError(t, err)
	require.NoError(t, pool.WaitForInternalFenceValue(context.Background(), v))
}

func TestCreateCommittedBufferResourceForData(t *testing.T) {
	dev := gputest.NewFakeDevice()
	data := []float32{1, 2, 3, 4}
	var vb *gpu.VertexBufferResource[float32]
	var upload *gpu.Resource

	executeList(t, dev, gpu.CommandListTypeDirect, func(l *gpu.CommandList) {
		var err error
		vb, upload, err = gpu.NewVertexBufferResource(dev, l, "positions", data)
		require.NoError(t, err)
	})
	upload.Release()

	assert.Equal(t, common.SliceToBytes(data), gputest.BufferBytes(vb.Resource))
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, vb.Resource.State())
	view := vb.View()
	assert.Equal(t, uint32(4), view.Stride)
	assert.Equal(t, uint64(16), view.Size)
}

func TestCreateCommittedBufferOnCopyListDecaysToCommon(t *testing.T) {
	dev := gputest.NewFakeDevice()
	var ib *gpu.IndexBufferResource
	executeList(t, dev, gpu.CommandListTypeCopy, func(l *gpu.CommandList) {
		var err error
		ib, _, err = gpu.NewIndexBufferResource(dev, l, "indices", []uint32{0, 1, 2})
		require.NoError(t, err)
	})
	assert.Equal(t, gpu.ResourceStateCommon, ib.Resource.State())
	assert.Equal(t, gpu.FormatR32Uint, ib.View().Format)
}

func TestCreateCommittedTextureForDataPitchesRows(t *testing.T) {
	dev := gputest.NewFakeDevice()
	const w, h = 3, 2
	pixels := make([]byte, w*h*4*6)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	desc := gpu.TextureDesc{Label: "cube", Width: w, Height: h, Format: gpu.FormatRGBA8Unorm, Dimension: gpu.TextureDimensionCube}

	var tex, upload *gpu.Resource
	executeList(t, dev, gpu.CommandListTypeDirect, func(l *gpu.CommandList) {
		var err error
		tex, upload, err = gpu.CreateCommittedTextureForData(dev, l, desc, pixels, gpu.ResourceStatePixelShaderResource)
		require.NoError(t, err)
	})

	fp, layerSize := gpu.TextureFootprint(gpu.FormatRGBA8Unorm, w, h)
	assert.Equal(t, uint32(256), fp.RowPitch)
	assert.Equal(t, 6*layerSize, upload.Size())
	for layer := 0; layer < 6; layer++ {
		assert.Equal(t, pixels[layer*w*h*4:(layer+1)*w*h*4], gputest.TextureLayer(tex, layer)[:w*h*4])
	}
	assert.Equal(t, 6, dev.CountOps(gpu.OpCopyBufferToTexture))

	executeList(t, dev, gpu.CommandListTypeDirect, func(l *gpu.CommandList) {
		_, _, err := gpu.CreateCommittedTextureForData(dev, l, desc, pixels[:10], gpu.ResourceStatePixelShaderResource)
		assert.Error(t, err)
	})
}

func TestCreateCommittedBufferPropagatesDeviceErrors(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.FailBufferCreation = true
	list := recordingList(dev, gpu.CommandListTypeDirect)
	_, _, err := gpu.CreateCommittedBufferResourceForData(dev, list, "x", gpu.ResourceFlagNone, gpu.ResourceStateCommon, []uint32{1})
	assert.ErrorIs(t, err, gpu.ErrNativeAPI)
}

func TestBindlessBufferBatchesStagedUploads(t *testing.T) {
	dev := gputest.NewFakeDevice()
	b, err := gpu.NewBindlessBufferResource[uint32](dev, "bindless", 16, 8, gpu.ResourceStateVertexAndConstantBuffer)
	require.NoError(t, err)

	s1, err := b.Alloc(3)
	require.NoError(t, err)
	s2, err := b.Alloc(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), s2.Offset())

	b.CopyToUpload(s1, []uint32{1, 2, 3})
	b.CopyToUpload(s2, []uint32{4, 5, 6, 7})
	assert.Equal(t, []gpu.StagedUpload{
		{UploadOffset: 0, DefaultOffset: 0, Count: 3},
		{UploadOffset: 3, DefaultOffset: 3, Count: 4},
	}, b.Staged())
	assert.Panics(t, func() { b.CopyToUpload(s2, []uint32{1, 2}) }, "upload ring overflow")

	executeList(t, dev, gpu.CommandListTypeDirect, func(l *gpu.CommandList) {
		assert.Equal(t, 2, b.FlushUploadToDefault(l))
		assert.Zero(t, b.FlushUploadToDefault(l))
	})
	assert.Empty(t, b.Staged())
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, b.Resource().State())
	assert.Equal(t, common.SliceToBytes([]uint32{1, 2, 3, 4, 5, 6, 7}), gputest.BufferBytes(b.Resource())[:28])
	assert.Equal(t, 2, dev.CountOps(gpu.OpCopyBufferRegion))
	assert.Equal(t, 2, dev.CountOps(gpu.OpBarrier))

	view := b.VertexView(s2)
	assert.Equal(t, uint64(12), view.Offset)
	assert.Equal(t, uint64(16), view.Size)

	assert.Panics(t, b.Release, "slices still allocated")
	b.Free(s1)
	b.Free(s2)
	_, err = b.Alloc(17)
	assert.ErrorIs(t, err, gpu.ErrOutOfSpace)
	assert.NotPanics(t, b.Release)
}
