package gpu_test

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingList(dev gpu.Device, typ gpu.CommandListType) *gpu.CommandList {
	l := gpu.NewCommandList(typ, "test")
	l.Reset(gpu.NewCommandAllocator(dev, typ))
	return l
}

func TestTransitionValidatesTrackedState(t *testing.T) {
	dev := gputest.NewFakeDevice()
	res, err := gpu.CreateCommittedBuffer(dev, gpu.BufferDesc{Label: "vb", Size: 16}, gpu.ResourceStateCopyDest)
	require.NoError(t, err)
	list := recordingList(dev, gpu.CommandListTypeDirect)

	list.Transition(res, gpu.ResourceStateCopyDest, gpu.ResourceStateVertexAndConstantBuffer)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, res.State())

	assert.Panics(t, func() {
		list.Transition(res, gpu.ResourceStateCopyDest, gpu.ResourceStateIndexBuffer)
	})
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, res.State())

	upload, err := gpu.CreateCommittedBuffer(dev, gpu.BufferDesc{Label: "up", Size: 16, Heap: gpu.HeapTypeUpload}, gpu.ResourceStateCommon)
	require.NoError(t, err)
	assert.Equal(t, gpu.ResourceStateGenericRead, upload.State())
	assert.Panics(t, func() {
		list.Transition(upload, gpu.ResourceStateGenericRead, gpu.ResourceStateCopyDest)
	})
}

func TestCopyListRejectsGraphicsWork(t *testing.T) {
	dev := gputest.NewFakeDevice()
	res, err := gpu.CreateCommittedBuffer(dev, gpu.BufferDesc{Label: "vb", Size: 16}, gpu.ResourceStateCopyDest)
	require.NoError(t, err)
	list := recordingList(dev, gpu.CommandListTypeCopy)

	assert.Panics(t, func() { list.ClearDepthStencilView(gpu.CPUDescriptorHandle{}, 1) })
	assert.Panics(t, func() { list.Dispatch(1, 1, 1) })
	assert.Panics(t, func() {
		list.Transition(res, gpu.ResourceStateCopyDest, gpu.ResourceStateVertexAndConstantBuffer)
	})
	list.Transition(res, gpu.ResourceStateCopyDest, gpu.ResourceStateCommon)
}

func TestDrawValidation(t *testing.T) {
	dev := gputest.NewFakeDevice()
	rs, err := dev.CreateRootSignature(gpu.RootSignatureDesc{
		Label: "draw",
		Parameters: []gpu.RootParameter{
			{Kind: gpu.RootParameterConstants, Visibility: gpu.ShaderVisibilityVertex, Num32BitValues: 16},
			{Kind: gpu.RootParameterSRV, Visibility: gpu.ShaderVisibilityVertex, ShaderRegister: 0},
		},
	})
	require.NoError(t, err)
	other, err := dev.CreateRootSignature(gpu.RootSignatureDesc{
		Label:      "other",
		Parameters: []gpu.RootParameter{{Kind: gpu.RootParameterConstants, Num32BitValues: 4}},
	})
	require.NoError(t, err)
	pso, err := dev.CreateGraphicsPipelineState(gpu.GraphicsPipelineDesc{
		Label:         "draw",
		RootSignature: rs,
		VS:            gpu.ShaderCode{Name: "vs", Source: "fn vs() {}", EntryPoint: "vs"},
	})
	require.NoError(t, err)

	list := recordingList(dev, gpu.CommandListTypeDirect)
	assert.Panics(t, func() { list.DrawInstanced(3, 1, 0, 0) }, "no pipeline")

	list.SetPipelineState(pso)
	list.SetGraphicsRootSignature(other)
	list.OMSetRenderTargets([]gpu.CPUDescriptorHandle{{Ptr: 1}}, nil)
	assert.Panics(t, func() { list.DrawInstanced(3, 1, 0, 0) }, "root signature mismatch")

	list.SetGraphicsRootSignature(rs)
	assert.Panics(t, func() { list.SetGraphicsRoot32BitConstants(0, make([]byte, 17*4), 0) }, "constant overflow")
	assert.Panics(t, func() { list.SetGraphicsRoot32BitConstants(1, make([]byte, 4), 0) }, "wrong parameter kind")
	assert.Panics(t, func() { list.SetGraphicsRoot32BitConstants(5, make([]byte, 4), 0) }, "out of range")
	assert.Panics(t, func() { list.SetGraphicsRoot32BitConstants(0, make([]byte, 3), 0) }, "not 32-bit values")

	list.SetGraphicsRoot32BitConstants(0, make([]byte, 8*4), 8)
	list.DrawInstanced(3, 1, 0, 0)
	list.Close()

	kinds := make([]gpu.OpKind, 0, len(list.Ops()))
	for _, op := range list.Ops() {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []gpu.OpKind{
		gpu.OpSetPipelineState, gpu.OpSetRootSignature, gpu.OpSetRenderTargets,
		gpu.OpSetRootSignature, gpu.OpSetRootConstants, gpu.OpDraw,
	}, kinds)
	assert.Panics(t, func() { list.DrawInstanced(3, 1, 0, 0) }, "closed")
}

func TestCommandListRecordsIntoAllocatorArena(t *testing.T) {
	dev := gputest.NewFakeDevice()
	alloc := gpu.NewCommandAllocator(dev, gpu.CommandListTypeDirect)
	list := gpu.NewCommandList(gpu.CommandListTypeDirect, "arena")
	list.Reset(alloc)
	list.SetViewport(gpu.Viewport{Width: 4, Height: 4, MaxDepth: 1})
	list.SetScissorRect(gpu.Rect{Right: 4, Bottom: 4})

	second := gpu.NewCommandList(gpu.CommandListTypeDirect, "second")
	assert.Panics(t, func() { second.Reset(alloc) }, "one recording list per allocator")
	assert.Panics(t, alloc.Reset, "allocator reset while recording")

	list.Close()
	assert.Equal(t, 2, alloc.OpCount())
	alloc.SetInFlight(true)
	assert.Panics(t, alloc.Reset)
	alloc.SetInFlight(false)
	alloc.Reset()
	assert.Zero(t, alloc.OpCount())
	assert.Equal(t, 1, dev.AllocatorReset)
}
