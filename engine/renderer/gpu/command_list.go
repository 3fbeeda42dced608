package gpu

import (
	"fmt"
)

type listState int

const (
	listFree listState = iota
	listRecording
	listClosed
	listSubmitted
)

func (s listState) String() string {
	return [...]string{"free", "recording", "closed", "submitted"}[s]
}

// CommandList records commands into a CommandAllocator. Recording is single-threaded.
// Every call validates its arguments against the bound root signature and the list type, and
// panics on misuse.
type CommandList struct {
	typ   CommandListType
	label string
	state listState
	alloc *CommandAllocator

	opStart, opEnd int

	graphicsRoot RootSignature
	computeRoot  RootSignature
	pipeline     PipelineState
	heaps        []*DescriptorHeap
	hasTargets   bool
}

// NewCommandList creates a list in the free state. Call Reset to start recording.
func NewCommandList(typ CommandListType, label string) *CommandList {
	return &CommandList{typ: typ, label: label}
}

// Type returns the list type.
func (l *CommandList) Type() CommandListType { return l.typ }

// Label returns the debug label.
func (l *CommandList) Label() string { return l.label }

// Recording reports whether the list accepts commands.
func (l *CommandList) Recording() bool { return l.state == listRecording }

// Closed reports whether the list is closed and not yet submitted.
func (l *CommandList) Closed() bool { return l.state == listClosed }

// Allocator returns the allocator the list last recorded into.
func (l *CommandList) Allocator() *CommandAllocator { return l.alloc }

// Ops returns the commands recorded since the last Reset.
func (l *CommandList) Ops() []Op {
	if l.alloc == nil {
		return nil
	}
	end := l.opEnd
	if l.state == listRecording {
		end = len(l.alloc.ops)
	}
	return l.alloc.ops[l.opStart:end]
}

// Reset starts recording into alloc. The list must not be recording and the allocator must
// not have another list recording into it.
//
// Parameters:
//   - alloc: the allocator to record into
func (l *CommandList) Reset(alloc *CommandAllocator) {
	if l.state == listRecording {
		panic(fmt.Sprintf("gpu: reset of command list %q while recording", l.label))
	}
	if alloc.typ != l.typ {
		panic(fmt.Sprintf("gpu: %v command list reset with a %v allocator", l.typ, alloc.typ))
	}
	if alloc.recording != nil {
		panic("gpu: command allocator already has a recording command list")
	}
	if alloc.inFlight {
		panic("gpu: command list reset against an in-flight allocator")
	}
	alloc.recording = l
	l.alloc = alloc
	l.state = listRecording
	l.opStart, l.opEnd = len(alloc.ops), len(alloc.ops)
	l.graphicsRoot, l.computeRoot, l.pipeline = nil, nil, nil
	l.heaps = nil
	l.hasTargets = false
}

// Close ends recording.
func (l *CommandList) Close() {
	l.mustRecord()
	l.opEnd = len(l.alloc.ops)
	l.alloc.recording = nil
	l.state = listClosed
}

// markFree returns the list to the free state after its slot is recycled by a pool.
func (l *CommandList) markFree() {
	if l.state == listRecording {
		l.Close()
	}
	l.state = listFree
}

func (l *CommandList) mustRecord() {
	if l.state != listRecording {
		panic(fmt.Sprintf("gpu: command list %q is %v, not recording", l.label, l.state))
	}
}

func (l *CommandList) mustDirect(what string) {
	if l.typ != CommandListTypeDirect {
		panic(fmt.Sprintf("gpu: %s recorded on a %v command list", what, l.typ))
	}
}

// ResourceBarrier records state transitions. Each barrier's Before must match the resource's
// tracked state.
func (l *CommandList) ResourceBarrier(barriers ...Barrier) {
	l.mustRecord()
	for _, b := range barriers {
		if b.Before == b.After {
			continue
		}
		if l.typ == CommandListTypeCopy {
			copyStates := ResourceStateCommon | ResourceStateCopyDest | ResourceStateCopySource
			if b.Before&^copyStates != 0 || b.After&^copyStates != 0 {
				panic(fmt.Sprintf("gpu: copy list barrier %v -> %v on %q uses non-copy states", b.Before, b.After, b.Resource.Label()))
			}
		}
		b.Resource.transition(b.Before, b.After)
		l.alloc.push(Op{Kind: OpBarrier, Barrier: b})
	}
}

// Transition records a single state transition.
func (l *CommandList) Transition(res *Resource, before, after ResourceState) {
	l.ResourceBarrier(Barrier{Resource: res, Before: before, After: after})
}

// CopyBufferRegion copies size bytes between buffers.
func (l *CommandList) CopyBufferRegion(dst *Resource, dstOffset uint64, src *Resource, srcOffset, size uint64) {
	l.mustRecord()
	if !dst.IsBuffer() || !src.IsBuffer() {
		panic("gpu: CopyBufferRegion requires buffer resources")
	}
	if dstOffset+size > dst.Size() || srcOffset+size > src.Size() {
		panic(fmt.Sprintf("gpu: CopyBufferRegion of %d bytes out of bounds (dst %q %d/%d, src %q %d/%d)",
			size, dst.Label(), dstOffset, dst.Size(), src.Label(), srcOffset, src.Size()))
	}
	if dst.heap == HeapTypeDefault && dst.state&ResourceStateCopyDest == 0 {
		panic(fmt.Sprintf("gpu: copy destination %v is not in CopyDest", dst))
	}
	l.alloc.push(Op{Kind: OpCopyBufferRegion, Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size})
}

// CopyBufferToTexture copies texel rows laid out by footprint from src into layer dstLayer of dst.
func (l *CommandList) CopyBufferToTexture(dst *Resource, dstLayer uint32, src *Resource, footprint PlacedFootprint) {
	l.mustRecord()
	if dst.Texture() == nil || !src.IsBuffer() {
		panic("gpu: CopyBufferToTexture requires a texture destination and a buffer source")
	}
	if footprint.RowPitch%TextureDataPitchAlignment != 0 {
		panic(fmt.Sprintf("gpu: row pitch %d is not %d-aligned", footprint.RowPitch, TextureDataPitchAlignment))
	}
	if footprint.Offset+uint64(footprint.RowPitch)*uint64(footprint.Height) > src.Size() {
		panic("gpu: CopyBufferToTexture footprint exceeds the source buffer")
	}
	if dst.state&ResourceStateCopyDest == 0 {
		panic(fmt.Sprintf("gpu: copy destination %v is not in CopyDest", dst))
	}
	l.alloc.push(Op{Kind: OpCopyBufferToTexture, Dst: dst, DstLayer: dstLayer, Src: src, Footprint: footprint})
}

// ClearRenderTargetView clears the render target a view refers to.
func (l *CommandList) ClearRenderTargetView(rtv CPUDescriptorHandle, color Color) {
	l.mustRecord()
	l.mustDirect("ClearRenderTargetView")
	l.alloc.push(Op{Kind: OpClearRenderTarget, Handle: rtv, Color: color})
}

// ClearDepthStencilView clears the depth of the texture a view refers to.
func (l *CommandList) ClearDepthStencilView(dsv CPUDescriptorHandle, depth float32) {
	l.mustRecord()
	l.mustDirect("ClearDepthStencilView")
	l.alloc.push(Op{Kind: OpClearDepthStencil, Handle: dsv, Depth: depth})
}

// OMSetRenderTargets binds render-target views and an optional depth-stencil view.
func (l *CommandList) OMSetRenderTargets(rtvs []CPUDescriptorHandle, dsv *CPUDescriptorHandle) {
	l.mustRecord()
	l.mustDirect("OMSetRenderTargets")
	var d *CPUDescriptorHandle
	if dsv != nil {
		v := *dsv
		d = &v
	}
	l.hasTargets = len(rtvs) > 0 || dsv != nil
	l.alloc.push(Op{Kind: OpSetRenderTargets, RTVs: l.alloc.storeHandles(rtvs), DSV: d})
}

// SetDescriptorHeaps binds the shader-visible heaps descriptor tables resolve against.
func (l *CommandList) SetDescriptorHeaps(heaps ...*DescriptorHeap) {
	l.mustRecord()
	l.mustDirect("SetDescriptorHeaps")
	for _, h := range heaps {
		if !h.Type().ShaderVisible() {
			panic(fmt.Sprintf("gpu: %v heap is not shader visible", h.Type()))
		}
	}
	l.heaps = append([]*DescriptorHeap(nil), heaps...)
	l.alloc.push(Op{Kind: OpSetDescriptorHeaps, Heaps: l.heaps})
}

// SetPipelineState binds a graphics or compute pipeline.
func (l *CommandList) SetPipelineState(p PipelineState) {
	l.mustRecord()
	l.mustDirect("SetPipelineState")
	l.pipeline = p
	l.alloc.push(Op{Kind: OpSetPipelineState, Pipeline: p})
}

// SetGraphicsRootSignature binds the graphics root signature.
func (l *CommandList) SetGraphicsRootSignature(rs RootSignature) {
	l.mustRecord()
	l.mustDirect("SetGraphicsRootSignature")
	l.graphicsRoot = rs
	l.alloc.push(Op{Kind: OpSetRootSignature, RootSignature: rs})
}

// SetComputeRootSignature binds the compute root signature.
func (l *CommandList) SetComputeRootSignature(rs RootSignature) {
	l.mustRecord()
	l.mustDirect("SetComputeRootSignature")
	l.computeRoot = rs
	l.alloc.push(Op{Kind: OpSetRootSignature, RootSignature: rs, Compute: true})
}

func (l *CommandList) rootParam(compute bool, index uint32, kinds ...RootParameterKind) RootParameter {
	rs := l.graphicsRoot
	if compute {
		rs = l.computeRoot
	}
	if rs == nil {
		panic(fmt.Sprintf("gpu: root argument %d set without a root signature (compute=%v)", index, compute))
	}
	params := rs.Desc().Parameters
	if int(index) >= len(params) {
		panic(fmt.Sprintf("gpu: root parameter %d out of range for %q", index, rs.Desc().Label))
	}
	p := params[index]
	for _, k := range kinds {
		if p.Kind == k {
			return p
		}
	}
	panic(fmt.Sprintf("gpu: root parameter %d of %q has kind %d, not %v", index, rs.Desc().Label, p.Kind, kinds))
}

func (l *CommandList) setConstants(compute bool, index uint32, data []byte, destOffset uint32) {
	l.mustRecord()
	l.mustDirect("root constants")
	p := l.rootParam(compute, index, RootParameterConstants)
	if destOffset+uint32(len(data)/4) > p.Num32BitValues {
		panic(fmt.Sprintf("gpu: %d constants at offset %d overflow root parameter %d (%d values)",
			len(data)/4, destOffset, index, p.Num32BitValues))
	}
	l.alloc.push(Op{Kind: OpSetRootConstants, Compute: compute, RootIndex: index,
		Constants: l.alloc.storeConstants(data), DestOffset: destOffset})
}

// SetGraphicsRoot32BitConstants writes 32-bit root constants for graphics.
//
// Parameters:
//   - index: the root parameter index
//   - data: the constant bytes, a multiple of 4
//   - destOffset: the first 32-bit value to write
func (l *CommandList) SetGraphicsRoot32BitConstants(index uint32, data []byte, destOffset uint32) {
	l.setConstants(false, index, data, destOffset)
}

// SetComputeRoot32BitConstants writes 32-bit root constants for compute.
func (l *CommandList) SetComputeRoot32BitConstants(index uint32, data []byte, destOffset uint32) {
	l.setConstants(true, index, data, destOffset)
}

// SetGraphicsRootDescriptorTable points a descriptor table parameter at a heap range.
func (l *CommandList) SetGraphicsRootDescriptorTable(index uint32, base GPUDescriptorHandle) {
	l.setTable(false, index, base)
}

// SetComputeRootDescriptorTable points a compute descriptor table parameter at a heap range.
func (l *CommandList) SetComputeRootDescriptorTable(index uint32, base GPUDescriptorHandle) {
	l.setTable(true, index, base)
}

func (l *CommandList) setTable(compute bool, index uint32, base GPUDescriptorHandle) {
	l.mustRecord()
	l.mustDirect("descriptor table")
	p := l.rootParam(compute, index, RootParameterDescriptorTable)
	var heap *DescriptorHeap
	for _, h := range l.heaps {
		if _, ok := h.GPUIndex(base); ok {
			heap = h
		}
	}
	if heap == nil {
		panic(fmt.Sprintf("gpu: descriptor table %d handle %#x is not in a bound heap", index, base.Ptr))
	}
	first, _ := heap.GPUIndex(base)
	if first+p.TableSize() > heap.Capacity() {
		panic(fmt.Sprintf("gpu: descriptor table %d runs past the end of the heap", index))
	}
	l.alloc.push(Op{Kind: OpSetRootDescriptorTable, Compute: compute, RootIndex: index, Table: base})
}

func (l *CommandList) setView(compute bool, index uint32, view BufferView, kind RootParameterKind) {
	l.mustRecord()
	l.mustDirect("root view")
	l.rootParam(compute, index, kind)
	if !view.Resource.IsBuffer() {
		panic("gpu: root views bind buffers only")
	}
	if view.Offset+view.Size > view.Resource.Size() {
		panic(fmt.Sprintf("gpu: root view of %q out of bounds", view.Resource.Label()))
	}
	l.alloc.push(Op{Kind: OpSetRootView, Compute: compute, RootIndex: index, View: view})
}

// SetGraphicsRootShaderResourceView binds an inline read-only buffer for graphics.
func (l *CommandList) SetGraphicsRootShaderResourceView(index uint32, view BufferView) {
	l.setView(false, index, view, RootParameterSRV)
}

// SetComputeRootShaderResourceView binds an inline read-only buffer for compute.
func (l *CommandList) SetComputeRootShaderResourceView(index uint32, view BufferView) {
	l.setView(true, index, view, RootParameterSRV)
}

// SetComputeRootUnorderedAccessView binds an inline read-write buffer for compute.
func (l *CommandList) SetComputeRootUnorderedAccessView(index uint32, view BufferView) {
	l.setView(true, index, view, RootParameterUAV)
}

// SetGraphicsRootConstantBufferView binds an inline constant buffer for graphics.
func (l *CommandList) SetGraphicsRootConstantBufferView(index uint32, view BufferView) {
	l.setView(false, index, view, RootParameterCBV)
}

// SetVertexBuffers binds vertex buffer views starting at slot start.
func (l *CommandList) SetVertexBuffers(start uint32, views ...VertexBufferView) {
	l.mustRecord()
	l.mustDirect("SetVertexBuffers")
	for i, v := range views {
		if v.Offset+v.Size > v.Resource.Size() {
			panic(fmt.Sprintf("gpu: vertex buffer view of %q out of bounds", v.Resource.Label()))
		}
		l.alloc.push(Op{Kind: OpSetVertexBuffer, Slot: start + uint32(i), VertexView: v})
	}
}

// SetIndexBuffer binds an index buffer view.
func (l *CommandList) SetIndexBuffer(v IndexBufferView) {
	l.mustRecord()
	l.mustDirect("SetIndexBuffer")
	if v.Format != FormatR32Uint && v.Format != FormatR16Uint {
		panic("gpu: index buffers must be R16Uint or R32Uint")
	}
	l.alloc.push(Op{Kind: OpSetIndexBuffer, IndexView: v})
}

// SetViewport sets the viewport.
func (l *CommandList) SetViewport(v Viewport) {
	l.mustRecord()
	l.mustDirect("SetViewport")
	l.alloc.push(Op{Kind: OpSetViewport, Viewport: v})
}

// SetScissorRect sets the scissor rectangle.
func (l *CommandList) SetScissorRect(r Rect) {
	l.mustRecord()
	l.mustDirect("SetScissorRect")
	l.alloc.push(Op{Kind: OpSetScissor, Scissor: r})
}

func (l *CommandList) checkDraw() {
	l.mustRecord()
	l.mustDirect("draw")
	if l.pipeline == nil || l.pipeline.Compute() {
		panic(fmt.Sprintf("gpu: draw on %q without a graphics pipeline", l.label))
	}
	if l.graphicsRoot == nil || l.pipeline.RootSignature() != l.graphicsRoot {
		panic(fmt.Sprintf("gpu: draw on %q with pipeline %q whose root signature is not bound", l.label, l.pipeline.Label()))
	}
	if !l.hasTargets {
		panic(fmt.Sprintf("gpu: draw on %q without render targets", l.label))
	}
}

// DrawInstanced draws non-indexed primitives.
func (l *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	l.checkDraw()
	l.alloc.push(Op{Kind: OpDraw, Count: vertexCount, InstanceCount: instanceCount, Start: startVertex, StartInstance: startInstance})
}

// DrawIndexedInstanced draws indexed primitives.
func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	l.checkDraw()
	l.alloc.push(Op{Kind: OpDrawIndexed, Count: indexCount, InstanceCount: instanceCount, Start: startIndex,
		BaseVertex: baseVertex, StartInstance: startInstance})
}

// Dispatch runs the bound compute pipeline.
func (l *CommandList) Dispatch(x, y, z uint32) {
	l.mustRecord()
	l.mustDirect("Dispatch")
	if l.pipeline == nil || !l.pipeline.Compute() {
		panic(fmt.Sprintf("gpu: dispatch on %q without a compute pipeline", l.label))
	}
	if l.computeRoot == nil || l.pipeline.RootSignature() != l.computeRoot {
		panic(fmt.Sprintf("gpu: dispatch on %q with pipeline %q whose root signature is not bound", l.label, l.pipeline.Label()))
	}
	l.alloc.push(Op{Kind: OpDispatch, Groups: [3]uint32{x, y, z}})
}
