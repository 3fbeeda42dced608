package gpu

// OpKind identifies a recorded command.
type OpKind uint8

const (
	OpBarrier OpKind = iota
	OpCopyBufferRegion
	OpCopyBufferToTexture
	OpClearRenderTarget
	OpClearDepthStencil
	OpSetRenderTargets
	OpSetDescriptorHeaps
	OpSetPipelineState
	OpSetRootSignature
	OpSetRootConstants
	OpSetRootDescriptorTable
	OpSetRootView
	OpSetVertexBuffer
	OpSetIndexBuffer
	OpSetViewport
	OpSetScissor
	OpDraw
	OpDrawIndexed
	OpDispatch
)

var opKindNames = [...]string{
	"Barrier", "CopyBufferRegion", "CopyBufferToTexture", "ClearRenderTarget", "ClearDepthStencil",
	"SetRenderTargets", "SetDescriptorHeaps", "SetPipelineState", "SetRootSignature", "SetRootConstants",
	"SetRootDescriptorTable", "SetRootView", "SetVertexBuffer", "SetIndexBuffer", "SetViewport",
	"SetScissor", "Draw", "DrawIndexed", "Dispatch",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return "Op(?)"
}

// VertexBufferView binds a range of a buffer as vertex input.
type VertexBufferView struct {
	Resource *Resource
	Offset   uint64
	Size     uint64
	Stride   uint32
}

// IndexBufferView binds a range of a buffer as index input.
type IndexBufferView struct {
	Resource *Resource
	Offset   uint64
	Size     uint64
	Format   Format
}

// BufferView is an inline root SRV/UAV/CBV.
type BufferView struct {
	Resource *Resource
	Offset   uint64
	// Size of 0 binds to the end of the buffer.
	Size uint64
}

// PlacedFootprint describes texel rows laid out in a buffer for a buffer-to-texture copy.
type PlacedFootprint struct {
	Offset   uint64
	Format   Format
	Width    uint32
	Height   uint32
	RowPitch uint32
}

// TextureFootprint computes the layout of a width x height image of format f with rows aligned
// to TextureDataPitchAlignment.
//
// Returns:
//   - PlacedFootprint: the layout at offset 0
//   - uint64: the total bytes required
func TextureFootprint(f Format, width, height uint32) (PlacedFootprint, uint64) {
	row := width * f.BytesPerTexel()
	pitch := (row + TextureDataPitchAlignment - 1) / TextureDataPitchAlignment * TextureDataPitchAlignment
	return PlacedFootprint{Format: f, Width: width, Height: height, RowPitch: pitch}, uint64(pitch) * uint64(height)
}

// Barrier is a resource state transition.
type Barrier struct {
	Resource *Resource
	Before   ResourceState
	After    ResourceState
}

// Op is one recorded command. Only the fields relevant to Kind are set.
type Op struct {
	Kind OpKind
	// Compute selects the compute bind point for root signature and root argument ops.
	Compute bool

	Barrier Barrier

	Dst, Src             *Resource
	DstOffset, SrcOffset uint64
	Size                 uint64
	DstLayer             uint32
	Footprint            PlacedFootprint

	Handle CPUDescriptorHandle
	Color  Color
	Depth  float32
	RTVs   []CPUDescriptorHandle
	DSV    *CPUDescriptorHandle

	Heaps []*DescriptorHeap

	Pipeline      PipelineState
	RootSignature RootSignature
	RootIndex     uint32
	// Constants are the bytes of a root constant update, written at DestOffset 32-bit values.
	Constants  []byte
	DestOffset uint32
	Table      GPUDescriptorHandle
	View       BufferView

	Slot       uint32
	VertexView VertexBufferView
	IndexView  IndexBufferView
	Viewport   Viewport
	Scissor    Rect

	Count         uint32
	InstanceCount uint32
	Start         uint32
	BaseVertex    int32
	StartInstance uint32
	Groups        [3]uint32
}
