package gpu

import (
	"fmt"
	"strings"
)

// CommandListType identifies the queue family a command list or queue belongs to.
type CommandListType int

const (
	// CommandListTypeDirect records graphics, compute and copy work.
	CommandListTypeDirect CommandListType = iota
	// CommandListTypeCopy records copy work only.
	CommandListTypeCopy
)

func (t CommandListType) String() string {
	switch t {
	case CommandListTypeDirect:
		return "direct"
	case CommandListTypeCopy:
		return "copy"
	default:
		return fmt.Sprintf("CommandListType(%d)", int(t))
	}
}

// HeapType selects the memory a committed resource lives in.
type HeapType int

const (
	// HeapTypeDefault is GPU-local memory that the CPU cannot write.
	HeapTypeDefault HeapType = iota
	// HeapTypeUpload is CPU-writable memory used as a copy source.
	HeapTypeUpload
	// HeapTypeReadback is CPU-readable memory used as a copy destination.
	HeapTypeReadback
)

// ResourceState is a bitmask of the ways a resource may currently be used by the GPU.
type ResourceState uint32

const (
	ResourceStateCommon                  ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 1 << iota
	ResourceStateIndexBuffer
	ResourceStateRenderTarget
	ResourceStateUnorderedAccess
	ResourceStateDepthWrite
	ResourceStateDepthRead
	ResourceStateNonPixelShaderResource
	ResourceStatePixelShaderResource
	ResourceStateCopyDest
	ResourceStateCopySource

	// ResourceStatePresent is the state a back buffer must be in when presented.
	ResourceStatePresent = ResourceStateCommon
	// ResourceStateGenericRead is the union of every read-only state. Upload heap resources
	// live in this state permanently.
	ResourceStateGenericRead = ResourceStateVertexAndConstantBuffer | ResourceStateIndexBuffer |
		ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource | ResourceStateCopySource
	// ResourceStateAllShaderResource covers sampling from any shader stage.
	ResourceStateAllShaderResource = ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource
)

var resourceStateNames = []struct {
	s    ResourceState
	name string
}{
	{ResourceStateVertexAndConstantBuffer, "VertexAndConstantBuffer"},
	{ResourceStateIndexBuffer, "IndexBuffer"},
	{ResourceStateRenderTarget, "RenderTarget"},
	{ResourceStateUnorderedAccess, "UnorderedAccess"},
	{ResourceStateDepthWrite, "DepthWrite"},
	{ResourceStateDepthRead, "DepthRead"},
	{ResourceStateNonPixelShaderResource, "NonPixelShaderResource"},
	{ResourceStatePixelShaderResource, "PixelShaderResource"},
	{ResourceStateCopyDest, "CopyDest"},
	{ResourceStateCopySource, "CopySource"},
}

func (s ResourceState) String() string {
	if s == ResourceStateCommon {
		return "Common"
	}
	if s == ResourceStateGenericRead {
		return "GenericRead"
	}
	var parts []string
	for _, n := range resourceStateNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ResourceFlags describe extra usages a resource is created with.
type ResourceFlags uint32

const (
	ResourceFlagNone                 ResourceFlags = 0
	ResourceFlagAllowRenderTarget    ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil    ResourceFlags = 1 << 1
	ResourceFlagAllowUnorderedAccess ResourceFlags = 1 << 2
)

// Format is a texel or index format.
type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSRGB
	FormatBGRA8Unorm
	FormatBGRA8UnormSRGB
	FormatD32Float
	FormatD24UnormS8Uint
	FormatR32Uint
	FormatR16Uint
	FormatR32Float
)

// BytesPerTexel returns the size of one texel of f, or 0 for depth/unknown formats.
func (f Format) BytesPerTexel() uint32 {
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8UnormSRGB, FormatBGRA8Unorm, FormatBGRA8UnormSRGB,
		FormatR32Uint, FormatR32Float, FormatD32Float:
		return 4
	case FormatR16Uint:
		return 2
	default:
		return 0
	}
}

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint
}

// VertexFormat is the format of one vertex attribute.
type VertexFormat int

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32x4
	VertexFormatUnorm8x4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFormatFloat32, VertexFormatUnorm8x4:
		return 4
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	case VertexFormatFloat32x4, VertexFormatUint32x4:
		return 16
	default:
		return 0
	}
}

// Viewport maps normalized device coordinates to render-target pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a pixel rectangle, right and bottom exclusive.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Color is a linear RGBA clear color.
type Color [4]float32

// Alignment constants shared by every backend.
const (
	// TextureDataPitchAlignment is the required row pitch alignment for buffer-to-texture copies.
	TextureDataPitchAlignment = 256
	// ConstantBufferAlignment is the alignment of each root-constant block in the uniform ring.
	ConstantBufferAlignment = 256
	// MaxRoot32BitConstants is the largest number of 32-bit values one root constant parameter holds.
	MaxRoot32BitConstants = 64
)
