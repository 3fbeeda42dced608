package gpu

// Device is the backend a renderer drives. It creates native objects and replays closed
// command lists onto the native queue.
type Device interface {
	// CreateBuffer creates a committed buffer.
	//
	// Parameters:
	//   - desc: the buffer description
	//
	// Returns:
	//   - Buffer: the native buffer
	//   - error: an ErrNativeAPI wrapped failure
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CreateTexture creates a committed texture.
	//
	// Parameters:
	//   - desc: the texture description
	//
	// Returns:
	//   - Texture: the native texture
	//   - error: an ErrNativeAPI wrapped failure
	CreateTexture(desc TextureDesc) (Texture, error)

	// CreateRootSignature validates a root signature and creates its native layout.
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)

	// CreateGraphicsPipelineState creates a graphics pipeline.
	CreateGraphicsPipelineState(desc GraphicsPipelineDesc) (PipelineState, error)

	// CreateComputePipelineState creates a compute pipeline.
	CreateComputePipelineState(desc ComputePipelineDesc) (PipelineState, error)

	// ExecuteCommandList replays a closed command list onto the queue of the given type and
	// submits it. Lists on one queue execute in submission order.
	//
	// Parameters:
	//   - queue: the queue type to submit on
	//   - list: the closed command list
	//
	// Returns:
	//   - error: an ErrNativeAPI wrapped failure
	ExecuteCommandList(queue CommandListType, list *CommandList) error

	// SignalFence arranges for f to be completed to value once all work submitted so far on the
	// given queue has finished executing.
	SignalFence(queue CommandListType, f *Fence, value uint64)

	// Poll processes completion callbacks. When wait is true it blocks until the GPU is idle.
	Poll(wait bool)

	// ResetAllocator releases backend state attached to a command allocator's previous
	// recording. Called when the allocator is reset for reuse.
	ResetAllocator(a *CommandAllocator)

	// Release destroys the device.
	Release()
}

// Buffer is a native buffer.
type Buffer interface {
	// Label returns the debug label.
	Label() string
	// Size returns the size in bytes.
	Size() uint64
	// Heap returns the heap the buffer lives in.
	Heap() HeapType
	// Mapped returns the persistently mapped CPU bytes of an upload or readback buffer, nil
	// for default heap buffers.
	Mapped() []byte
	// Release destroys the buffer.
	Release()
}

// Texture is a native texture.
type Texture interface {
	// Label returns the debug label.
	Label() string
	// Desc returns the description the texture was created with.
	Desc() TextureDesc
	// Release destroys the texture.
	Release()
}

// RootSignature is a validated root signature with its native layout.
type RootSignature interface {
	// Desc returns the description the signature was created with.
	Desc() RootSignatureDesc
	// Release destroys the native layout.
	Release()
}

// PipelineState is a compiled graphics or compute pipeline.
type PipelineState interface {
	// Label returns the debug label.
	Label() string
	// Compute reports whether this is a compute pipeline.
	Compute() bool
	// RootSignature returns the root signature the pipeline was created against.
	RootSignature() RootSignature
	// Release destroys the pipeline.
	Release()
}

// BufferDesc describes a committed buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Heap  HeapType
	Flags ResourceFlags
}

// TextureDimension distinguishes plain 2D textures from cube textures.
type TextureDimension int

const (
	TextureDimension2D TextureDimension = iota
	TextureDimensionCube
)

// TextureDesc describes a committed texture.
type TextureDesc struct {
	Label       string
	Width       uint32
	Height      uint32
	ArrayLayers uint32
	MipLevels   uint32
	SampleCount uint32
	Format      Format
	Dimension   TextureDimension
	Flags       ResourceFlags
	// ClearColor / ClearDepth are the optimized clear values.
	ClearColor Color
	ClearDepth float32
}

// Layers returns the number of array layers, 6 for cube textures.
func (d TextureDesc) Layers() uint32 {
	if d.Dimension == TextureDimensionCube {
		return 6
	}
	if d.ArrayLayers == 0 {
		return 1
	}
	return d.ArrayLayers
}

// FilterMode is a sampler filter.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterPoint
)

// AddressMode is a sampler address mode.
type AddressMode int

const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressMirror
)

// ComparisonFunc is a depth or sampler comparison function.
type ComparisonFunc int

const (
	ComparisonNever ComparisonFunc = iota
	ComparisonLess
	ComparisonLessEqual
	ComparisonGreater
	ComparisonAlways
)

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Filter     FilterMode
	Address    AddressMode
	Comparison ComparisonFunc
	// Compare turns the sampler into a comparison sampler using Comparison.
	Compare       bool
	MaxAnisotropy uint16
}
