package gpu

// ShaderCode is one shader stage entry point.
type ShaderCode struct {
	// Name identifies the shader for logging and caching.
	Name string
	// Source is the WGSL source the stage is compiled from.
	Source string
	// EntryPoint is the stage's entry function.
	EntryPoint string
	// Binary is the optional precompiled build output of Source.
	Binary []byte
}

// Empty reports whether no stage is set.
func (s ShaderCode) Empty() bool {
	return s.Source == "" && len(s.Binary) == 0
}

// VertexStepMode selects per-vertex or per-instance attribute stepping.
type VertexStepMode int

const (
	VertexStepVertex VertexStepMode = iota
	VertexStepInstance
)

// VertexAttribute is one input element of a vertex buffer layout.
type VertexAttribute struct {
	Format         VertexFormat
	Offset         uint32
	ShaderLocation uint32
}

// VertexBufferLayout describes the stride and attributes of one vertex buffer slot.
type VertexBufferLayout struct {
	Stride     uint32
	StepMode   VertexStepMode
	Attributes []VertexAttribute
}

// PrimitiveTopology is the input assembler topology.
type PrimitiveTopology int

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyLineList
	TopologyTriangleStrip
)

// CullMode selects which faces are culled.
type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// BlendMode selects the color blend equation of the render targets.
type BlendMode int

const (
	BlendNone BlendMode = iota
	// BlendAlpha is premultiplied-free source-over blending.
	BlendAlpha
)

// DepthStencilState configures depth testing.
type DepthStencilState struct {
	DepthEnable    bool
	DepthWrite     bool
	DepthFunc      ComparisonFunc
	DepthBias      int32
	SlopeScaleBias float32
}

// GraphicsPipelineDesc describes a graphics pipeline state object.
type GraphicsPipelineDesc struct {
	Label         string
	RootSignature RootSignature
	VS            ShaderCode
	// PS may be empty for depth-only pipelines.
	PS           ShaderCode
	InputLayout  []VertexBufferLayout
	Topology     PrimitiveTopology
	Cull         CullMode
	FrontCCW     bool
	DepthStencil DepthStencilState
	Blend        BlendMode
	RTVFormats   []Format
	DSVFormat    Format
	SampleCount  uint32
}

// ComputePipelineDesc describes a compute pipeline state object.
type ComputePipelineDesc struct {
	Label         string
	RootSignature RootSignature
	CS            ShaderCode
}
