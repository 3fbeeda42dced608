package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// ErrNotBuilt is returned when a pipeline is used before Build succeeded.
var ErrNotBuilt = errors.New("pipeline: not built")

// pipeline is the implementation of the Pipeline interface.
// It holds the root signature and pipeline state object for both render and compute pipelines.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for logging and lookups
	pipelineKey string

	// the following shader references are used for pipeline creation, they are required to be set before building a pipeline.

	vertexShader, fragmentShader, computeShader shader.Shader

	// rootSignatureDesc is the layout every shader stage is validated against
	rootSignatureDesc gpu.RootSignatureDesc
	rootSignature     gpu.RootSignature
	state             gpu.PipelineState

	// The following properties configure render pipelines during creation and can be toggled/set with the builder options.
	// Compute pipelines still set defaults but do not utilize them.

	inputLayout         []gpu.VertexBufferLayout
	depthTestEnabled    bool
	depthWriteEnabled   bool
	depthFunc           gpu.ComparisonFunc
	depthBias           int32
	depthBiasSlopeScale float32
	blendEnabled        bool
	cullMode            gpu.CullMode
	topology            gpu.PrimitiveTopology
	frontCCW            bool
	rtvFormats          []gpu.Format
	dsvFormat           gpu.Format
}

// Pipeline is a pipeline state object together with the root signature it was created
// against. A render pipeline has a vertex and an optional fragment stage, a compute pipeline a
// single compute stage. It holds all configuration state required for pipeline creation
// including depth, blend, cull, and topology settings, so it can be rebuilt when its shaders
// change.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// State returns the compiled pipeline state, nil before Build.
	State() gpu.PipelineState

	// RootSignature returns the root signature, nil before Build.
	RootSignature() gpu.RootSignature

	// RootSignatureDesc returns the layout the shaders are validated against.
	RootSignatureDesc() gpu.RootSignatureDesc

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth testing is enabled, false otherwise
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth writing is enabled, false otherwise
	DepthWriteEnabled() bool

	// DepthBias returns the depth bias value configured for this pipeline.
	//
	// Returns:
	//   - int32: the depth bias value for this pipeline
	DepthBias() int32

	// DepthBiasSlopeScale returns the depth bias slope scale configured for this pipeline.
	//
	// Returns:
	//   - float32: the depth bias slope scale for this pipeline
	DepthBiasSlopeScale() float32

	// BlendEnabled returns whether alpha blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - gpu.CullMode: the cull mode for this pipeline
	CullMode() gpu.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - gpu.PrimitiveTopology: the primitive topology for this pipeline
	Topology() gpu.PrimitiveTopology

	// FrontCCW reports whether counter-clockwise triangles are front facing.
	FrontCCW() bool

	// GraphicsDesc returns the description Build creates a render pipeline from.
	//
	// Returns:
	//   - gpu.GraphicsPipelineDesc: the description, with the root signature if built
	GraphicsDesc() gpu.GraphicsPipelineDesc

	// Build validates the shaders against the root signature and input layout, creates the
	// root signature on first use and creates the pipeline state. A previous pipeline state is
	// released only once the new one exists.
	//
	// Parameters:
	//   - dev: the device
	//
	// Returns:
	//   - error: an shader.ErrBindingMismatch or gpu.ErrNativeAPI wrapped failure
	Build(dev gpu.Device) error

	// Rebuild fetches every stage's program from lib again and rebuilds the pipeline state. On
	// failure the previous shaders and pipeline state are kept.
	//
	// Parameters:
	//   - dev: the device
	//   - lib: the shader library the programs are loaded from
	//
	// Returns:
	//   - error: a shader load or Build failure
	Rebuild(dev gpu.Device, lib shader.Library) error

	// Bind sets the pipeline state and root signature on list.
	//
	// Parameters:
	//   - list: a recording direct command list
	Bind(list *gpu.CommandList)

	// Release destroys the pipeline state and root signature.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
// The pipeline is not usable until Build has succeeded.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - rootSignature: the root signature layout
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, rootSignature gpu.RootSignatureDesc, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		rootSignatureDesc: rootSignature,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthFunc:         gpu.ComparisonLess,
		cullMode:          gpu.CullNone,
		topology:          gpu.TopologyTriangleList,
		frontCCW:          true,
		dsvFormat:         gpu.FormatUnknown,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) State() gpu.PipelineState {
	return p.state
}

func (p *pipeline) RootSignature() gpu.RootSignature {
	return p.rootSignature
}

func (p *pipeline) RootSignatureDesc() gpu.RootSignatureDesc {
	return p.rootSignatureDesc
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthBias() int32 {
	return p.depthBias
}

func (p *pipeline) DepthBiasSlopeScale() float32 {
	return p.depthBiasSlopeScale
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() gpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() gpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontCCW() bool {
	return p.frontCCW
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) GraphicsDesc() gpu.GraphicsPipelineDesc {
	desc := gpu.GraphicsPipelineDesc{
		Label:         p.pipelineKey,
		RootSignature: p.rootSignature,
		InputLayout:   p.inputLayout,
		Topology:      p.topology,
		Cull:          p.cullMode,
		FrontCCW:      p.frontCCW,
		DepthStencil: gpu.DepthStencilState{
			DepthEnable:    p.depthTestEnabled,
			DepthWrite:     p.depthWriteEnabled,
			DepthFunc:      p.depthFunc,
			DepthBias:      p.depthBias,
			SlopeScaleBias: p.depthBiasSlopeScale,
		},
		RTVFormats:  p.rtvFormats,
		DSVFormat:   p.dsvFormat,
		SampleCount: 1,
	}
	if p.blendEnabled {
		desc.Blend = gpu.BlendAlpha
	}
	if p.vertexShader != nil {
		desc.VS = p.vertexShader.Code(shader.ShaderTypeVertex)
	}
	if p.fragmentShader != nil {
		desc.PS = p.fragmentShader.Code(shader.ShaderTypeFragment)
	}
	return desc
}

// validate checks every set stage against the root signature and the vertex stage against the
// input layout.
func (p *pipeline) validate(vs, fs, cs shader.Shader) error {
	var errs []error
	switch p.pipelineType {
	case PipelineTypeRender:
		if vs == nil {
			return fmt.Errorf("pipeline %q: render pipeline without a vertex shader", p.pipelineKey)
		}
		errs = append(errs, vs.ValidateRootSignature(p.rootSignatureDesc), vs.ValidateInputLayout(p.inputLayout))
		if fs != nil && fs != vs {
			errs = append(errs, fs.ValidateRootSignature(p.rootSignatureDesc))
		}
	case PipelineTypeCompute:
		if cs == nil {
			return fmt.Errorf("pipeline %q: compute pipeline without a compute shader", p.pipelineKey)
		}
		errs = append(errs, cs.ValidateRootSignature(p.rootSignatureDesc))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
	}
	return nil
}

func (p *pipeline) Build(dev gpu.Device) error {
	return p.build(dev, p.vertexShader, p.fragmentShader, p.computeShader)
}

func (p *pipeline) build(dev gpu.Device, vs, fs, cs shader.Shader) error {
	if err := p.validate(vs, fs, cs); err != nil {
		return err
	}
	if p.rootSignature == nil {
		rs, err := dev.CreateRootSignature(p.rootSignatureDesc)
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
		}
		p.rootSignature = rs
	}

	var state gpu.PipelineState
	var err error
	switch p.pipelineType {
	case PipelineTypeRender:
		prev := [2]shader.Shader{p.vertexShader, p.fragmentShader}
		p.vertexShader, p.fragmentShader = vs, fs
		state, err = dev.CreateGraphicsPipelineState(p.GraphicsDesc())
		if err != nil {
			p.vertexShader, p.fragmentShader = prev[0], prev[1]
		}
	case PipelineTypeCompute:
		state, err = dev.CreateComputePipelineState(gpu.ComputePipelineDesc{
			Label:         p.pipelineKey,
			RootSignature: p.rootSignature,
			CS:            cs.Code(shader.ShaderTypeCompute),
		})
		if err == nil {
			p.computeShader = cs
		}
	}
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
	}
	if p.state != nil {
		p.state.Release()
	}
	p.state = state
	return nil
}

func (p *pipeline) Rebuild(dev gpu.Device, lib shader.Library) error {
	reload := func(s shader.Shader) (shader.Shader, error) {
		if s == nil {
			return nil, nil
		}
		return lib.Get(s.Name())
	}
	vs, err := reload(p.vertexShader)
	if err != nil {
		return err
	}
	fs := vs
	if p.fragmentShader != p.vertexShader || p.fragmentShader == nil {
		if fs, err = reload(p.fragmentShader); err != nil {
			return err
		}
	}
	cs, err := reload(p.computeShader)
	if err != nil {
		return err
	}
	return p.build(dev, vs, fs, cs)
}

func (p *pipeline) Bind(list *gpu.CommandList) {
	if p.state == nil {
		panic(fmt.Sprintf("pipeline %q: %v", p.pipelineKey, ErrNotBuilt))
	}
	list.SetPipelineState(p.state)
	if p.pipelineType == PipelineTypeCompute {
		list.SetComputeRootSignature(p.rootSignature)
		return
	}
	list.SetGraphicsRootSignature(p.rootSignature)
}

func (p *pipeline) Release() {
	if p.state != nil {
		p.state.Release()
		p.state = nil
	}
	if p.rootSignature != nil {
		p.rootSignature.Release()
		p.rootSignature = nil
	}
}
