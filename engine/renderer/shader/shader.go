package shader

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// ShaderType is a shader pipeline stage.
type ShaderType int

const (
	ShaderTypeVertex ShaderType = iota
	ShaderTypeFragment
	ShaderTypeCompute
)

func (t ShaderType) String() string {
	return [...]string{"vertex", "fragment", "compute"}[t]
}

// ErrBindingMismatch is returned when a shader's declarations disagree with the root
// signature or vertex layout it is paired with.
var ErrBindingMismatch = errors.New("shader: binding mismatch")

// shader is the implementation of the Shader interface.
type shader struct {
	name          string
	source        string
	entryPoints   map[ShaderType]string
	bindings      []ResourceBinding
	vertexInputs  []VertexInput
	workGroupSize [3]uint32
	declarations  []Annotation
	binary        []byte
}

// Shader is one pre-processed WGSL program with its reflected interface. A program may hold
// several stages, each found by its @vertex, @fragment or @compute entry point.
type Shader interface {
	// Name returns the program name, the file name without extension.
	Name() string

	// Source returns the expanded WGSL source.
	Source() string

	// EntryPoint returns the entry function of a stage.
	//
	// Parameters:
	//   - t: the stage
	//
	// Returns:
	//   - string: the function name, empty if the program has no such stage
	EntryPoint(t ShaderType) string

	// Bindings returns the reflected @group/@binding declarations sorted by group and binding.
	Bindings() []ResourceBinding

	// VertexInputs returns the @location fields of the vertex input structs ordered by location.
	VertexInputs() []VertexInput

	// WorkgroupSize returns the compute workgroup size, [1, 1, 1] for graphics programs.
	WorkgroupSize() [3]uint32

	// Declarations returns the register annotations found while pre-processing.
	Declarations() []Annotation

	// Binary returns the compiled SPIR-V of the program, nil when the WGSL source is used.
	Binary() []byte

	// SetBinary attaches a compiled build output.
	SetBinary(b []byte)

	// Code returns the stage description handed to pipeline creation.
	//
	// Parameters:
	//   - t: the stage
	//
	// Returns:
	//   - gpu.ShaderCode: the stage, empty if the program has no such stage
	Code(t ShaderType) gpu.ShaderCode

	// ValidateRootSignature checks every reflected binding against a root signature: the
	// register must be declared, its class must match the resource kind, constant blocks must
	// be large enough, and texture and sampler bindings must match the declared view.
	//
	// Returns:
	//   - error: an ErrBindingMismatch wrapped description of every problem found
	ValidateRootSignature(desc gpu.RootSignatureDesc) error

	// ValidateInputLayout checks that every vertex input location is fed by an attribute of a
	// compatible format.
	//
	// Returns:
	//   - error: an ErrBindingMismatch wrapped description of every problem found
	ValidateInputLayout(layouts []gpu.VertexBufferLayout) error
}

var _ Shader = &shader{}

// NewShader pre-processes annotated WGSL source and reflects its interface.
//
// Parameters:
//   - name: the program name
//   - source: the annotated WGSL source
//
// Returns:
//   - Shader: the program
//   - error: a pre-processing error, or an error when the program has no entry point
func NewShader(name, source string) (Shader, error) {
	pp := NewPreProcessor()
	expanded, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	s := &shader{
		name:          name,
		source:        expanded,
		entryPoints:   make(map[ShaderType]string),
		bindings:      parseResourceBindings(expanded),
		vertexInputs:  parseVertexInputs(expanded),
		workGroupSize: parseWorkgroupSize(expanded),
		declarations:  slices.Clone(pp.Declarations()),
	}
	for _, t := range []ShaderType{ShaderTypeVertex, ShaderTypeFragment, ShaderTypeCompute} {
		if ep := parseEntryPoint(expanded, t); ep != "" {
			s.entryPoints[t] = ep
		}
	}
	if len(s.entryPoints) == 0 {
		return nil, fmt.Errorf("shader %q: no @vertex, @fragment or @compute entry point", name)
	}
	return s, nil
}

func (s *shader) Name() string { return s.name }
func (s *shader) Source() string { return s.source }
func (s *shader) EntryPoint(t ShaderType) string { return s.entryPoints[t] }
func (s *shader) Bindings() []ResourceBinding { return s.bindings }
func (s *shader) VertexInputs() []VertexInput { return s.vertexInputs }
func (s *shader) WorkgroupSize() [3]uint32 { return s.workGroupSize }
func (s *shader) Declarations() []Annotation { return s.declarations }
func (s *shader) Binary() []byte { return s.binary }
func (s *shader) SetBinary(b []byte) { s.binary = b }

func (s *shader) Code(t ShaderType) gpu.ShaderCode {
	ep, ok := s.entryPoints[t]
	if !ok {
		return gpu.ShaderCode{}
	}
	return gpu.ShaderCode{
		Name:       s.name + ":" + t.String(),
		Source:     s.source,
		EntryPoint: ep,
		Binary:     s.binary,
	}
}

// registerInfo is what a root signature declares for one register.
type registerInfo struct {
	param      *gpu.RootParameter
	rng        *gpu.DescriptorRange
	sampler    *gpu.StaticSampler
	visibility gpu.ShaderVisibility
}

// lookupRegister finds the root parameter, table range or static sampler declaring key.
func lookupRegister(desc gpu.RootSignatureDesc, key gpu.RegisterKey) (registerInfo, bool) {
	for i := range desc.Parameters {
		p := &desc.Parameters[i]
		if p.Kind != gpu.RootParameterDescriptorTable {
			if p.Class() == key.Class && p.ShaderRegister == key.Register && p.RegisterSpace == key.Space {
				return registerInfo{param: p, visibility: p.Visibility}, true
			}
			continue
		}
		for j := range p.Ranges {
			r := &p.Ranges[j]
			if r.Class == key.Class && r.RegisterSpace == key.Space && key.Register >= r.BaseShaderRegister && key.Register < r.BaseShaderRegister+r.NumDescriptors {
				return registerInfo{param: p, rng: r, visibility: p.Visibility}, true
			}
		}
	}
	for i := range desc.StaticSamplers {
		ss := &desc.StaticSamplers[i]
		if key.Class == gpu.RegisterClassSampler && ss.ShaderRegister == key.Register && ss.RegisterSpace == key.Space {
			return registerInfo{sampler: ss, visibility: ss.Visibility}, true
		}
	}
	return registerInfo{}, false
}

func (s *shader) ValidateRootSignature(desc gpu.RootSignatureDesc) error {
	var errs []error
	_, compute := s.entryPoints[ShaderTypeCompute]
	for _, b := range s.bindings {
		key, ok := b.Register()
		if !ok {
			errs = append(errs, fmt.Errorf("%v is outside every register range", b))
			continue
		}
		if key.Class != b.Kind.Class() {
			errs = append(errs, fmt.Errorf("%v binds a %v resource in a %s register", b, b.Kind, key.Class.Prefix()))
			continue
		}
		info, ok := lookupRegister(desc, key)
		if !ok {
			errs = append(errs, fmt.Errorf("%v: register %v is not declared by root signature %q", b, key, desc.Label))
			continue
		}
		switch {
		case compute && info.visibility != gpu.ShaderVisibilityAll && info.visibility != gpu.ShaderVisibilityCompute:
			errs = append(errs, fmt.Errorf("%v: register %v is not visible to compute", b, key))
		case !compute && info.visibility == gpu.ShaderVisibilityCompute:
			errs = append(errs, fmt.Errorf("%v: register %v is only visible to compute", b, key))
		}
		switch {
		case info.param != nil && info.param.Kind == gpu.RootParameterConstants:
			if have := uint64(info.param.Num32BitValues) * 4; b.MinBindingSize > have {
				errs = append(errs, fmt.Errorf("%v: %d bytes do not fit %d root constants", b, b.MinBindingSize, info.param.Num32BitValues))
			}
		case info.rng != nil && (b.Kind == ResourceTexture || b.Kind == ResourceDepthTexture):
			if info.rng.Dimension != b.Dimension {
				errs = append(errs, fmt.Errorf("%v: table range declares view dimension %d", b, info.rng.Dimension))
			}
			if info.rng.Depth != (b.Kind == ResourceDepthTexture) {
				errs = append(errs, fmt.Errorf("%v: depth sampling disagrees with the table range", b))
			}
		case info.rng != nil && b.Kind == ResourceStorageRead && info.rng.Dimension != gpu.ViewDimensionBuffer:
			errs = append(errs, fmt.Errorf("%v: table range declares a texture view", b))
		case info.sampler != nil:
			if info.sampler.Desc.Compare != (b.Kind == ResourceComparisonSampler) {
				errs = append(errs, fmt.Errorf("%v: comparison mode disagrees with the static sampler", b))
			}
		case info.rng != nil && b.Kind == ResourceComparisonSampler != info.rng.Comparison:
			errs = append(errs, fmt.Errorf("%v: comparison mode disagrees with the table range", b))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shader %q against root signature %q: %w: %w", s.name, desc.Label, ErrBindingMismatch, errors.Join(errs...))
	}
	return nil
}

func (s *shader) ValidateInputLayout(layouts []gpu.VertexBufferLayout) error {
	formats := make(map[uint32]gpu.VertexFormat)
	for _, l := range layouts {
		for _, a := range l.Attributes {
			formats[a.ShaderLocation] = a.Format
		}
	}
	var errs []error
	for _, in := range s.vertexInputs {
		f, ok := formats[in.Location]
		if !ok {
			errs = append(errs, fmt.Errorf("@location(%d) %s is not fed by the input layout", in.Location, in.Name))
			continue
		}
		if !slices.Contains(wgslVertexFormats[in.Type], f) {
			errs = append(errs, fmt.Errorf("@location(%d) %s: %s cannot be fed by vertex format %d", in.Location, in.Name, in.Type, f))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shader %q input layout: %w: %w", s.name, ErrBindingMismatch, errors.Join(errs...))
	}
	return nil
}
