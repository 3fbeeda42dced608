// pre_processor.go implements the WGSL pre-processor. It replaces @srender: annotations with
// the shared struct sources and generated register declarations, and collects the register
// declarations so shaders can be checked against the root signature they run with.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// registryEntry pairs an embedded WGSL struct source with its WGSL type name.
type registryEntry struct {
	// Source is the WGSL struct definition injected by include annotations.
	Source string

	// Type is the WGSL type name emitted in register declarations.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps struct keys to their WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// declarations accumulates register annotations during a Process call.
	declarations []Annotation
}

// PreProcessor expands @srender: annotations in WGSL source.
type PreProcessor interface {
	// Process replaces include annotations with struct sources and register annotations with
	// @group/@binding declarations. The declarations list is reset on every call.
	//
	// Parameters:
	//   - source: the annotated WGSL source
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - error: an error if any annotation is malformed
	Process(source string) (string, error)

	// Declarations returns the register annotations of the most recent Process call in
	// source order.
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with every shared struct registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgModelViewProjection: {Source: GPUModelViewProjectionSource, Type: "ModelViewProjection"},
			AnnotationArgBaseVertexData:      {Source: GPUBaseVertexDataSource, Type: "BaseVertexData"},
			AnnotationArgTextureMetadata:     {Source: GPUTextureMetadataSource, Type: "TextureMetadata"},
			AnnotationArgVertexSkinningData:  {Source: GPUVertexSkinningDataSource, Type: "VertexSkinningData"},
			AnnotationArgSkinningConstants:   {Source: GPUSkinningConstantsSource, Type: "SkinningConstants"},
			AnnotationArgShadowConstants:     {Source: GPUShadowConstantsSource, Type: "ShadowConstants"},
			AnnotationArgTempVertex:          {Source: GPUTempVertexSource, Type: "TempVertex"},
			AnnotationArgTempConstants:       {Source: GPUTempConstantsSource, Type: "TempConstants"},
			AnnotationArgUIVertex:            {Source: GPUUIVertexSource, Type: "UIVertex"},
			AnnotationArgUIConstants:         {Source: GPUUIConstantsSource, Type: "UIConstants"},
		},
	}
}

// resolveType maps a register annotation type argument to WGSL. Struct keys and array<key>
// resolve through the registry, anything else is taken as a WGSL type.
func (p *preProcessor) resolveType(arg AnnotationArg) string {
	if entry, ok := p.structRegistry[arg]; ok {
		return entry.Type
	}
	if inner, ok := strings.CutPrefix(string(arg), "array<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		if entry, ok := p.structRegistry[AnnotationArg(inner)]; ok {
			return fmt.Sprintf("array<%s>", entry.Type)
		}
	}
	return string(arg)
}

// addressSpace returns the var qualifier of a register of the given class holding wgslType.
func addressSpace(class gpu.RegisterClass, wgslType string) string {
	switch class {
	case gpu.RegisterClassCBV:
		return "var<uniform>"
	case gpu.RegisterClassUAV:
		return "var<storage, read_write>"
	case gpu.RegisterClassSRV:
		if strings.HasPrefix(wgslType, "texture_") {
			return "var"
		}
		return "var<storage, read>"
	default:
		return "var"
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			out = append(out, p.structRegistry[a.Args[0]].Source)
		case AnnotationTypeRegister:
			if a.Register.Class == gpu.RegisterClassSampler && !strings.HasPrefix(string(a.Args[1]), "sampler") {
				return "", fmt.Errorf("line %d: sampler register %v must declare a sampler type, got %q", a.Line, *a.Register, a.Args[1])
			}
			wgslType := p.resolveType(a.Args[1])
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				a.Register.Space, gpu.Binding(a.Register.Class, a.Register.Register),
				addressSpace(a.Register.Class, wgslType), a.Args[0], wgslType))
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
