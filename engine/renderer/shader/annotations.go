// annotations.go defines the annotation types and parser of the WGSL pre-processor.
// Annotations are single-line WGSL comments prefixed with @srender: that inject the shared
// struct definitions and declare resources by shader register instead of by bind group slot.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// annotationPrefix marks an annotation inside a WGSL line comment.
const annotationPrefix = "@srender:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a shared struct at the annotation site.
	// It produces no declaration.
	//
	// Syntax: //@srender:include <struct_type>
	//
	// Example: //@srender:include model_view_projection
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeRegister generates the @group/@binding declaration of a register. The
	// register space becomes the group and the register class and index select the binding.
	// The address space follows from the class: b registers are uniforms, u registers are
	// read-write storage, t registers are read-only storage unless the type is a texture.
	//
	// Syntax: //@srender:register <register> <space> <var_name> <type>
	//
	// Examples:
	//   //@srender:register b0 0 mvp model_view_projection
	//   //@srender:register t0 3 diffuse texture_2d<f32>
	//   //@srender:register t2 0 weights array<vertex_skinning_data>
	AnnotationTypeRegister AnnotationType = "register"
)

// Annotation is one parsed @srender: annotation.
type Annotation struct {
	// Type identifies the annotation.
	Type AnnotationType

	// Args holds the arguments:
	//   - include:  [0] = struct type key
	//   - register: [0] = variable name, [1] = type (struct key, array<struct key> or a WGSL type)
	Args []AnnotationArg

	// Line is the 1-based source line of the annotation.
	Line int

	// Register is the declared register of a register annotation. Nil for includes.
	Register *gpu.RegisterKey
}

// AnnotationArg is an annotation argument.
type AnnotationArg string

// Struct type arguments. Each names a shared struct whose WGSL source lives in assets/ next to
// its Go counterpart in gpu_types.go.
const (
	AnnotationArgModelViewProjection AnnotationArg = "model_view_projection"
	AnnotationArgBaseVertexData      AnnotationArg = "base_vertex_data"
	AnnotationArgTextureMetadata     AnnotationArg = "texture_metadata"
	AnnotationArgVertexSkinningData  AnnotationArg = "vertex_skinning_data"
	AnnotationArgSkinningConstants   AnnotationArg = "skinning_constants"
	AnnotationArgShadowConstants     AnnotationArg = "shadow_constants"
	AnnotationArgTempVertex          AnnotationArg = "temp_vertex"
	AnnotationArgTempConstants       AnnotationArg = "temp_constants"
	AnnotationArgUIVertex            AnnotationArg = "ui_vertex"
	AnnotationArgUIConstants         AnnotationArg = "ui_constants"
)

// validStructTypes lists the struct keys accepted by include annotations. Each has an entry in
// the pre-processor's struct registry.
var validStructTypes = []AnnotationArg{
	AnnotationArgModelViewProjection,
	AnnotationArgBaseVertexData,
	AnnotationArgTextureMetadata,
	AnnotationArgVertexSkinningData,
	AnnotationArgSkinningConstants,
	AnnotationArgShadowConstants,
	AnnotationArgTempVertex,
	AnnotationArgTempConstants,
	AnnotationArgUIVertex,
	AnnotationArgUIConstants,
}

// registerClasses maps register prefixes to register classes.
var registerClasses = map[byte]gpu.RegisterClass{
	'b': gpu.RegisterClassCBV,
	't': gpu.RegisterClassSRV,
	'u': gpu.RegisterClassUAV,
	's': gpu.RegisterClassSampler,
}

// parseRegister parses an HLSL-style register name such as "t3".
func parseRegister(s string) (gpu.RegisterClass, uint32, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("register %q is too short", s)
	}
	class, ok := registerClasses[s[0]]
	if !ok {
		return 0, 0, fmt.Errorf("register %q has unknown class %q", s, s[0])
	}
	n, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("register %q: %v", s, err)
	}
	if n >= gpu.RegisterSlots {
		return 0, 0, fmt.Errorf("register %q exceeds %d slots", s, gpu.RegisterSlots)
	}
	return class, uint32(n), nil
}

// parseAnnotation parses one line of WGSL source. Lines without the annotation prefix return
// nil and no error.
//
// Parameters:
//   - line: the raw source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a description of a malformed annotation
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @srender annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @srender include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @srender include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeRegister):
		if len(args) != 5 {
			return nil, fmt.Errorf("line %d: @srender register annotation requires four arguments (register, space, variable name, type)", lineNum)
		}
		class, reg, err := parseRegister(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNum, err)
		}
		space, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid register space %q: %v", lineNum, args[2], err)
		}
		if space >= gpu.MaxBindGroups {
			return nil, fmt.Errorf("line %d: register space %d exceeds %d bind groups", lineNum, space, gpu.MaxBindGroups)
		}
		return &Annotation{
			Type:     AnnotationTypeRegister,
			Args:     []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4])},
			Line:     lineNum,
			Register: &gpu.RegisterKey{Class: class, Register: reg, Space: uint32(space)},
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @srender annotation type %q", lineNum, args[0])
	}
}
