package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// wgslVertexFormats maps WGSL vertex input types to the vertex formats that may feed them.
var wgslVertexFormats = map[string][]gpu.VertexFormat{
	"f32":       {gpu.VertexFormatFloat32},
	"vec2f":     {gpu.VertexFormatFloat32x2},
	"vec2<f32>": {gpu.VertexFormatFloat32x2},
	"vec3f":     {gpu.VertexFormatFloat32x3},
	"vec3<f32>": {gpu.VertexFormatFloat32x3},
	"vec4f":     {gpu.VertexFormatFloat32x4, gpu.VertexFormatUnorm8x4},
	"vec4<f32>": {gpu.VertexFormatFloat32x4, gpu.VertexFormatUnorm8x4},
	"vec4u":     {gpu.VertexFormatUint32x4},
	"vec4<u32>": {gpu.VertexFormatUint32x4},
}

// wgslTextureDimensions maps WGSL sampled texture base names to view dimensions.
var wgslTextureDimensions = map[string]gpu.ViewDimension{
	"texture_2d":             gpu.ViewDimensionTexture2D,
	"texture_2d_array":       gpu.ViewDimensionTexture2DArray,
	"texture_cube":           gpu.ViewDimensionTextureCube,
	"texture_depth_2d":       gpu.ViewDimensionTexture2D,
	"texture_depth_2d_array": gpu.ViewDimensionTexture2DArray,
	"texture_depth_cube":     gpu.ViewDimensionTextureCube,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// computeEntryRegex matches @compute functions and captures the entry point name
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindingDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> mvp: ModelViewProjection;
	// or handle types: @group(3) @binding(16) var diffuse: texture_2d<f32>;
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseVertexInputs extracts the @location fields of every vertex input struct in WGSL
// source. A vertex input struct has at least one @location field and no @builtin field, which
// separates it from stage output structs. Fields are ordered by location.
//
// Parameters:
//   - source: the WGSL source code string
//
// Returns:
//   - []VertexInput: the vertex inputs
func parseVertexInputs(source string) []VertexInput {
	var inputs []VertexInput
	for _, ps := range parseStructBlocks(stripComments(source)) {
		if !isVertexInputStruct(ps) {
			continue
		}
		for _, f := range ps.fields {
			if f.location < 0 {
				continue
			}
			inputs = append(inputs, VertexInput{Location: uint32(f.location), Name: f.name, Type: f.typeName})
		}
	}
	sort.Slice(inputs, func(i, j int) bool {
		return inputs[i].Location < inputs[j].Location
	})
	return inputs
}

// parseResourceBindings extracts all @group(N) @binding(M) resource declarations from WGSL
// source, sorted by group then binding. Buffer bindings carry the byte size of their type
// so constant blocks can be checked against the root signature.
//
// Parameters:
//   - source: the WGSL source code string
//
// Returns:
//   - []ResourceBinding: the declarations
func parseResourceBindings(source string) []ResourceBinding {
	cleaned := stripComments(source)
	structSizes := computeStructSizes(parseStructBlocks(cleaned))

	var out []ResourceBinding
	for _, match := range bindingDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		b := classifyResource(strings.TrimSpace(match[3]), strings.TrimSpace(match[5]))
		b.Group = uint32(group)
		b.Binding = uint32(binding)
		b.Name = strings.TrimSpace(match[4])
		if b.Kind == ResourceUniform || b.Kind == ResourceStorageRead || b.Kind == ResourceStorageReadWrite {
			if layout, ok := resolveTypeLayout(b.Type, structSizes); ok {
				b.MinBindingSize = layout.size
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1 per the WGSL specification.
// Returns [1, 1, 1] if no @workgroup_size annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	cleaned := stripComments(source)
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(cleaned)
	if match == nil {
		return result
	}

	for i, dim := range match[1:] {
		if v, err := strconv.ParseUint(dim, 10, 32); err == nil && v > 0 {
			result[i] = uint32(v)
		}
	}

	return result
}

// parseEntryPoint extracts the entry point function name for the given shader type
// from WGSL source. Returns an empty string if no matching entry point annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - shaderType: the shader type to search for (ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute)
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, shaderType ShaderType) string {
	cleaned := stripComments(source)

	var re *regexp.Regexp
	switch shaderType {
	case ShaderTypeVertex:
		re = vertexEntryRegex
	case ShaderTypeFragment:
		re = fragmentEntryRegex
	case ShaderTypeCompute:
		re = computeEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(cleaned); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		name := match[1]
		body := match[2]

		fields := parseStructFields(body)
		structs = append(structs, parsedStruct{
			name:   name,
			fields: fields,
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration
//
// Returns:
//   - []parsedField: all fields found in the struct body
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var field parsedField

		// check for @builtin
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}

		// check for @location(N)
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			loc, err := strconv.Atoi(locMatch[1])
			if err == nil {
				field.location = loc
			}
		} else {
			field.location = -1
		}

		// extract field name and type
		if fm := fieldRegex.FindStringSubmatch(line); fm != nil {
			field.name = fm[1]
			field.typeName = strings.TrimSpace(fm[2])
		} else {
			continue
		}

		fields = append(fields, field)
	}

	return fields
}
