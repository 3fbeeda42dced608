package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/srender/common"
)

// wgslScalarSizes holds the byte size of every host-shareable WGSL scalar. Scalars align to
// their size.
var wgslScalarSizes = map[string]uint64{"f32": 4, "i32": 4, "u32": 4, "f16": 2, "bool": 4}

// wgslShorthandScalars maps the suffix of the vecNx / matCxRx aliases to their scalar.
var wgslShorthandScalars = map[byte]string{'f': "f32", 'i': "i32", 'u': "u32", 'h': "f16"}

// vectorLayout returns the layout of an n-component vector of a scalar of the given size.
// Three-component vectors align like four-component ones.
func vectorLayout(n, scalar uint64) wgslTypeLayout {
	align := scalar * n
	if n == 3 {
		align = scalar * 4
	}
	return wgslTypeLayout{size: scalar * n, align: align}
}

// primitiveLayout resolves scalars, vectors, matrices and atomics in both the generic
// (vec3<f32>) and the shorthand (vec3f) spelling.
//
// Parameters:
//   - typeName: the WGSL type name
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false if typeName is not a primitive
func primitiveLayout(typeName string) (wgslTypeLayout, bool) {
	if size, ok := wgslScalarSizes[typeName]; ok {
		return wgslTypeLayout{size: size, align: size}, true
	}
	base, param := splitTypeParams(typeName)
	if param == "" && len(base) > 1 {
		// vec3f, mat4x4f
		if scalar, ok := wgslShorthandScalars[base[len(base)-1]]; ok && (strings.HasPrefix(base, "vec") || strings.HasPrefix(base, "mat")) {
			base, param = base[:len(base)-1], scalar
		}
	}
	scalar, ok := wgslScalarSizes[param]
	if !ok {
		return wgslTypeLayout{}, false
	}
	switch {
	case base == "atomic":
		return wgslTypeLayout{size: scalar, align: scalar}, true
	case len(base) == 4 && strings.HasPrefix(base, "vec"):
		n := uint64(base[3] - '0')
		if n < 2 || n > 4 {
			return wgslTypeLayout{}, false
		}
		return vectorLayout(n, scalar), true
	case len(base) == 6 && strings.HasPrefix(base, "mat") && base[4] == 'x':
		cols, rows := uint64(base[3]-'0'), uint64(base[5]-'0')
		if cols < 2 || cols > 4 || rows < 2 || rows > 4 {
			return wgslTypeLayout{}, false
		}
		// a matrix is an array of column vectors
		col := vectorLayout(rows, scalar)
		return wgslTypeLayout{size: cols * common.AlignUp(col.size, col.align), align: col.align}, true
	}
	return wgslTypeLayout{}, false
}

// resolveTypeLayout resolves a WGSL type to its size and alignment from the primitives and
// the struct layouts computed so far. A runtime-sized array resolves to its element stride so
// the binding size covers at least one element.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "vec3f", "ModelViewProjection", "array<SkinVertex, 4>"
//   - knownTypes: layouts of the structs resolved so far
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := primitiveLayout(typeName); ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}
	elem, count, isArray := splitArrayType(typeName)
	if !isArray {
		return wgslTypeLayout{}, false
	}
	elemLayout, ok := resolveTypeLayout(elem, knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := common.AlignUp(elemLayout.size, elemLayout.align)
	return wgslTypeLayout{size: max(count, 1) * stride, align: elemLayout.align}, true
}

// splitArrayType splits array<T, N> into T and N. N is 0 for runtime-sized arrays.
func splitArrayType(typeName string) (elem string, count uint64, ok bool) {
	base, params := splitTypeParams(typeName)
	if base != "array" || params == "" {
		return "", 0, false
	}
	parts := splitAtTopLevelCommas(params)
	elem = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return elem, 0, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", 0, false
	}
	return elem, count, true
}

// computeStructLayout lays out one struct: each member at the next offset aligned for it,
// the total rounded up to the largest member alignment. @builtin members take no space. A
// trailing runtime-sized array contributes one element.
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false while a member type is still unresolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		layout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = common.AlignUp(offset, layout.align) + layout.size
		align = max(align, layout.align)
	}
	return wgslTypeLayout{size: common.AlignUp(offset, align), align: align}, true
}

// computeStructSizes lays out every parsed struct. Structs may reference each other in any
// order, so resolution repeats until a pass makes no progress; structs that never resolve are
// left out of the result.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		var next []parsedStruct
		for _, ps := range pending {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return resolved
}

// classifyResource determines the resource kind of a WGSL declaration from its address space
// qualifier and type.
//
// Parameters:
//   - addressSpace: the var<> qualifier, e.g. "uniform" or "storage, read_write", empty for handle types
//   - typeName: the WGSL type, e.g. "ModelViewProjection", "texture_depth_cube", "sampler"
//
// Returns:
//   - ResourceBinding: a binding with Type, Kind and Dimension set
func classifyResource(addressSpace, typeName string) ResourceBinding {
	b := ResourceBinding{Type: typeName}
	switch {
	case addressSpace == "uniform":
		b.Kind = ResourceUniform
	case strings.HasPrefix(addressSpace, "storage"):
		b.Kind = ResourceStorageRead
		if strings.Contains(addressSpace, "read_write") {
			b.Kind = ResourceStorageReadWrite
		}
	case typeName == "sampler":
		b.Kind = ResourceSampler
	case typeName == "sampler_comparison":
		b.Kind = ResourceComparisonSampler
	default:
		base, _ := splitTypeParams(typeName)
		b.Kind = ResourceTexture
		if strings.HasPrefix(base, "texture_depth_") {
			b.Kind = ResourceDepthTexture
		}
		b.Dimension = wgslTextureDimensions[base]
	}
	return b
}

// splitTypeParams splits a parameterized WGSL type such as "texture_2d<f32>" into its base
// name and parameter list.
func splitTypeParams(typeName string) (base string, params string) {
	idx := strings.IndexByte(typeName, '<')
	if idx < 0 {
		return strings.TrimSpace(typeName), ""
	}
	return strings.TrimSpace(typeName[:idx]), strings.TrimSuffix(strings.TrimSpace(typeName[idx+1:]), ">")
}

// stripComments removes line and block comments from WGSL source in one pass. Block comments
// nest. Newlines are kept so line structure survives.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		next := byte(0)
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case source[i] == '/' && next == '*':
			depth++
			i++
		case depth > 0 && source[i] == '*' && next == '/':
			depth--
			i++
		case depth > 0:
			if source[i] == '\n' {
				sb.WriteByte('\n')
			}
		case source[i] == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// isVertexInputStruct reports whether a struct feeds a vertex stage: at least one @location
// member and no @builtin member, which rules out stage output structs.
func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		hasLocation = hasLocation || f.location >= 0
	}
	return hasLocation
}

// splitAtTopLevelCommas splits s at commas outside angle brackets, so array<T, N> stays whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
