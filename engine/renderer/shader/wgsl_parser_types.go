package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// ResourceKind is the kind of resource a WGSL @group/@binding declaration binds.
type ResourceKind int

const (
	ResourceUniform ResourceKind = iota
	ResourceStorageRead
	ResourceStorageReadWrite
	ResourceTexture
	ResourceDepthTexture
	ResourceSampler
	ResourceComparisonSampler
)

func (k ResourceKind) String() string {
	return [...]string{"uniform", "storage read", "storage read_write", "texture", "depth texture", "sampler", "comparison sampler"}[k]
}

// ResourceBinding is one resource declaration reflected from WGSL source.
type ResourceBinding struct {
	Group   uint32
	Binding uint32
	Name    string
	Type    string
	Kind    ResourceKind
	// Dimension is the view dimension of texture bindings.
	Dimension gpu.ViewDimension
	// MinBindingSize is the byte size of the bound type for buffer bindings, the element
	// stride for runtime-sized arrays, and 0 when unknown.
	MinBindingSize uint64
}

// Register maps the binding back to the shader register it was declared for.
//
// Returns:
//   - gpu.RegisterKey: the register
//   - bool: false if the binding lies outside every register class range
func (b ResourceBinding) Register() (gpu.RegisterKey, bool) {
	for class := gpu.RegisterClassSampler; class >= gpu.RegisterClassCBV; class-- {
		base := gpu.RegisterClassBindingBase[class]
		if b.Binding >= base && b.Binding < base+gpu.RegisterSlots {
			return gpu.RegisterKey{Class: class, Register: b.Binding - base, Space: b.Group}, true
		}
	}
	return gpu.RegisterKey{}, false
}

// Class returns the register class a resource of this kind must be declared with.
func (k ResourceKind) Class() gpu.RegisterClass {
	switch k {
	case ResourceUniform:
		return gpu.RegisterClassCBV
	case ResourceStorageReadWrite:
		return gpu.RegisterClassUAV
	case ResourceSampler, ResourceComparisonSampler:
		return gpu.RegisterClassSampler
	default:
		return gpu.RegisterClassSRV
	}
}

func (b ResourceBinding) String() string {
	return fmt.Sprintf("@group(%d) @binding(%d) %s: %s (%v)", b.Group, b.Binding, b.Name, b.Type, b.Kind)
}

// VertexInput is one @location field of a vertex input struct.
type VertexInput struct {
	Location uint32
	Name     string
	Type     string
}

// wgslTypeLayout holds the byte size and alignment of a WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
