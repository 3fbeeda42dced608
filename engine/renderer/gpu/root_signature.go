package gpu

import (
	"fmt"
)

// ShaderVisibility selects the shader stages a root parameter is visible to.
type ShaderVisibility int

const (
	ShaderVisibilityAll ShaderVisibility = iota
	ShaderVisibilityVertex
	ShaderVisibilityPixel
	ShaderVisibilityCompute
)

// RootParameterKind is the kind of a root parameter.
type RootParameterKind int

const (
	// RootParameterConstants is a block of inline 32-bit constants (a b-register).
	RootParameterConstants RootParameterKind = iota
	// RootParameterDescriptorTable is a range of descriptors in a shader-visible heap.
	RootParameterDescriptorTable
	// RootParameterSRV is an inline read-only buffer view (a t-register).
	RootParameterSRV
	// RootParameterUAV is an inline read-write buffer view (a u-register).
	RootParameterUAV
	// RootParameterCBV is an inline constant buffer view (a b-register).
	RootParameterCBV
)

// RegisterClass is the register class of a shader binding.
type RegisterClass int

const (
	RegisterClassCBV RegisterClass = iota
	RegisterClassSRV
	RegisterClassUAV
	RegisterClassSampler
)

// Prefix returns the HLSL-style register prefix for the class.
func (c RegisterClass) Prefix() string {
	return [...]string{"b", "t", "u", "s"}[c]
}

// RegisterClassBindingBase is the first binding slot of each register class inside a bind group.
// A register rN of class c in space S binds to @group(S) @binding(base(c)+N).
var RegisterClassBindingBase = [...]uint32{
	RegisterClassCBV:     0,
	RegisterClassSRV:     16,
	RegisterClassUAV:     32,
	RegisterClassSampler: 48,
}

// RegisterSlots is the number of registers per class inside one space.
const RegisterSlots = 16

// Binding returns the bind-group slot of register reg of class c.
func Binding(c RegisterClass, reg uint32) uint32 {
	if reg >= RegisterSlots {
		panic(fmt.Sprintf("gpu: register %s%d out of range", c.Prefix(), reg))
	}
	return RegisterClassBindingBase[c] + reg
}

// ViewDimension describes what a descriptor range or inline view binds.
type ViewDimension int

const (
	ViewDimensionBuffer ViewDimension = iota
	ViewDimensionTexture2D
	ViewDimensionTextureCube
	ViewDimensionTexture2DArray
)

// DescriptorRange is one range of a descriptor table.
type DescriptorRange struct {
	Class              RegisterClass
	NumDescriptors     uint32
	BaseShaderRegister uint32
	RegisterSpace      uint32
	// OffsetInDescriptorsFromTableStart positions the range inside the table.
	OffsetInDescriptorsFromTableStart uint32
	// Dimension is the view dimension of SRV/UAV ranges.
	Dimension ViewDimension
	// Depth marks SRV ranges that sample a depth texture.
	Depth bool
	// Comparison marks sampler ranges holding comparison samplers.
	Comparison bool
}

// RootParameter is one slot of a root signature.
type RootParameter struct {
	Kind           RootParameterKind
	Visibility     ShaderVisibility
	ShaderRegister uint32
	RegisterSpace  uint32
	// Num32BitValues is the size of a RootParameterConstants block.
	Num32BitValues uint32
	// Ranges are the ranges of a RootParameterDescriptorTable.
	Ranges []DescriptorRange
	// ReadOnly marks a RootParameterUAV that is bound read-only by some stage.
	ReadOnly bool
}

// Class returns the register class the parameter occupies for inline parameters.
func (p RootParameter) Class() RegisterClass {
	switch p.Kind {
	case RootParameterSRV:
		return RegisterClassSRV
	case RootParameterUAV:
		return RegisterClassUAV
	default:
		return RegisterClassCBV
	}
}

// StaticSampler is a sampler baked into the root signature.
type StaticSampler struct {
	ShaderRegister uint32
	RegisterSpace  uint32
	Visibility     ShaderVisibility
	Desc           SamplerDesc
}

// RootSignatureDesc declares the per-draw or per-dispatch inputs of a pipeline.
type RootSignatureDesc struct {
	Label          string
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
}

// RegisterKey identifies one shader register.
type RegisterKey struct {
	Class    RegisterClass
	Register uint32
	Space    uint32
}

func (k RegisterKey) String() string {
	return fmt.Sprintf("%s%d space%d", k.Class.Prefix(), k.Register, k.Space)
}

// Registers returns every register the signature declares, mapped to the visibility that
// declares it.
func (d RootSignatureDesc) Registers() map[RegisterKey]ShaderVisibility {
	out := make(map[RegisterKey]ShaderVisibility)
	for _, p := range d.Parameters {
		switch p.Kind {
		case RootParameterDescriptorTable:
			for _, r := range p.Ranges {
				for i := uint32(0); i < r.NumDescriptors; i++ {
					out[RegisterKey{Class: r.Class, Register: r.BaseShaderRegister + i, Space: r.RegisterSpace}] = p.Visibility
				}
			}
		default:
			out[RegisterKey{Class: p.Class(), Register: p.ShaderRegister, Space: p.RegisterSpace}] = p.Visibility
		}
	}
	for _, s := range d.StaticSamplers {
		out[RegisterKey{Class: RegisterClassSampler, Register: s.ShaderRegister, Space: s.RegisterSpace}] = s.Visibility
	}
	return out
}

// Validate checks that no register is declared twice, constant blocks fit the limit, and every
// register fits the binding slot scheme.
//
// Returns:
//   - error: a description of the first problem found
func (d RootSignatureDesc) Validate() error {
	seen := make(map[RegisterKey]int)
	claim := func(k RegisterKey, param int) error {
		if k.Register >= RegisterSlots {
			return fmt.Errorf("root signature %q parameter %d: register %v exceeds %d slots", d.Label, param, k, RegisterSlots)
		}
		if prev, ok := seen[k]; ok {
			return fmt.Errorf("root signature %q: register %v declared by parameters %d and %d", d.Label, k, prev, param)
		}
		seen[k] = param
		return nil
	}
	for i, p := range d.Parameters {
		switch p.Kind {
		case RootParameterConstants:
			if p.Num32BitValues == 0 || p.Num32BitValues > MaxRoot32BitConstants {
				return fmt.Errorf("root signature %q parameter %d: %d constants out of range", d.Label, i, p.Num32BitValues)
			}
			fallthrough
		case RootParameterSRV, RootParameterUAV, RootParameterCBV:
			if err := claim(RegisterKey{Class: p.Class(), Register: p.ShaderRegister, Space: p.RegisterSpace}, i); err != nil {
				return err
			}
		case RootParameterDescriptorTable:
			if len(p.Ranges) == 0 {
				return fmt.Errorf("root signature %q parameter %d: empty descriptor table", d.Label, i)
			}
			for _, r := range p.Ranges {
				for n := uint32(0); n < r.NumDescriptors; n++ {
					if err := claim(RegisterKey{Class: r.Class, Register: r.BaseShaderRegister + n, Space: r.RegisterSpace}, i); err != nil {
						return err
					}
				}
			}
		}
	}
	for _, s := range d.StaticSamplers {
		if err := claim(RegisterKey{Class: RegisterClassSampler, Register: s.ShaderRegister, Space: s.RegisterSpace}, -1); err != nil {
			return err
		}
	}
	return nil
}

// TableSize returns the number of descriptors a table parameter spans.
func (p RootParameter) TableSize() uint32 {
	var n uint32
	for _, r := range p.Ranges {
		n = max(n, r.OffsetInDescriptorsFromTableStart+r.NumDescriptors)
	}
	return n
}
