package shader

import (
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// Register spaces shared by every shader. Vertex stage registers live in space 0, pixel stage
// registers in space 3 and the shadow cube sampled by the pixel stage in space 4. The compute
// skinning shader uses space 0.
const (
	SpaceVertex  uint32 = 0
	SpacePixel   uint32 = 3
	SpaceShadow  uint32 = 4
	SpaceCompute uint32 = 0
)

// constantCount returns the number of 32-bit values of a constant block of size bytes.
func constantCount(size int) uint32 {
	return uint32(size / 4)
}

// Shadow root parameter indices.
const (
	ShadowParamMVP uint32 = iota
)

// ShadowRootSignature returns the depth-only shadow pass signature: the per-draw transform
// block at b0 space0.
func ShadowRootSignature() gpu.RootSignatureDesc {
	return gpu.RootSignatureDesc{
		Label: "shadow",
		Parameters: []gpu.RootParameter{
			ShadowParamMVP: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityVertex,
				ShaderRegister: 0,
				RegisterSpace:  SpaceVertex,
				Num32BitValues: constantCount((&SModelViewProjection{}).Size()),
			},
		},
	}
}

// World root parameter indices.
const (
	WorldParamMVP uint32 = iota
	WorldParamTextureMetadata
	WorldParamTexture
	WorldParamShadowConstants
	WorldParamShadowMap
)

// WorldRootSignature returns the opaque world pass signature.
//
//	b0 space0  ModelViewProjection (vertex)
//	b0 space3  TextureMetadata (pixel)
//	t0 space3  diffuse texture table (pixel), s0 space3 static linear sampler
//	b0 space4  ShadowConstants (pixel)
//	t0 space4  shadow cube table (pixel), s0 space4 static comparison sampler
func WorldRootSignature() gpu.RootSignatureDesc {
	return gpu.RootSignatureDesc{
		Label: "world",
		Parameters: []gpu.RootParameter{
			WorldParamMVP: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityVertex,
				RegisterSpace:  SpaceVertex,
				Num32BitValues: constantCount((&SModelViewProjection{}).Size()),
			},
			WorldParamTextureMetadata: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityPixel,
				RegisterSpace:  SpacePixel,
				Num32BitValues: constantCount((&STextureMetadata{}).Size()),
			},
			WorldParamTexture: {
				Kind:       gpu.RootParameterDescriptorTable,
				Visibility: gpu.ShaderVisibilityPixel,
				Ranges: []gpu.DescriptorRange{{
					Class:          gpu.RegisterClassSRV,
					NumDescriptors: 1,
					RegisterSpace:  SpacePixel,
					Dimension:      gpu.ViewDimensionTexture2D,
				}},
			},
			WorldParamShadowConstants: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityPixel,
				RegisterSpace:  SpaceShadow,
				Num32BitValues: constantCount((&SShadowConstants{}).Size()),
			},
			WorldParamShadowMap: {
				Kind:       gpu.RootParameterDescriptorTable,
				Visibility: gpu.ShaderVisibilityPixel,
				Ranges: []gpu.DescriptorRange{{
					Class:          gpu.RegisterClassSRV,
					NumDescriptors: 1,
					RegisterSpace:  SpaceShadow,
					Dimension:      gpu.ViewDimensionTextureCube,
					Depth:          true,
				}},
			},
		},
		StaticSamplers: []gpu.StaticSampler{
			{RegisterSpace: SpacePixel, Visibility: gpu.ShaderVisibilityPixel, Desc: gpu.SamplerDesc{Filter: gpu.FilterLinear, Address: gpu.AddressWrap}},
			{RegisterSpace: SpaceShadow, Visibility: gpu.ShaderVisibilityPixel, Desc: gpu.SamplerDesc{Filter: gpu.FilterLinear, Address: gpu.AddressClamp, Compare: true, Comparison: gpu.ComparisonLessEqual}},
		},
	}
}

// Skinning root parameter indices.
const (
	SkinningParamConstants uint32 = iota
	SkinningParamMesh
	SkinningParamWeights
	SkinningParamJoints
	SkinningParamOutPositions
	SkinningParamOutNormals
)

// SkinningRootSignature returns the compute skinning signature, all in space 0: constants at
// b0, a table holding the mesh's bind-pose positions t0 and normals t1, skinning weights t2,
// bind-to-current joint matrices t3, and the skinned outputs u0 (positions) and u1 (normals).
func SkinningRootSignature() gpu.RootSignatureDesc {
	srv := func(reg uint32) gpu.RootParameter {
		return gpu.RootParameter{Kind: gpu.RootParameterSRV, Visibility: gpu.ShaderVisibilityCompute, ShaderRegister: reg, RegisterSpace: SpaceCompute}
	}
	uav := func(reg uint32) gpu.RootParameter {
		return gpu.RootParameter{Kind: gpu.RootParameterUAV, Visibility: gpu.ShaderVisibilityCompute, ShaderRegister: reg, RegisterSpace: SpaceCompute}
	}
	return gpu.RootSignatureDesc{
		Label: "skinning",
		Parameters: []gpu.RootParameter{
			SkinningParamConstants: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityCompute,
				RegisterSpace:  SpaceCompute,
				Num32BitValues: constantCount((&SSkinningConstants{}).Size()),
			},
			SkinningParamMesh: {
				Kind:       gpu.RootParameterDescriptorTable,
				Visibility: gpu.ShaderVisibilityCompute,
				Ranges: []gpu.DescriptorRange{{
					Class:          gpu.RegisterClassSRV,
					NumDescriptors: 2,
					RegisterSpace:  SpaceCompute,
					Dimension:      gpu.ViewDimensionBuffer,
				}},
			},
			SkinningParamWeights:      srv(2),
			SkinningParamJoints:       srv(3),
			SkinningParamOutPositions: uav(0),
			SkinningParamOutNormals:   uav(1),
		},
	}
}

// Temp geometry root parameter indices.
const (
	TempParamConstants uint32 = iota
)

// TempRootSignature returns the debug geometry signature: the view-projection at b0 space0.
func TempRootSignature() gpu.RootSignatureDesc {
	return gpu.RootSignatureDesc{
		Label: "temp",
		Parameters: []gpu.RootParameter{
			TempParamConstants: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityVertex,
				RegisterSpace:  SpaceVertex,
				Num32BitValues: constantCount((&STempConstants{}).Size()),
			},
		},
	}
}

// UI root parameter indices.
const (
	UIParamConstants uint32 = iota
	UIParamTexture
)

// UIRootSignature returns the UI signature: the projection at b0 space0 and one texture table
// at t0 space3 with a static linear clamp sampler at s0 space3.
func UIRootSignature() gpu.RootSignatureDesc {
	return gpu.RootSignatureDesc{
		Label: "ui",
		Parameters: []gpu.RootParameter{
			UIParamConstants: {
				Kind:           gpu.RootParameterConstants,
				Visibility:     gpu.ShaderVisibilityVertex,
				RegisterSpace:  SpaceVertex,
				Num32BitValues: constantCount((&SUIConstants{}).Size()),
			},
			UIParamTexture: {
				Kind:       gpu.RootParameterDescriptorTable,
				Visibility: gpu.ShaderVisibilityPixel,
				Ranges: []gpu.DescriptorRange{{
					Class:          gpu.RegisterClassSRV,
					NumDescriptors: 1,
					RegisterSpace:  SpacePixel,
					Dimension:      gpu.ViewDimensionTexture2D,
				}},
			},
		},
		StaticSamplers: []gpu.StaticSampler{
			{RegisterSpace: SpacePixel, Visibility: gpu.ShaderVisibilityPixel, Desc: gpu.SamplerDesc{Filter: gpu.FilterLinear, Address: gpu.AddressClamp}},
		},
	}
}

// Vertex input layouts of the graphics pipelines. Static meshes bind positions, normals and
// uvs as three streams; skinned instances replace the first two with the skinning outputs.

// MeshInputLayout is the world pass input: positions, normals, uvs in slots 0, 1 and 2.
func MeshInputLayout() []gpu.VertexBufferLayout {
	return []gpu.VertexBufferLayout{
		{Stride: 12, Attributes: []gpu.VertexAttribute{{Format: gpu.VertexFormatFloat32x3, ShaderLocation: 0}}},
		{Stride: 12, Attributes: []gpu.VertexAttribute{{Format: gpu.VertexFormatFloat32x3, ShaderLocation: 1}}},
		{Stride: 8, Attributes: []gpu.VertexAttribute{{Format: gpu.VertexFormatFloat32x2, ShaderLocation: 2}}},
	}
}

// ShadowInputLayout is the shadow pass input: positions only.
func ShadowInputLayout() []gpu.VertexBufferLayout {
	return MeshInputLayout()[:1]
}

// TempInputLayout is the interleaved STempVertex layout.
func TempInputLayout() []gpu.VertexBufferLayout {
	return []gpu.VertexBufferLayout{{
		Stride: uint32((&STempVertex{}).Size()),
		Attributes: []gpu.VertexAttribute{
			{Format: gpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gpu.VertexFormatFloat32x4, Offset: 12, ShaderLocation: 1},
		},
	}}
}

// UIInputLayout is the interleaved SUIVertex layout.
func UIInputLayout() []gpu.VertexBufferLayout {
	return []gpu.VertexBufferLayout{{
		Stride: uint32((&SUIVertex{}).Size()),
		Attributes: []gpu.VertexAttribute{
			{Format: gpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: gpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
			{Format: gpu.VertexFormatUnorm8x4, Offset: 16, ShaderLocation: 2},
		},
	}}
}
