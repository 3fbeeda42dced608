package shader

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadEmbedded(t *testing.T, name string) Shader {
	t.Helper()
	lib, err := NewLibrary()
	require.NoError(t, err)
	s, err := lib.Get(name)
	require.NoError(t, err)
	return s
}

func TestEmbeddedProgramsMatchTheirBindings(t *testing.T) {
	tests := []struct {
		program string
		sig     gpu.RootSignatureDesc
		layout  []gpu.VertexBufferLayout
	}{
		{ProgramShadow, ShadowRootSignature(), ShadowInputLayout()},
		{ProgramWorld, WorldRootSignature(), MeshInputLayout()},
		{ProgramSkinning, SkinningRootSignature(), nil},
		{ProgramTemp, TempRootSignature(), TempInputLayout()},
		{ProgramUI, UIRootSignature(), UIInputLayout()},
	}
	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			require.NoError(t, tt.sig.Validate())
			s := loadEmbedded(t, tt.program)
			assert.NoError(t, s.ValidateRootSignature(tt.sig))
			assert.NoError(t, s.ValidateInputLayout(tt.layout))
		})
	}
}

func TestWorldReflection(t *testing.T) {
	s := loadEmbedded(t, ProgramWorld)

	assert.Equal(t, "vs_main", s.EntryPoint(ShaderTypeVertex))
	assert.Equal(t, "fs_main", s.EntryPoint(ShaderTypeFragment))
	assert.Empty(t, s.EntryPoint(ShaderTypeCompute))

	b := s.Bindings()
	require.Len(t, b, 7)
	assert.Equal(t, ResourceBinding{Group: 0, Binding: 0, Name: "mvp", Type: "ModelViewProjection", Kind: ResourceUniform, MinBindingSize: 192}, b[0])
	assert.Equal(t, ResourceUniform, b[1].Kind)
	assert.Equal(t, uint64(32), b[1].MinBindingSize)
	assert.Equal(t, ResourceTexture, b[2].Kind)
	assert.Equal(t, gpu.ViewDimensionTexture2D, b[2].Dimension)
	assert.Equal(t, ResourceSampler, b[3].Kind)
	assert.Equal(t, uint32(4), b[5].Group)
	assert.Equal(t, ResourceDepthTexture, b[5].Kind)
	assert.Equal(t, gpu.ViewDimensionTextureCube, b[5].Dimension)
	assert.Equal(t, ResourceComparisonSampler, b[6].Kind)

	key, ok := b[5].Register()
	require.True(t, ok)
	assert.Equal(t, gpu.RegisterKey{Class: gpu.RegisterClassSRV, Register: 0, Space: 4}, key)

	assert.Equal(t, []VertexInput{
		{Location: 0, Name: "position", Type: "vec3<f32>"},
		{Location: 1, Name: "normal", Type: "vec3<f32>"},
		{Location: 2, Name: "uv", Type: "vec2<f32>"},
	}, s.VertexInputs())
}

func TestSkinningReflection(t *testing.T) {
	s := loadEmbedded(t, ProgramSkinning)

	assert.Equal(t, "cs_main", s.EntryPoint(ShaderTypeCompute))
	assert.Equal(t, [3]uint32{64, 1, 1}, s.WorkgroupSize())
	assert.Empty(t, s.VertexInputs())
	assert.Len(t, s.Declarations(), 7)

	code := s.Code(ShaderTypeCompute)
	assert.Equal(t, "cs_main", code.EntryPoint)
	assert.Equal(t, s.Source(), code.Source)
	assert.True(t, s.Code(ShaderTypeVertex).Empty())
}

func TestShadowIsDepthOnly(t *testing.T) {
	s := loadEmbedded(t, ProgramShadow)
	assert.False(t, s.Code(ShaderTypeVertex).Empty())
	assert.True(t, s.Code(ShaderTypeFragment).Empty())
}

func TestValidateRootSignatureMismatches(t *testing.T) {
	t.Run("undeclared register", func(t *testing.T) {
		s := loadEmbedded(t, ProgramWorld)
		err := s.ValidateRootSignature(TempRootSignature())
		require.ErrorIs(t, err, ErrBindingMismatch)
		assert.Contains(t, err.Error(), "not declared")
	})

	t.Run("constants too small", func(t *testing.T) {
		s, err := NewShader("small", `
//@srender:include model_view_projection
//@srender:register b0 0 mvp model_view_projection
@vertex
fn vs_main(@location(0) p: vec3<f32>) -> @builtin(position) vec4<f32> {
    return mvp.projection * vec4<f32>(p, 1.0);
}`)
		require.NoError(t, err)
		err = s.ValidateRootSignature(TempRootSignature())
		require.ErrorIs(t, err, ErrBindingMismatch)
		assert.Contains(t, err.Error(), "root constants")
	})

	t.Run("depth texture in color table", func(t *testing.T) {
		sig := WorldRootSignature()
		sig.Parameters[WorldParamShadowMap].Ranges[0].Depth = false
		err := loadEmbedded(t, ProgramWorld).ValidateRootSignature(sig)
		require.ErrorIs(t, err, ErrBindingMismatch)
		assert.Contains(t, err.Error(), "depth")
	})

	t.Run("comparison sampler mismatch", func(t *testing.T) {
		sig := WorldRootSignature()
		sig.StaticSamplers[1].Desc.Compare = false
		err := loadEmbedded(t, ProgramWorld).ValidateRootSignature(sig)
		require.ErrorIs(t, err, ErrBindingMismatch)
		assert.Contains(t, err.Error(), "comparison")
	})

	t.Run("compute visibility", func(t *testing.T) {
		sig := SkinningRootSignature()
		sig.Parameters[SkinningParamJoints].Visibility = gpu.ShaderVisibilityVertex
		err := loadEmbedded(t, ProgramSkinning).ValidateRootSignature(sig)
		require.ErrorIs(t, err, ErrBindingMismatch)
		assert.Contains(t, err.Error(), "not visible to compute")
	})
}

func TestValidateInputLayoutMismatches(t *testing.T) {
	s := loadEmbedded(t, ProgramUI)

	bad := UIInputLayout()
	bad[0].Attributes[0].Format = gpu.VertexFormatFloat32x3
	err := s.ValidateInputLayout(bad)
	require.ErrorIs(t, err, ErrBindingMismatch)
	assert.Contains(t, err.Error(), "@location(0)")

	err = s.ValidateInputLayout(UIInputLayout()[:0])
	require.ErrorIs(t, err, ErrBindingMismatch)
	assert.Contains(t, err.Error(), "not fed")
}

func TestNewShaderRequiresEntryPoint(t *testing.T) {
	_, err := NewShader("empty", "//@srender:include ui_constants")
	assert.Error(t, err)

	_, err = NewShader("bad", "//@srender:include nope\n@vertex fn main() {}")
	assert.Error(t, err)
}
