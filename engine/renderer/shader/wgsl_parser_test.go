package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTypeLayout(t *testing.T) {
	known := map[string]wgslTypeLayout{"Light": {size: 32, align: 16}}
	tests := []struct {
		typeName string
		want     wgslTypeLayout
		ok       bool
	}{
		{"f32", wgslTypeLayout{4, 4}, true},
		{"vec2f", wgslTypeLayout{8, 8}, true},
		{"vec3<f32>", wgslTypeLayout{12, 16}, true},
		{"vec3u", wgslTypeLayout{12, 16}, true},
		{"vec4h", wgslTypeLayout{8, 8}, true},
		{"mat3x3<f32>", wgslTypeLayout{48, 16}, true},
		{"mat4x2f", wgslTypeLayout{32, 8}, true},
		{"mat4x4<f32>", wgslTypeLayout{64, 16}, true},
		{"atomic<u32>", wgslTypeLayout{4, 4}, true},
		{"array<vec3f, 4>", wgslTypeLayout{64, 16}, true},
		{"array<mat4x4<f32>>", wgslTypeLayout{64, 16}, true},
		{"array<Light, 2>", wgslTypeLayout{64, 16}, true},
		{"vec5f", wgslTypeLayout{}, false},
		{"Unknown", wgslTypeLayout{}, false},
		{"array<f32, n>", wgslTypeLayout{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			got, ok := resolveTypeLayout(tt.typeName, known)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeStructSizesResolvesForwardReferences(t *testing.T) {
	src := `
struct Scene { lights: array<Light, 2>, ambient: vec3f }
struct Light { position: vec3f, range: f32, color: vec4f }
struct Broken { value: Missing }
`
	sizes := computeStructSizes(parseStructBlocks(src))
	assert.Equal(t, wgslTypeLayout{32, 16}, sizes["Light"])
	assert.Equal(t, wgslTypeLayout{80, 16}, sizes["Scene"])
	assert.NotContains(t, sizes, "Broken")
}

func TestStripComments(t *testing.T) {
	src := "a // line\nb /* block /* nested */ still */ c\n/* multi\nline */d"
	assert.Equal(t, "a \nb  c\n\nd", stripComments(src))
}

func TestParseVertexInputsSkipsStageOutputs(t *testing.T) {
	src := `
struct VertexIn { @location(1) normal: vec3f, @location(0) position: vec3f }
struct VertexOut { @builtin(position) clip: vec4f, @location(0) uv: vec2f }
`
	inputs := parseVertexInputs(src)
	assert.Equal(t, []VertexInput{
		{Location: 0, Name: "position", Type: "vec3f"},
		{Location: 1, Name: "normal", Type: "vec3f"},
	}, inputs)
}
