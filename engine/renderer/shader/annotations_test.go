package shader

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    *Annotation
		wantErr bool
	}{
		{name: "plain code", line: "let x = 1.0;"},
		{name: "plain comment", line: "// lighting"},
		{name: "prefix outside comment", line: "let s = \"@srender:include ui_vertex\";"},
		{
			name: "include",
			line: "//@srender:include model_view_projection",
			want: &Annotation{Type: annotationTypeInclude, Args: []AnnotationArg{AnnotationArgModelViewProjection}, Line: 7},
		},
		{
			name: "register with indentation",
			line: "    // @srender:register t3 0 joints array<mat4x4<f32>>",
			want: &Annotation{
				Type:     AnnotationTypeRegister,
				Args:     []AnnotationArg{"joints", "array<mat4x4<f32>>"},
				Line:     7,
				Register: &gpu.RegisterKey{Class: gpu.RegisterClassSRV, Register: 3, Space: 0},
			},
		},
		{
			name: "sampler register",
			line: "//@srender:register s0 4 shadow_sampler sampler_comparison",
			want: &Annotation{
				Type:     AnnotationTypeRegister,
				Args:     []AnnotationArg{"shadow_sampler", "sampler_comparison"},
				Line:     7,
				Register: &gpu.RegisterKey{Class: gpu.RegisterClassSampler, Register: 0, Space: 4},
			},
		},
		{name: "empty", line: "//@srender:", wantErr: true},
		{name: "unknown type", line: "//@srender:define FOO", wantErr: true},
		{name: "unknown struct", line: "//@srender:include camera_uniform", wantErr: true},
		{name: "include without argument", line: "//@srender:include", wantErr: true},
		{name: "register missing type", line: "//@srender:register b0 0 mvp", wantErr: true},
		{name: "register unknown class", line: "//@srender:register x0 0 mvp model_view_projection", wantErr: true},
		{name: "register out of slots", line: "//@srender:register t16 0 tex texture_2d<f32>", wantErr: true},
		{name: "register bad space", line: "//@srender:register b0 zero mvp model_view_projection", wantErr: true},
		{name: "register space beyond bind groups", line: "//@srender:register b0 8 mvp model_view_projection", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnnotation(tt.line, 7)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "line 7")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRegister(t *testing.T) {
	class, reg, err := parseRegister("u15")
	require.NoError(t, err)
	assert.Equal(t, gpu.RegisterClassUAV, class)
	assert.Equal(t, uint32(15), reg)

	_, _, err = parseRegister("b")
	assert.Error(t, err)
}
