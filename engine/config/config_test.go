package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Renderer.BackBuffers)
	assert.GreaterOrEqual(t, cfg.Renderer.DirectAllocators, 3*DirectListsPerFrame, "room for the deepest swap chain")
	assert.Equal(t, shader.PolicyStale, cfg.RebuildPolicy())
	assert.Equal(t, 10*time.Second, cfg.Renderer.GPUWaitTimeout.Std())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srender.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[renderer]
back_buffers = 3
present_mode = "uncapped"
shadow_resolution = 2048
gpu_wait_timeout = "250ms"

[shader]
dir = "assets/shaders"
rebuild = "never"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Renderer.BackBuffers)
	assert.Equal(t, "uncapped", cfg.Renderer.PresentMode)
	assert.EqualValues(t, 2048, cfg.Renderer.ShadowResolution)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.GPUWaitTimeout.Std())
	assert.Equal(t, "assets/shaders", cfg.Shader.Dir)
	assert.Equal(t, shader.PolicyNever, cfg.RebuildPolicy())
	// untouched keys keep their defaults
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.EqualValues(t, 4096, cfg.Renderer.DescriptorCapacity)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Renderer, cfg.Renderer)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"present mode", "[renderer]\npresent_mode = \"mailbox\""},
		{"back buffers", "[renderer]\nback_buffers = 1"},
		{"one frame of direct allocators", "[renderer]\ndirect_allocators = 10"},
		{"two frames for three buffers", "[renderer]\nback_buffers = 3\ndirect_allocators = 20"},
		{"shadow resolution", "[renderer]\nshadow_resolution = 1000"},
		{"rebuild policy", "[shader]\nrebuild = \"sometimes\""},
		{"log level", "log_level = \"loud\""},
		{"duration", "[renderer]\ngpu_wait_timeout = \"soon\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		policy  shader.Policy
		dir     string
		timeout time.Duration
	}{
		{"none", nil, shader.PolicyStale, "", 10 * time.Second},
		{"policy name", map[string]string{EnvShaderRebuild: "always"}, shader.PolicyAlways, "", 10 * time.Second},
		{"bool true", map[string]string{EnvShaderRebuild: "1"}, shader.PolicyAlways, "", 10 * time.Second},
		{"bool false", map[string]string{EnvShaderRebuild: "false"}, shader.PolicyNever, "", 10 * time.Second},
		{"dir and timeout", map[string]string{EnvShaderDir: "/tmp/s", EnvGPUWaitTimeout: "2s"}, shader.PolicyStale, "/tmp/s", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.ApplyEnv(env(tt.vars)))
			require.NoError(t, cfg.Validate())
			assert.Equal(t, tt.policy, cfg.RebuildPolicy())
			assert.Equal(t, tt.dir, cfg.Shader.Dir)
			assert.Equal(t, tt.timeout, cfg.Renderer.GPUWaitTimeout.Std())
		})
	}

	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(env(map[string]string{EnvGPUWaitTimeout: "forever"})))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Renderer.PresentMode = "uncapped"
	cfg.Renderer.GPUWaitTimeout = Duration(3 * time.Second)
	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uncapped", got.Renderer.PresentMode)
	assert.Equal(t, 3*time.Second, got.Renderer.GPUWaitTimeout.Std())
	assert.Equal(t, cfg.Shader, got.Shader)
	assert.Equal(t, cfg.Window, got.Window)
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogLevel = "warn"
	l := cfg.NewLogger(&buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.True(t, l.Enabled(context.Background(), slog.LevelError))
}
