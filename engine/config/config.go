// Package config holds the engine settings that are read once at startup.
//
// A Config starts from Default, is optionally overlaid with a TOML file and finally with the
// SRENDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables read by ApplyEnv.
const (
	EnvShaderRebuild  = "SRENDER_SHADER_REBUILD"
	EnvShaderDir      = "SRENDER_SHADER_DIR"
	EnvGPUWaitTimeout = "SRENDER_GPU_WAIT_TIMEOUT"
)

// Duration is a time.Duration written as a Go duration string ("250ms", "5s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Window configures the platform window.
type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// DirectListsPerFrame is the most direct command lists one frame submits, the recovery list of
// a failed frame included.
const DirectListsPerFrame = 10

// Renderer configures heap and pool sizes and presentation.
type Renderer struct {
	// BackBuffers is the swap chain length and the number of frames in flight.
	BackBuffers int `toml:"back_buffers"`
	// PresentMode is "vsync" or "uncapped".
	PresentMode string `toml:"present_mode"`
	// ForceSoftware selects the fallback (software) adapter.
	ForceSoftware bool       `toml:"force_software"`
	ClearColor    [4]float32 `toml:"clear_color"`

	// DescriptorCapacity is the size of the shader visible CBV/SRV/UAV heap.
	DescriptorCapacity uint32 `toml:"descriptor_capacity"`
	DirectLists        int    `toml:"direct_lists"`
	// DirectAllocators must cover BackBuffers whole frames, see MinDirectAllocators.
	DirectAllocators   int    `toml:"direct_allocators"`
	CopyLists          int    `toml:"copy_lists"`
	CopyAllocators     int    `toml:"copy_allocators"`

	ShadowResolution   uint32 `toml:"shadow_resolution"`
	TempVertexCapacity uint32 `toml:"temp_vertex_capacity"`
	MaxJointMatrices   uint32 `toml:"max_joint_matrices"`
	FrustumCulling     bool   `toml:"frustum_culling"`

	// GPUWaitTimeout bounds every CPU wait on a fence. Zero waits forever.
	GPUWaitTimeout Duration `toml:"gpu_wait_timeout"`
}

// MinDirectAllocators returns the direct allocators needed to record BackBuffers frames before
// the oldest completes.
func (r Renderer) MinDirectAllocators() int {
	return DirectListsPerFrame * r.BackBuffers
}

// Shader configures the shader library and build cache.
type Shader struct {
	// Dir is an override directory whose .wgsl files replace the embedded programs.
	Dir string `toml:"dir"`
	// BuildDir receives compiled shaders and their build metadata.
	BuildDir string `toml:"build_dir"`
	// Rebuild is the rebuild policy: "always", "stale" or "never".
	Rebuild string `toml:"rebuild"`
	// Watch reloads edited programs from Dir while running.
	Watch bool `toml:"watch"`
}

// Config is the full engine configuration.
type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Shader   Shader   `toml:"shader"`
	// LogLevel is a slog level name: "debug", "info", "warn" or "error".
	LogLevel string `toml:"log_level"`
}

// Default returns the built in configuration.
func Default() Config {
	return Config{
		Window: Window{Title: "srender", Width: 1280, Height: 720},
		Renderer: Renderer{
			BackBuffers:        2,
			PresentMode:        "vsync",
			ClearColor:         [4]float32{0.1, 0.1, 0.12, 1},
			DescriptorCapacity: 4096,
			DirectLists:        4,
			DirectAllocators:   32,
			CopyLists:          2,
			CopyAllocators:     4,
			ShadowResolution:   1024,
			TempVertexCapacity: 1 << 16,
			MaxJointMatrices:   4096,
			FrustumCulling:     true,
			GPUWaitTimeout:     Duration(10 * time.Second),
		},
		Shader: Shader{
			BuildDir: shader.DefaultBuildDir,
			Rebuild:  string(shader.PolicyStale),
		},
		LogLevel: "info",
	}
}

// Load returns Default overlaid with the TOML file at path and then with the environment. A
// missing file is not an error.
//
// Parameters:
//   - path: the TOML file, empty to skip the file
//
// Returns:
//   - Config: the configuration
//   - error: a read, parse or validation error
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the SRENDER_* environment variables.
//
// Parameters:
//   - lookup: the environment lookup, os.LookupEnv outside tests
//
// Returns:
//   - error: an unparsable value
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvShaderRebuild); ok {
		// "1"/"true" is the old always-rebuild switch
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				v = string(shader.PolicyAlways)
			} else {
				v = string(shader.PolicyNever)
			}
		}
		c.Shader.Rebuild = v
	}
	if v, ok := lookup(EnvShaderDir); ok {
		c.Shader.Dir = v
	}
	if v, ok := lookup(EnvGPUWaitTimeout); ok {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: %s: %w", EnvGPUWaitTimeout, err)
		}
		c.Renderer.GPUWaitTimeout = d
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	r := &c.Renderer
	if r.BackBuffers < 2 || r.BackBuffers > 3 {
		return fmt.Errorf("config: back_buffers %d outside [2, 3]", r.BackBuffers)
	}
	if r.PresentMode != "vsync" && r.PresentMode != "uncapped" {
		return fmt.Errorf("config: present_mode %q (want vsync or uncapped)", r.PresentMode)
	}
	if r.DirectLists < 1 || r.CopyLists < 1 || r.CopyAllocators < 1 {
		return fmt.Errorf("config: command list pools need at least one list and one allocator")
	}
	if need := r.MinDirectAllocators(); r.DirectAllocators < need {
		return fmt.Errorf("config: direct_allocators %d below %d (%d per frame for %d back buffers)", r.DirectAllocators, need, DirectListsPerFrame, r.BackBuffers)
	}
	if r.DescriptorCapacity == 0 {
		return fmt.Errorf("config: descriptor_capacity must be positive")
	}
	if r.ShadowResolution == 0 || r.ShadowResolution&(r.ShadowResolution-1) != 0 {
		return fmt.Errorf("config: shadow_resolution %d is not a power of two", r.ShadowResolution)
	}
	if r.TempVertexCapacity < 3 {
		return fmt.Errorf("config: temp_vertex_capacity %d cannot hold a triangle", r.TempVertexCapacity)
	}
	if r.GPUWaitTimeout < 0 {
		return fmt.Errorf("config: negative gpu_wait_timeout")
	}
	if _, err := shader.ParsePolicy(c.Shader.Rebuild); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RebuildPolicy returns the parsed shader rebuild policy.
func (c *Config) RebuildPolicy() shader.Policy {
	p, err := shader.ParsePolicy(c.Shader.Rebuild)
	if err != nil {
		return shader.PolicyStale
	}
	return p
}

// Save writes c as TOML to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
