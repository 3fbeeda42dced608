package renderer

import (
	"time"

	"github.com/Carmen-Shannon/srender/engine/config"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithConfig applies the renderer and shader sections of a configuration. Options after it
// override individual settings.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - RendererBuilderOption: a function that applies the configuration to a renderer
func WithConfig(cfg config.Config) RendererBuilderOption {
	return func(r *renderer) {
		c := cfg.Renderer
		r.backBufferCount = c.BackBuffers
		r.presentMode = gpu.PresentModeVSync
		if c.PresentMode == "uncapped" {
			r.presentMode = gpu.PresentModeUncapped
		}
		r.forceFallbackAdapter = c.ForceSoftware
		r.clearColor = gpu.Color(c.ClearColor)
		r.descriptorCapacity = c.DescriptorCapacity
		r.directLists, r.directAllocators = c.DirectLists, c.DirectAllocators
		r.copyLists, r.copyAllocators = c.CopyLists, c.CopyAllocators
		r.shadowResolution = c.ShadowResolution
		r.tempVertexCapacity = c.TempVertexCapacity
		r.maxJointMatrices = c.MaxJointMatrices
		r.frustumCulling = c.FrustumCulling
		r.waitTimeout = c.GPUWaitTimeout.Std()

		r.shaderDir = cfg.Shader.Dir
		r.shaderBuildDir = cfg.Shader.BuildDir
		r.shaderPolicy = cfg.RebuildPolicy()
		r.watchShaders = cfg.Shader.Watch
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode gpu.PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces the use of a software (fallback) adapter instead of a hardware GPU.
// This is useful for testing or running on systems without GPU support.
//
// Parameters:
//   - force: if true, the renderer requests a fallback adapter
//
// Returns:
//   - RendererBuilderOption: a function that applies the software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithBackBufferCount sets how many back buffers the swap chain holds, which is also the number
// of frames the CPU may record ahead of the GPU.
func WithBackBufferCount(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n < 2 {
			panic("renderer: at least two back buffers are required")
		}
		r.backBufferCount = n
	}
}

// WithClearColor sets the color the back buffer is cleared to.
func WithClearColor(c gpu.Color) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = c
	}
}

// WithPerspective sets the projection used when a frame does not supply one.
//
// Parameters:
//   - fovY: the vertical field of view in radians
//   - near: the near plane distance
//   - far: the far plane distance
//
// Returns:
//   - RendererBuilderOption: a function that applies the projection option to a renderer
func WithPerspective(fovY, near, far float32) RendererBuilderOption {
	return func(r *renderer) {
		if near <= 0 || far <= near {
			panic("renderer: perspective planes must satisfy 0 < near < far")
		}
		r.fovY, r.near, r.far = fovY, near, far
	}
}

// WithLight sets the initial position of the shadow casting point light.
func WithLight(pos [3]float32) RendererBuilderOption {
	return func(r *renderer) {
		r.lightPos = pos
	}
}

// WithGPUWaitTimeout bounds every CPU wait on a GPU fence. Zero waits until the context ends.
func WithGPUWaitTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		r.waitTimeout = d
	}
}

// WithDescriptorCapacity sets the size of the shader visible descriptor heap shared by meshes,
// textures and the shadow map.
func WithDescriptorCapacity(n uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.descriptorCapacity = n
	}
}

// WithCommandListPools sizes the direct and copy command-list pools. The direct pool always
// keeps enough allocators for one whole frame per back buffer.
//
// Parameters:
//   - directLists, directAllocators: the direct pool's lists and allocators
//   - copyLists, copyAllocators: the copy pool's lists and allocators
//
// Returns:
//   - RendererBuilderOption: a function that applies the pool sizes to a renderer
func WithCommandListPools(directLists, directAllocators, copyLists, copyAllocators int) RendererBuilderOption {
	return func(r *renderer) {
		r.directLists, r.directAllocators = directLists, directAllocators
		r.copyLists, r.copyAllocators = copyLists, copyAllocators
	}
}

// WithShadowResolution sets the edge length of each shadow cube face.
func WithShadowResolution(size uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.shadowResolution = size
	}
}

// WithTempVertexCapacity sets how many debug vertices one frame can draw.
func WithTempVertexCapacity(vertices uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.tempVertexCapacity = vertices
	}
}

// WithFrustumCulling toggles culling of static models against the camera frustum.
func WithFrustumCulling(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.frustumCulling = enabled
	}
}

// WithShaderLibrary uses lib instead of a library built from the shader settings. The caller
// keeps ownership of lib.
//
// Parameters:
//   - lib: the shader library
//
// Returns:
//   - RendererBuilderOption: a function that applies the shader library option to a renderer
func WithShaderLibrary(lib shader.Library) RendererBuilderOption {
	return func(r *renderer) {
		r.library = lib
	}
}

// WithShaderWatch reloads edited programs from the override directory at the start of a
// frame.
func WithShaderWatch(dir string, enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.shaderDir = dir
		r.watchShaders = enabled
	}
}
