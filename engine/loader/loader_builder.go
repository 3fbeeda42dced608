package loader

import "github.com/Carmen-Shannon/srender/engine/renderer/gpu"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithMeshLoader is an option builder that sets the MeshLoader models upload their geometry
// through.
//
// Parameters:
//   - m: the mesh loader
//
// Returns:
//   - LoaderBuilderOption: a function that applies the mesh loader option to a loader
func WithMeshLoader(m MeshLoader) LoaderBuilderOption {
	return func(l *loader) {
		l.meshes = m
	}
}

// WithTextureLoader is an option builder that sets the TextureLoader material textures are
// uploaded through.
func WithTextureLoader(t TextureLoader) LoaderBuilderOption {
	return func(l *loader) {
		l.textures = t
	}
}

// WithModel is an option builder that pre-populates the model cache.
//
// Parameters:
//   - key: the cache key for the model
//   - m: the model to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model option to a loader
func WithModel(key string, m *LoadedModel) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[key] = m
	}
}

// MeshLoaderBuilderOption is a functional option for configuring a MeshLoader.
type MeshLoaderBuilderOption func(*meshLoader)

// WithMeshCapacity is an option builder that sets how many meshes can be resident at once.
//
// Parameters:
//   - n: the mesh pool capacity
//
// Returns:
//   - MeshLoaderBuilderOption: a function that applies the capacity option to a mesh loader
func WithMeshCapacity(n int) MeshLoaderBuilderOption {
	return func(l *meshLoader) {
		l.capacity = n
	}
}

// WithMeshListCount is an option builder that sets the number of command lists and allocators
// in each upload pool.
func WithMeshListCount(n int) MeshLoaderBuilderOption {
	return func(l *meshLoader) {
		l.lists = n
	}
}

// TextureLoaderBuilderOption is a functional option for configuring a TextureLoader.
type TextureLoaderBuilderOption func(*textureLoader)

// WithTextureCapacity is an option builder that sets how many textures can be resident at
// once, the fallback included. It also bounds the decode queue.
func WithTextureCapacity(n int) TextureLoaderBuilderOption {
	return func(l *textureLoader) {
		l.capacity = n
	}
}

// WithTextureListCount is an option builder that sets the number of command lists and
// allocators in each upload pool.
func WithTextureListCount(n int) TextureLoaderBuilderOption {
	return func(l *textureLoader) {
		l.lists = n
	}
}

// WithDecodeWorkers is an option builder that sets the maximum number of concurrent image
// decodes.
//
// Parameters:
//   - n: the worker limit
//
// Returns:
//   - TextureLoaderBuilderOption: a function that applies the worker option to a texture loader
func WithDecodeWorkers(n int) TextureLoaderBuilderOption {
	return func(l *textureLoader) {
		l.decodeWorkers = n
	}
}

// WithTextureFormat is an option builder that sets the texel format textures are uploaded in.
// Only the 8-bit RGBA formats are accepted.
func WithTextureFormat(f gpu.Format) TextureLoaderBuilderOption {
	return func(l *textureLoader) {
		if f != gpu.FormatRGBA8Unorm && f != gpu.FormatRGBA8UnormSRGB {
			panic("loader: texture format must be RGBA8")
		}
		l.format = f
	}
}
