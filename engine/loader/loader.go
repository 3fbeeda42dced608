package loader

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/model"
)

// LoadedModel is an imported model with its meshes and textures resident on the GPU.
type LoadedModel struct {
	Name string

	// Imported is the CPU-side data the model was built from.
	Imported *model.ImportedModel

	// Meshes holds one mesh handle per Imported.Meshes entry.
	Meshes []handle.Handle

	// Textures holds the base color texture of each mesh, the zero handle when the mesh has
	// none.
	Textures []handle.Handle

	// BaseColors holds the base color factor of each mesh.
	BaseColors [][4]float32
}

// Instances returns one instance per mesh of the model, textured and colored from its
// materials.
//
// Parameters:
//   - nextID: returns a fresh instance id per call
//   - options: applied to every instance after the material defaults
//
// Returns:
//   - []model.Instance: the instances
func (m *LoadedModel) Instances(nextID func() uint64, options ...model.InstanceBuilderOption) []model.Instance {
	out := make([]model.Instance, len(m.Meshes))
	for i, h := range m.Meshes {
		opts := append([]model.InstanceBuilderOption{
			model.WithTexture(m.Textures[i]),
			model.WithBaseColor(m.BaseColors[i]),
		}, options...)
		out[i] = model.NewInstance(nextID(), h, opts...)
	}
	return out
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	meshes   MeshLoader
	textures TextureLoader

	modelCache map[string]*LoadedModel
}

// Loader imports model files, uploads their meshes and textures through a MeshLoader and a
// TextureLoader, and caches the result by path.
type Loader interface {
	// Load imports a model file with its skeleton and animations. A cached model is returned
	// as is.
	//
	// Parameters:
	//   - ctx: bounds the uploads
	//   - path: the .gltf or .glb file
	//
	// Returns:
	//   - *LoadedModel: the loaded model
	//   - error: ErrUnsupportedFormat, an import error or an upload error
	Load(ctx context.Context, path string) (*LoadedModel, error)

	// LoadMeshOnly imports a model file as static geometry.
	LoadMeshOnly(ctx context.Context, path string) (*LoadedModel, error)

	// LoadReader imports a model from a stream and caches it under name.
	//
	// Parameters:
	//   - ctx: bounds the uploads
	//   - name: the cache key and model name
	//   - r: the reader providing model data
	//   - isGLB: true for binary containers
	//
	// Returns:
	//   - *LoadedModel: the loaded model
	//   - error: an import or upload error
	LoadReader(ctx context.Context, name string, r io.Reader, isGLB bool) (*LoadedModel, error)

	// Get returns a cached model, nil when name was never loaded.
	Get(name string) *LoadedModel

	// Models returns a copy of the cache.
	Models() map[string]*LoadedModel
}

var _ Loader = &loader{}

// NewLoader creates a Loader. Without a MeshLoader the loader only imports, leaving
// LoadedModel.Meshes empty; without a TextureLoader meshes load untextured.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{modelCache: make(map[string]*LoadedModel)}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *loader) cached(key string) *LoadedModel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[key]
}

func (l *loader) Load(ctx context.Context, path string) (*LoadedModel, error) {
	return l.loadPath(ctx, path, loaderBackend.Load)
}

func (l *loader) LoadMeshOnly(ctx context.Context, path string) (*LoadedModel, error) {
	return l.loadPath(ctx, path, loaderBackend.LoadMeshOnly)
}

func (l *loader) loadPath(ctx context.Context, path string, load func(loaderBackend, string) (*model.ImportedModel, error)) (*LoadedModel, error) {
	if m := l.cached(path); m != nil {
		return m, nil
	}
	backend, err := backendFor(path)
	if err != nil {
		return nil, err
	}
	imported, err := load(backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.store(ctx, path, imported)
}

func (l *loader) LoadReader(ctx context.Context, name string, r io.Reader, isGLB bool) (*LoadedModel, error) {
	if m := l.cached(name); m != nil {
		return m, nil
	}
	imported, err := gltfLoaderBackend{}.LoadReader(name, r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return l.store(ctx, name, imported)
}

// store uploads an imported model and caches it. A concurrent load of the same key keeps the
// first result.
func (l *loader) store(ctx context.Context, key string, imported *model.ImportedModel) (*LoadedModel, error) {
	m, err := l.upload(ctx, key, imported)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.modelCache[key]; ok {
		return prev, nil
	}
	l.modelCache[key] = m
	common.Logger().Info("model loaded", "model", m.Name, "key", key, "meshes", len(m.Meshes), "animations", len(imported.Animations))
	return m, nil
}

// upload creates the GPU meshes and textures of a model. Material textures are decoded in
// parallel.
func (l *loader) upload(ctx context.Context, key string, imported *model.ImportedModel) (*LoadedModel, error) {
	m := &LoadedModel{
		Name:       imported.Name,
		Imported:   imported,
		Textures:   make([]handle.Handle, len(imported.Meshes)),
		BaseColors: make([][4]float32, len(imported.Meshes)),
	}

	var matTextures []handle.Handle
	if l.textures != nil && len(imported.Materials) > 0 {
		srcs := make([]*common.TextureSource, len(imported.Materials))
		for i := range imported.Materials {
			srcs[i] = imported.Materials[i].BaseColorTexture
		}
		var err error
		if matTextures, err = l.textures.LoadTextures(ctx, srcs); err != nil {
			return nil, fmt.Errorf("model %q textures: %w", imported.Name, err)
		}
	}

	for i := range imported.Meshes {
		data := &imported.Meshes[i]
		m.BaseColors[i] = [4]float32{1, 1, 1, 1}
		if mi := data.MaterialIndex; mi >= 0 && mi < len(imported.Materials) {
			m.BaseColors[i] = imported.Materials[mi].BaseColor
			if imported.Materials[mi].BaseColorTexture != nil && mi < len(matTextures) {
				m.Textures[i] = matTextures[mi]
			}
		}
		if l.meshes == nil {
			continue
		}
		var h handle.Handle
		var err error
		if data.Skinned() {
			h, err = l.meshes.GetOrCreateMeshSkinned(ctx, key, data, imported.Skeleton)
		} else {
			h, err = l.meshes.GetOrCreateMesh(ctx, key, data)
		}
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", imported.Name, err)
		}
		m.Meshes = append(m.Meshes, h)
	}
	return m, nil
}

func (l *loader) Get(name string) *LoadedModel {
	return l.cached(name)
}

func (l *loader) Models() map[string]*LoadedModel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.modelCache)
}
