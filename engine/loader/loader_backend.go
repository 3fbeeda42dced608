package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/srender/engine/model"
)

// ErrUnsupportedFormat is returned for model files no backend reads.
var ErrUnsupportedFormat = errors.New("loader: unsupported model format")

// loaderBackend imports one model file format into CPU-side model data.
type loaderBackend interface {
	// Load performs a full import: meshes, skeleton, animations and materials.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *model.ImportedModel: the imported model data
	//   - error: error if loading fails
	Load(path string) (*model.ImportedModel, error)

	// LoadMeshOnly imports meshes and materials, skipping the skeleton and animations. Joint
	// influences are dropped so the meshes load static.
	LoadMeshOnly(path string) (*model.ImportedModel, error)

	// LoadReader imports a model from a stream.
	//
	// Parameters:
	//   - name: the model name
	//   - r: the reader providing model data
	//   - isGLB: true for binary containers
	//
	// Returns:
	//   - *model.ImportedModel: the imported model data
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*model.ImportedModel, error)
}

// backendFor selects a backend from a file extension.
func backendFor(path string) (loaderBackend, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
		return gltfLoaderBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
