package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/srender/engine/model"
)

// gltfLoaderBackend imports .gltf and .glb files.
type gltfLoaderBackend struct{}

var _ loaderBackend = gltfLoaderBackend{}

func (gltfLoaderBackend) Load(path string) (*model.ImportedModel, error) {
	p, err := parseGLTFFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p.importModel(modelName(p.doc, path), true)
}

func (gltfLoaderBackend) LoadMeshOnly(path string) (*model.ImportedModel, error) {
	p, err := parseGLTFFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p.importModel(modelName(p.doc, path), false)
}

func (gltfLoaderBackend) LoadReader(name string, r io.Reader, isGLB bool) (*model.ImportedModel, error) {
	p, err := parseGLTFReader(r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return p.importModel(name, true)
}

// importModel extracts meshes and materials, and with skinned set the skin of the first
// skinned mesh and every animation over it. Only one skin per model is supported; meshes bound
// to other skins are imported static.
//
// Parameters:
//   - name: the model name
//   - skinned: whether to extract the skeleton and animations
//
// Returns:
//   - *model.ImportedModel: the imported model
//   - error: the first extraction error
func (p *gltfParser) importModel(name string, skinned bool) (*model.ImportedModel, error) {
	m := &model.ImportedModel{Name: name}

	var skel *gltfSkeleton
	if skinned && len(p.doc.Skins) > 0 {
		skin := 0
		for mi := range p.doc.Meshes {
			if s := p.skinForMesh(mi); s >= 0 {
				skin = s
				break
			}
		}
		var err error
		if skel, err = p.extractSkeleton(skin); err != nil {
			return nil, err
		}
		m.Skeleton = skel.skeleton
		if m.Animations, err = p.extractAnimations(skel); err != nil {
			return nil, err
		}
	}

	var err error
	if m.Meshes, err = p.extractMeshes(skel); err != nil {
		return nil, err
	}
	if m.Materials, err = p.extractMaterials(); err != nil {
		return nil, err
	}
	for i := range m.Meshes {
		if mi := m.Meshes[i].MaterialIndex; mi >= len(m.Materials) {
			return nil, fmt.Errorf("%w: mesh %q material %d of %d", ErrInvalidGLTF, m.Meshes[i].Name, mi, len(m.Materials))
		}
	}
	return m, nil
}

// modelName prefers the default scene's name and falls back to the file name without its
// extension.
func modelName(doc *gltfDocument, path string) string {
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		if n := doc.Scenes[*doc.Scene].Name; n != "" {
			return n
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
