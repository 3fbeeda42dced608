package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/model"
)

// extractMaterials reads the base color factor and base color texture of every material.
// Textures are returned as sources; decoding happens in the texture loader.
//
// Returns:
//   - []model.Material: one entry per document material
//   - error: a texture or image reference out of range
func (p *gltfParser) extractMaterials() ([]model.Material, error) {
	out := make([]model.Material, len(p.doc.Materials))
	for i, m := range p.doc.Materials {
		mat := model.Material{Name: m.Name, BaseColor: [4]float32{1, 1, 1, 1}}
		if mat.Name == "" {
			mat.Name = fmt.Sprintf("material_%d", i)
		}
		if m.PBR != nil {
			if m.PBR.BaseColorFactor != nil {
				mat.BaseColor = *m.PBR.BaseColorFactor
			}
			if m.PBR.BaseColorTexture != nil {
				src, err := p.textureSource(m.PBR.BaseColorTexture.Index, mat.Name+" base color")
				if err != nil {
					return nil, fmt.Errorf("material %q: %w", mat.Name, err)
				}
				mat.BaseColorTexture = src
			}
		}
		out[i] = mat
	}
	return out, nil
}

// textureSource resolves a texture to the image it samples.
func (p *gltfParser) textureSource(textureIndex int, name string) (*common.TextureSource, error) {
	if textureIndex < 0 || textureIndex >= len(p.doc.Textures) {
		return nil, fmt.Errorf("%w: texture %d", ErrInvalidGLTF, textureIndex)
	}
	tex := p.doc.Textures[textureIndex]
	if tex.Source == nil {
		// extension-only images (KTX2, WebP through EXT_texture_webp) are not read
		return nil, nil
	}
	data, path, mime, err := p.image(*tex.Source)
	if err != nil {
		return nil, err
	}
	if n := p.doc.Images[*tex.Source].Name; n != "" {
		name = n
	}
	return &common.TextureSource{Name: name, Path: path, Data: data, MimeType: mime}, nil
}
