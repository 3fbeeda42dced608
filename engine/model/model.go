package model

import (
	"github.com/Carmen-Shannon/srender/engine/handle"
)

// Instance is one drawable placement of a loaded mesh. The renderer receives instances in a
// slice with a parallel slice of model matrices.
type Instance struct {
	// ID identifies the instance across frames. Per-instance GPU state (skinned vertex
	// streams) is keyed by it.
	ID uint64

	// Mesh is the mesh loader handle of the geometry.
	Mesh handle.Handle

	// Texture is the texture loader handle of the diffuse texture; the zero handle draws with
	// the base color only.
	Texture handle.Handle

	// BaseColor multiplies the texture.
	BaseColor [4]float32

	// CastsShadow includes the instance in the shadow pass.
	CastsShadow bool

	// ReceivesShadow samples the shadow cube when shading the instance.
	ReceivesShadow bool

	// Hidden skips the instance in every pass.
	Hidden bool
}

// NewInstance creates an Instance of mesh that casts and receives shadows with a white base
// color, then applies options.
//
// Parameters:
//   - id: the stable instance id
//   - mesh: the mesh handle
//   - options: a variadic list of InstanceBuilderOption functions
//
// Returns:
//   - Instance: the configured instance
func NewInstance(id uint64, mesh handle.Handle, options ...InstanceBuilderOption) Instance {
	inst := Instance{
		ID:             id,
		Mesh:           mesh,
		BaseColor:      [4]float32{1, 1, 1, 1},
		CastsShadow:    true,
		ReceivesShadow: true,
	}
	for _, opt := range options {
		opt(&inst)
	}
	return inst
}

// Textured reports whether the instance samples a texture.
func (i *Instance) Textured() bool {
	return !i.Texture.IsZero()
}
