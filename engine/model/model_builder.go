package model

import (
	"github.com/Carmen-Shannon/srender/engine/handle"
)

// InstanceBuilderOption is a functional option for configuring an Instance via NewInstance.
type InstanceBuilderOption func(*Instance)

// WithTexture is an option builder that sets the diffuse texture of the Instance.
//
// Parameters:
//   - texture: the texture loader handle
//
// Returns:
//   - InstanceBuilderOption: a function that applies the texture option to an instance
func WithTexture(texture handle.Handle) InstanceBuilderOption {
	return func(i *Instance) {
		i.Texture = texture
	}
}

// WithBaseColor is an option builder that sets the base color of the Instance.
//
// Parameters:
//   - color: the RGBA base color
//
// Returns:
//   - InstanceBuilderOption: a function that applies the color option to an instance
func WithBaseColor(color [4]float32) InstanceBuilderOption {
	return func(i *Instance) {
		i.BaseColor = color
	}
}

// WithCastsShadow is an option builder that sets whether the Instance is drawn into the
// shadow cube.
//
// Parameters:
//   - casts: true to draw into the shadow cube
//
// Returns:
//   - InstanceBuilderOption: a function that applies the option to an instance
func WithCastsShadow(casts bool) InstanceBuilderOption {
	return func(i *Instance) {
		i.CastsShadow = casts
	}
}

// WithReceivesShadow is an option builder that sets whether the Instance samples the shadow
// cube.
//
// Parameters:
//   - receives: true to sample the shadow cube
//
// Returns:
//   - InstanceBuilderOption: a function that applies the option to an instance
func WithReceivesShadow(receives bool) InstanceBuilderOption {
	return func(i *Instance) {
		i.ReceivesShadow = receives
	}
}

// WithHidden is an option builder that hides the Instance from every pass.
func WithHidden(hidden bool) InstanceBuilderOption {
	return func(i *Instance) {
		i.Hidden = hidden
	}
}
