package game_object

import (
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/light"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithEnabled sets whether the GameObject is drawn.
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled = enabled
	}
}

// WithMesh sets the mesh loader handle the object draws.
//
// Parameters:
//   - mesh: the mesh handle
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the mesh
func WithMesh(mesh handle.Handle) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.instance.Mesh = mesh
	}
}

// WithTexture sets the diffuse texture handle.
func WithTexture(tex handle.Handle) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.instance.Texture = tex
	}
}

// WithBaseColor sets the color multiplying the texture.
func WithBaseColor(color [4]float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.instance.BaseColor = color
	}
}

// WithShadows sets whether the object casts and receives shadows.
//
// Parameters:
//   - casts: include the object in the shadow pass
//   - receives: sample the shadow cube when shading the object
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the shadow flags
func WithShadows(casts, receives bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.instance.CastsShadow = casts
		obj.instance.ReceivesShadow = receives
	}
}

// WithAnimator binds the object to one instance of an Animator.
//
// Parameters:
//   - anim: the animator
//   - instance: the instance index returned by anim.AddInstance
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the animator
func WithAnimator(anim animator.Animator, instance uint32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.animator = anim
		obj.animatorInstance = instance
	}
}

// WithPosition sets the initial world-space position.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = [3]float32{x, y, z}
	}
}

// WithScale sets the initial scale factors.
func WithScale(sx, sy, sz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.scale = [3]float32{sx, sy, sz}
	}
}

// WithRotation sets the initial Euler rotation in radians.
func WithRotation(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotation = [3]float32{rx, ry, rz}
	}
}

// WithRotationSpeed sets the rotation applied per second by Update.
//
// Parameters:
//   - rx, ry, rz: radians per second around each axis
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = [3]float32{rx, ry, rz}
	}
}

// WithLight attaches a Light that follows the object.
//
// Parameters:
//   - l: the Light to attach
//
// Returns:
//   - GameObjectBuilderOption: functional option to attach the light
func WithLight(l light.Light) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.attachedLight = l
	}
}
