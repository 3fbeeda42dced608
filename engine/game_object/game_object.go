package game_object

import (
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/light"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
)

type gameObject struct {
	mu *sync.Mutex

	id       uint64
	enabled  bool
	instance model.Instance

	animator         animator.Animator
	animatorInstance uint32

	position      [3]float32
	rotation      [3]float32
	rotationSpeed [3]float32
	scale         [3]float32

	attachedLight light.Light
}

// GameObject is a scene entity: a mesh instance with a transform, optionally animated by one
// instance of an Animator and optionally carrying a light that follows it.
type GameObject interface {
	// ID returns the object's identifier, also used as the model instance ID.
	//
	// Returns:
	//   - uint64: the object ID, 0 until assigned
	ID() uint64

	// SetID assigns the identifier. Scenes assign one on Add when it is 0.
	SetID(id uint64)

	// Enabled returns whether this object is drawn.
	Enabled() bool

	// SetEnabled sets whether the object is drawn.
	SetEnabled(enabled bool)

	// Instance returns the model instance the renderer draws, with the object's ID.
	//
	// Returns:
	//   - model.Instance: a copy of the instance
	Instance() model.Instance

	// SetMesh sets the mesh loader handle of the geometry.
	SetMesh(mesh handle.Handle)

	// SetTexture sets the texture loader handle of the diffuse texture.
	SetTexture(tex handle.Handle)

	// SetBaseColor sets the color multiplying the texture.
	SetBaseColor(color [4]float32)

	// Animator returns the Animator driving this object's skin and the instance index within
	// it, nil when the object is static.
	//
	// Returns:
	//   - animator.Animator: the animator or nil
	//   - uint32: the instance index
	Animator() (animator.Animator, uint32)

	// SetAnimator binds the object to one instance of an Animator. Pass nil to make it static.
	//
	// Parameters:
	//   - anim: the animator
	//   - instance: the instance index returned by anim.AddInstance
	SetAnimator(anim animator.Animator, instance uint32)

	// Position returns the world-space position.
	Position() (x, y, z float32)

	// SetPosition moves the object.
	SetPosition(x, y, z float32)

	// Rotation returns the Euler rotation in radians.
	Rotation() (rx, ry, rz float32)

	// SetRotation sets the Euler rotation in radians.
	SetRotation(rx, ry, rz float32)

	// RotationSpeed returns the rotation applied per second by Update.
	RotationSpeed() (rx, ry, rz float32)

	// SetRotationSpeed sets the rotation applied per second by Update.
	SetRotationSpeed(rx, ry, rz float32)

	// Scale returns the scale factors.
	Scale() (sx, sy, sz float32)

	// SetScale sets the scale factors.
	SetScale(sx, sy, sz float32)

	// Transform returns the model matrix: translation * rotation * scale.
	//
	// Returns:
	//   - common.Mat4: the model matrix
	Transform() common.Mat4

	// Update applies the rotation speed over dt seconds and moves an attached light to the
	// object's position.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Update(dt float32)

	// Light returns the Light attached to this object, or nil if none is set.
	Light() light.Light

	// SetLight attaches a Light that follows the object. Pass nil to detach.
	SetLight(l light.Light)
}

var _ GameObject = &gameObject{}

// NewGameObject creates an enabled object at the origin with unit scale.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	g := &gameObject{
		mu:       &sync.Mutex{},
		enabled:  true,
		instance: model.NewInstance(0, handle.Handle{}),
		scale:    [3]float32{1, 1, 1},
	}
	for _, opt := range options {
		opt(g)
	}
	g.syncLight()
	return g
}

func (g *gameObject) ID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *gameObject) SetID(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

func (g *gameObject) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

func (g *gameObject) Instance() model.Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst := g.instance
	inst.ID = g.id
	inst.Hidden = inst.Hidden || !g.enabled
	return inst
}

func (g *gameObject) SetMesh(mesh handle.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instance.Mesh = mesh
}

func (g *gameObject) SetTexture(tex handle.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instance.Texture = tex
}

func (g *gameObject) SetBaseColor(color [4]float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instance.BaseColor = color
}

func (g *gameObject) Animator() (animator.Animator, uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.animator, g.animatorInstance
}

func (g *gameObject) SetAnimator(anim animator.Animator, instance uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.animator, g.animatorInstance = anim, instance
}

func (g *gameObject) Position() (x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position[0], g.position[1], g.position[2]
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = [3]float32{x, y, z}
	g.syncLight()
}

func (g *gameObject) Rotation() (rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotation[0], g.rotation[1], g.rotation[2]
}

func (g *gameObject) SetRotation(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = [3]float32{rx, ry, rz}
}

func (g *gameObject) RotationSpeed() (rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotationSpeed[0], g.rotationSpeed[1], g.rotationSpeed[2]
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = [3]float32{rx, ry, rz}
}

func (g *gameObject) Scale() (sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scale[0], g.scale[1], g.scale[2]
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = [3]float32{sx, sy, sz}
}

func (g *gameObject) Transform() common.Mat4 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var m common.Mat4
	common.BuildModelMatrix(m[:],
		g.position[0], g.position[1], g.position[2],
		g.rotation[0], g.rotation[1], g.rotation[2],
		g.scale[0], g.scale[1], g.scale[2])
	return m
}

func (g *gameObject) Update(dt float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.rotation {
		g.rotation[i] += g.rotationSpeed[i] * dt
	}
	g.syncLight()
}

func (g *gameObject) Light() light.Light {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attachedLight
}

func (g *gameObject) SetLight(l light.Light) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attachedLight = l
	g.syncLight()
}

// syncLight moves the attached light to the object. Caller must hold the mutex.
func (g *gameObject) syncLight() {
	if g.attachedLight != nil {
		g.attachedLight.SetPosition(g.position[0], g.position[1], g.position[2])
	}
}
