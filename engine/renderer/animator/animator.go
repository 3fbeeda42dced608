package animator

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/chewxy/math32"
)

// NoClip is the clip index of an instance held in its bind pose.
const NoClip = -1

// instanceState holds the CPU-side playback state for a single animated instance.
type instanceState struct {
	modelIndex int
	clipIndex  int

	time, speed                 float32
	loop, blending              bool
	blendTo                     int
	blendToTime                 float32
	blendDuration, blendElapsed float32
}

// animator is the implementation of the Animator interface.
type animator struct {
	mu sync.Mutex

	skeleton  *model.Skeleton
	clips     []*model.AnimationClip
	instances []instanceState

	// scratch poses reused by Pose and JointMatrices
	poseFrom, poseTo []model.Transform
}

// Animator samples skeletal animation clips for every instance of one skinned mesh.
//
// Each instance refers to an entry of the per-frame model slice handed to the renderer and
// carries its own playback time, speed, looping and crossfade state. The skinning pass asks
// the Animator for bind-to-current joint matrices once per frame.
type Animator interface {
	// Skeleton returns the joint hierarchy the clips animate.
	//
	// Returns:
	//   - *model.Skeleton: the skeleton, nil if none was set
	Skeleton() *model.Skeleton

	// SetSkeleton replaces the joint hierarchy. It panics if the hierarchy does not have exactly
	// one root at index 0 with every parent preceding its children.
	//
	// Parameters:
	//   - skel: the skeleton
	SetSkeleton(skel *model.Skeleton)

	// JointCount returns the number of joints of the skeleton.
	//
	// Returns:
	//   - int: the joint count
	JointCount() int

	// AddClip registers an animation clip.
	//
	// Parameters:
	//   - clip: the clip
	//
	// Returns:
	//   - int: the clip index
	AddClip(clip *model.AnimationClip) int

	// ClipIndex returns the index of the clip with the given name, or NoClip.
	//
	// Parameters:
	//   - name: the clip name
	//
	// Returns:
	//   - int: the clip index, NoClip if not found
	ClipIndex(name string) int

	// ClipCount returns the number of registered clips.
	ClipCount() int

	// AddInstance registers a new instance held in its bind pose.
	//
	// Parameters:
	//   - modelIndex: the index of the instance in the per-frame model slice
	//
	// Returns:
	//   - uint32: the index of the newly registered instance
	AddInstance(modelIndex int) uint32

	// RemoveInstance removes the instance at the given index using a swap-remove strategy.
	// Returns the old last index that was swapped and whether a swap occurred.
	//
	// Parameters:
	//   - index: the instance index to remove
	//
	// Returns:
	//   - uint32: the old last index that was swapped into the removed slot (only meaningful when bool is true)
	//   - bool: true if the last instance was swapped into the removed slot
	RemoveInstance(index uint32) (uint32, bool)

	// InstanceCount returns the current number of registered instances.
	//
	// Returns:
	//   - uint32: the number of active instances
	InstanceCount() uint32

	// ModelIndex returns the model slice index of an instance, -1 for an unknown instance.
	ModelIndex(instanceIndex uint32) int

	// SetModelIndex changes the model slice index of an instance.
	SetModelIndex(instanceIndex uint32, modelIndex int)

	// Advance moves every instance's playback forward by deltaTime, wrapping looping clips,
	// clamping the others at their end, and resolving finished crossfades.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the last frame in seconds
	Advance(deltaTime float32)

	// PlayAnimation starts a clip from time 0 at normal speed, cancelling any blend.
	//
	// Parameters:
	//   - instanceIndex: the instance to modify
	//   - clipIndex: the clip to play, NoClip for the bind pose
	//   - loop: whether the animation should loop
	PlayAnimation(instanceIndex uint32, clipIndex int, loop bool)

	// BlendToAnimation crossfades from the current clip to another over blendDuration seconds.
	//
	// Parameters:
	//   - instanceIndex: the instance to modify
	//   - targetClipIndex: the clip to blend to
	//   - blendDuration: the crossfade length in seconds, 0 switches immediately
	BlendToAnimation(instanceIndex uint32, targetClipIndex int, blendDuration float32)

	// SetAnimationTime sets the playback time of the current clip.
	SetAnimationTime(instanceIndex uint32, time float32)

	// AnimationTime returns the playback time of the current clip.
	AnimationTime(instanceIndex uint32) float32

	// SetAnimationSpeed sets the playback rate multiplier.
	SetAnimationSpeed(instanceIndex uint32, speed float32)

	// IsBlending reports whether the instance is crossfading.
	IsBlending(instanceIndex uint32) bool

	// BlendProgress returns the crossfade progress in [0, 1), 0 when not blending.
	BlendProgress(instanceIndex uint32) float32

	// CancelBlend stops a crossfade and keeps playing the current clip.
	CancelBlend(instanceIndex uint32)

	// Pose writes the joint-local pose of an instance into out.
	//
	// Parameters:
	//   - instanceIndex: the instance to sample
	//   - out: destination, at least JointCount transforms
	Pose(instanceIndex uint32, out []model.Transform)

	// JointMatrices writes the bind-to-current matrix of every joint of an instance into out.
	//
	// Parameters:
	//   - instanceIndex: the instance to sample
	//   - out: destination, at least JointCount matrices
	JointMatrices(instanceIndex uint32, out []common.Mat4)
}

var _ Animator = &animator{}

// NewAnimator creates an Animator with no clips or instances.
//
// Parameters:
//   - options: a variadic list of AnimatorBuilderOption functions
//
// Returns:
//   - Animator: the configured animator
func NewAnimator(options ...AnimatorBuilderOption) Animator {
	a := &animator{}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *animator) Skeleton() *model.Skeleton {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skeleton
}

func (a *animator) SetSkeleton(skel *model.Skeleton) {
	if err := skel.Validate(); err != nil {
		panic(fmt.Sprintf("animator: invalid joint hierarchy: %v", err))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skeleton = skel
	a.poseFrom = make([]model.Transform, len(skel.Joints))
	a.poseTo = make([]model.Transform, len(skel.Joints))
}

func (a *animator) JointCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skeleton.JointCount()
}

func (a *animator) AddClip(clip *model.AnimationClip) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clips = append(a.clips, clip)
	return len(a.clips) - 1
}

func (a *animator) ClipIndex(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range a.clips {
		if c.Name == name {
			return i
		}
	}
	return NoClip
}

func (a *animator) ClipCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clips)
}

func (a *animator) AddInstance(modelIndex int) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instances = append(a.instances, instanceState{
		modelIndex: modelIndex,
		clipIndex:  NoClip,
		speed:      1,
		blendTo:    NoClip,
	})
	return uint32(len(a.instances) - 1)
}

func (a *animator) RemoveInstance(index uint32) (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := uint32(len(a.instances))
	if index >= n {
		return 0, false
	}
	last := n - 1
	swapped := index != last
	if swapped {
		a.instances[index] = a.instances[last]
	}
	a.instances = a.instances[:last]
	return last, swapped
}

func (a *animator) InstanceCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(len(a.instances))
}

// state returns the playback state of an instance, nil if out of range. Callers hold a.mu.
func (a *animator) state(instanceIndex uint32) *instanceState {
	if instanceIndex >= uint32(len(a.instances)) {
		return nil
	}
	return &a.instances[instanceIndex]
}

// clip returns a registered clip, nil for NoClip or an unknown index. Callers hold a.mu.
func (a *animator) clip(index int) *model.AnimationClip {
	if index < 0 || index >= len(a.clips) {
		return nil
	}
	return a.clips[index]
}

func (a *animator) ModelIndex(instanceIndex uint32) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.state(instanceIndex); s != nil {
		return s.modelIndex
	}
	return -1
}

func (a *animator) SetModelIndex(instanceIndex uint32, modelIndex int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.state(instanceIndex); s != nil {
		s.modelIndex = modelIndex
	}
}

// wrapTime applies the clip's end behaviour to a playback time.
func wrapTime(clip *model.AnimationClip, t float32, loop bool) float32 {
	if clip == nil || clip.Duration <= 0 {
		return t
	}
	if loop {
		t = math32.Mod(t, clip.Duration)
		if t < 0 {
			t += clip.Duration
		}
		return t
	}
	return math32.Max(0, math32.Min(t, clip.Duration))
}

func (a *animator) Advance(deltaTime float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.instances {
		state := &a.instances[i]
		state.time = wrapTime(a.clip(state.clipIndex), state.time+deltaTime*state.speed, state.loop)
		if !state.blending {
			continue
		}
		state.blendElapsed += deltaTime
		state.blendToTime = wrapTime(a.clip(state.blendTo), state.blendToTime+deltaTime*state.speed, state.loop)
		if state.blendElapsed >= state.blendDuration {
			state.clipIndex = state.blendTo
			state.time = state.blendToTime
			state.blending = false
			state.blendElapsed = 0
			state.blendTo = NoClip
		}
	}
}

func (a *animator) PlayAnimation(instanceIndex uint32, clipIndex int, loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.state(instanceIndex)
	if state == nil {
		return
	}
	state.clipIndex = clipIndex
	state.time = 0
	state.speed = 1.0
	state.loop = loop
	state.blending = false
	state.blendElapsed = 0
	state.blendTo = NoClip
}

func (a *animator) BlendToAnimation(instanceIndex uint32, targetClipIndex int, blendDuration float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.state(instanceIndex)
	if state == nil {
		return
	}
	if blendDuration <= 0 {
		state.clipIndex = targetClipIndex
		state.time = 0
		state.blending = false
		state.blendElapsed = 0
		state.blendTo = NoClip
		return
	}
	state.blending = true
	state.blendTo = targetClipIndex
	state.blendToTime = 0
	state.blendDuration = blendDuration
	state.blendElapsed = 0
}

func (a *animator) SetAnimationTime(instanceIndex uint32, time float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state := a.state(instanceIndex); state != nil {
		state.time = wrapTime(a.clip(state.clipIndex), time, state.loop)
	}
}

func (a *animator) AnimationTime(instanceIndex uint32) float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state := a.state(instanceIndex); state != nil {
		return state.time
	}
	return 0
}

func (a *animator) SetAnimationSpeed(instanceIndex uint32, speed float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state := a.state(instanceIndex); state != nil {
		state.speed = speed
	}
}

func (a *animator) IsBlending(instanceIndex uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.state(instanceIndex)
	return state != nil && state.blending
}

func (a *animator) BlendProgress(instanceIndex uint32) float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.state(instanceIndex)
	if state == nil || !state.blending {
		return 0
	}
	return state.blendElapsed / state.blendDuration
}

func (a *animator) CancelBlend(instanceIndex uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state := a.state(instanceIndex); state != nil {
		state.blending = false
		state.blendElapsed = 0
		state.blendTo = NoClip
	}
}

// pose samples an instance into out. Callers hold a.mu.
func (a *animator) pose(instanceIndex uint32, out []model.Transform) {
	if a.skeleton == nil {
		panic("animator: pose requested without a skeleton")
	}
	state := a.state(instanceIndex)
	if state == nil {
		panic(fmt.Sprintf("animator: instance %d out of range", instanceIndex))
	}
	SampleClip(a.skeleton, a.clip(state.clipIndex), state.time, out)
	if !state.blending {
		return
	}
	SampleClip(a.skeleton, a.clip(state.blendTo), state.blendToTime, a.poseTo)
	BlendPoses(out, a.poseTo, state.blendElapsed/state.blendDuration, out)
}

func (a *animator) Pose(instanceIndex uint32, out []model.Transform) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pose(instanceIndex, out)
}

func (a *animator) JointMatrices(instanceIndex uint32, out []common.Mat4) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pose(instanceIndex, a.poseFrom)
	ComposeJointMatrices(a.skeleton, a.poseFrom, out)
}
