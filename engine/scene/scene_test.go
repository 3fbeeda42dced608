package scene

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/camera"
	"github.com/Carmen-Shannon/srender/engine/game_object"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/light"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T, opts ...SceneBuilderOption) Scene {
	t.Helper()
	cam := camera.NewDebugCamera(1, camera.WithEasing(0, nil))
	s, err := NewScene("test", cam, append([]SceneBuilderOption{WithUpdateWorkers(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestAddAssignsIDs(t *testing.T) {
	s := newTestScene(t, WithObjects(game_object.NewGameObject(game_object.WithID(7))))
	assert.Equal(t, 1, s.Count())

	obj := game_object.NewGameObject()
	h, err := s.Add(obj)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), obj.ID(), "IDs continue after the largest seen")

	got, err := s.Get(h)
	require.NoError(t, err)
	assert.Same(t, obj, got)
}

func TestAddFailsAtCapacity(t *testing.T) {
	s := newTestScene(t, WithCapacity(1))
	_, err := s.Add(game_object.NewGameObject())
	require.NoError(t, err)
	_, err = s.Add(game_object.NewGameObject())
	assert.ErrorIs(t, err, handle.ErrFull)
}

func TestRemoveInvalidatesHandle(t *testing.T) {
	s := newTestScene(t)
	h, err := s.Add(game_object.NewGameObject())
	require.NoError(t, err)

	assert.True(t, s.Remove(h))
	assert.False(t, s.Remove(h), "stale handle")
	_, err = s.Get(h)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestFrameSkipsDisabledObjects(t *testing.T) {
	mesh := handle.Handle{Index: 3, Generation: 1}
	a := game_object.NewGameObject(game_object.WithMesh(mesh), game_object.WithPosition(1, 2, 3))
	hidden := game_object.NewGameObject(game_object.WithEnabled(false))
	b := game_object.NewGameObject(game_object.WithScale(2, 2, 2))
	s := newTestScene(t, WithObjects(a, hidden, b))

	var in renderer.FrameInput
	s.Frame(&in)
	require.Len(t, in.Models, 2)
	require.Len(t, in.Transforms, 2)
	assert.Equal(t, mesh, in.Models[0].Mesh)
	assert.Equal(t, a.ID(), in.Models[0].ID)
	assert.Equal(t, b.ID(), in.Models[1].ID)
	assert.Equal(t, a.Transform(), in.Transforms[0])
	assert.Equal(t, b.Transform(), in.Transforms[1])
	assert.Equal(t, s.Camera().ViewMatrix(), in.View)
	assert.Equal(t, s.Camera().ProjectionMatrix(), in.Projection)

	hidden.SetEnabled(true)
	s.Frame(&in)
	assert.Len(t, in.Models, 3, "slices are refilled, not appended to")
}

func TestFramePointsAnimatorsAtModels(t *testing.T) {
	anim := animator.NewAnimator(animator.WithInstances(-1, -1, -1))
	static := game_object.NewGameObject()
	first := game_object.NewGameObject(game_object.WithAnimator(anim, 0))
	off := game_object.NewGameObject(game_object.WithAnimator(anim, 1), game_object.WithEnabled(false))
	second := game_object.NewGameObject(game_object.WithAnimator(anim, 2))
	s := newTestScene(t, WithObjects(static, first, off, second))

	var in renderer.FrameInput
	s.Frame(&in)
	require.Len(t, in.Animations, 1, "a shared animator is skinned once")
	assert.Same(t, anim, in.Animations[0])
	assert.Equal(t, 1, anim.ModelIndex(0))
	assert.Equal(t, -1, anim.ModelIndex(1))
	assert.Equal(t, 2, anim.ModelIndex(2))

	s.Clear()
	assert.Equal(t, -1, anim.ModelIndex(0))
	s.Frame(&in)
	assert.Empty(t, in.Animations)
	assert.Empty(t, in.Models)
}

func TestRemoveDetachesAnimatorInstance(t *testing.T) {
	anim := animator.NewAnimator(animator.WithInstances(-1))
	s := newTestScene(t)
	h, err := s.Add(game_object.NewGameObject(game_object.WithAnimator(anim, 0)))
	require.NoError(t, err)

	var in renderer.FrameInput
	s.Frame(&in)
	assert.Equal(t, 0, anim.ModelIndex(0))

	require.True(t, s.Remove(h))
	assert.Equal(t, -1, anim.ModelIndex(0))
	s.Frame(&in)
	assert.Empty(t, in.Animations)
}

func TestUpdateAdvancesObjectsAndAnimators(t *testing.T) {
	clip := &model.AnimationClip{Name: "idle", Duration: 10}
	animA := animator.NewAnimator(animator.WithClips(clip), animator.WithInstances(-1))
	animB := animator.NewAnimator(animator.WithClips(clip), animator.WithInstances(-1))
	animA.PlayAnimation(0, 0, true)
	animB.PlayAnimation(0, 0, true)

	spinner := game_object.NewGameObject(game_object.WithRotationSpeed(0, 2, 0))
	s := newTestScene(t, WithObjects(
		spinner,
		game_object.NewGameObject(game_object.WithAnimator(animA, 0)),
		game_object.NewGameObject(game_object.WithAnimator(animB, 0)),
	))

	s.Update(0.5)
	_, ry, _ := spinner.Rotation()
	assert.InDelta(t, 1, ry, 1e-5)
	assert.InDelta(t, 0.5, animA.AnimationTime(0), 1e-5)
	assert.InDelta(t, 0.5, animB.AnimationTime(0), 1e-5)
}

func TestLightSelection(t *testing.T) {
	carrier := game_object.NewGameObject(
		game_object.WithPosition(4, 5, 6),
		game_object.WithLight(light.NewLight()),
	)
	s := newTestScene(t, WithObjects(carrier))

	pos, ok := s.Light()
	require.True(t, ok)
	assert.Equal(t, [3]float32{4, 5, 6}, pos, "attached lights follow their object")

	free := light.NewLight(light.WithPosition(1, 1, 1))
	s.AddLight(free)
	pos, ok = s.Light()
	require.True(t, ok)
	assert.Equal(t, [3]float32{1, 1, 1}, pos, "free-standing lights win")

	free.SetEnabled(false)
	carrier.SetEnabled(false)
	_, ok = s.Light()
	assert.False(t, ok)
}

func TestNewScenePanicsWithoutCamera(t *testing.T) {
	assert.Panics(t, func() { _, _ = NewScene("x", nil) })
}
