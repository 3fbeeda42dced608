package renderer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/config"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/srender/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dev *gputest.FakeDevice
	sc  *gputest.SwapChain
	r   Renderer
}

func newHarness(t *testing.T, options ...RendererBuilderOption) *harness {
	t.Helper()
	h := &harness{dev: gputest.NewFakeDevice()}
	h.sc = gputest.NewSwapChain(h.dev, 2, 64, 48)
	lib, err := shader.NewLibrary()
	require.NoError(t, err)

	opts := append([]RendererBuilderOption{
		WithShaderLibrary(lib),
		WithShadowResolution(16),
		WithDescriptorCapacity(256),
		WithGPUWaitTimeout(time.Second),
	}, options...)
	h.r, err = NewRendererWithBackend(context.Background(), NewRendererBackend(BackendTypeWGPU, h.dev, h.sc), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		h.dev.AutoComplete = true
		assert.NoError(t, h.r.Shutdown(context.Background()))
	})
	return h
}

func quad() *model.MeshData {
	return &model.MeshData{
		Name:          "quad",
		Positions:     [][3]float32{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}},
		Normals:       [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:           [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Indices:       []uint32{0, 1, 2, 0, 2, 3},
		MaterialIndex: -1,
	}
}

// scene returns one quad in front of a camera at z = 5.
func (h *harness) scene(t *testing.T) *FrameInput {
	t.Helper()
	mesh, err := h.r.Meshes().GetOrCreateMesh(context.Background(), "quad", quad())
	require.NoError(t, err)
	in := &FrameInput{
		Models:     []model.Instance{model.NewInstance(1, mesh)},
		Transforms: []common.Mat4{common.IdentityMat4()},
	}
	common.LookAt(in.View[:], 0, 0, 5, 0, 0, 0, 0, 1, 0)
	return in
}

func uiData() *pipeline.UIDrawData {
	return &pipeline.UIDrawData{
		DisplaySize: [2]float32{64, 48},
		Lists: []pipeline.UIDrawList{{
			Vertices: []shader.SUIVertex{{Position: [2]float32{0, 0}}, {Position: [2]float32{10, 0}}, {Position: [2]float32{10, 10}}},
			Indices:  []uint32{0, 1, 2},
			Commands: []pipeline.UIDrawCommand{{ClipRect: [4]float32{0, 0, 64, 48}, ElemCount: 3}},
		}},
	}
}

func countKind(subs []gputest.Submission, kind gpu.OpKind) int {
	n := 0
	for _, s := range subs {
		for _, op := range s.Ops {
			if op.Kind == kind {
				n++
			}
		}
	}
	return n
}

func onlyKind(s gputest.Submission, kind gpu.OpKind) bool {
	if len(s.Ops) == 0 {
		return false
	}
	for _, op := range s.Ops {
		if op.Kind != kind {
			return false
		}
	}
	return true
}

func TestRenderFrameRunsEveryPassInOrder(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	in.UI = uiData()
	h.r.TempGeometry().DrawLine(pipeline.TempLayerInWorld, common.Vec3{}, common.Vec3{1, 0, 0}, [4]float32{1, 1, 1, 1})
	h.r.TempGeometry().DrawTriangle(pipeline.TempLayerOverWorld, common.Vec3{}, common.Vec3{1, 0, 0}, common.Vec3{0, 1, 0}, [4]float32{1, 0, 0, 1})

	start := len(h.dev.Submissions)
	require.NoError(t, h.r.RenderFrame(context.Background(), in))
	subs := h.dev.Submissions[start:]

	// begin, ui copy, shadow, world, temp in world, clear depth, temp over world, ui, end
	require.Len(t, subs, 9)
	begin := subs[0]
	assert.Equal(t, gpu.CommandListTypeDirect, begin.Queue)
	require.Equal(t, gpu.OpBarrier, begin.Ops[0].Kind)
	assert.Equal(t, gpu.ResourceStateRenderTarget, begin.Ops[0].Barrier.After)
	assert.Equal(t, 1, countKind(subs[:1], gpu.OpClearRenderTarget))
	assert.Equal(t, 1, countKind(subs[:1], gpu.OpClearDepthStencil))

	assert.Equal(t, gpu.CommandListTypeCopy, subs[1].Queue, "ui buffers go through the copy queue")
	assert.Equal(t, 6, countKind(subs[2:3], gpu.OpDrawIndexed), "one draw per shadow cube face")
	assert.Equal(t, 1, countKind(subs[3:4], gpu.OpDrawIndexed), "world pass")
	assert.Equal(t, 1, countKind(subs[4:5], gpu.OpDraw), "in-world line batch")
	assert.True(t, onlyKind(subs[5], gpu.OpClearDepthStencil), "depth cleared between the temp layers")
	assert.Equal(t, 1, countKind(subs[6:7], gpu.OpDraw), "over-world triangle batch")
	assert.Equal(t, 1, countKind(subs[7:8], gpu.OpDrawIndexed), "ui pass")
	end := subs[8]
	require.Len(t, end.Ops, 1)
	assert.Equal(t, gpu.ResourceStatePresent, end.Ops[0].Barrier.After)
	for _, i := range []int{3, 4, 6, 7} {
		assert.Equal(t, 1, countKind(subs[i:i+1], gpu.OpSetRenderTargets), "%s binds the back buffer", subs[i].Label)
		assert.Equal(t, 1, countKind(subs[i:i+1], gpu.OpSetViewport), "%s sets its viewport", subs[i].Label)
	}

	assert.Equal(t, 1, h.sc.Presents)
	assert.Equal(t, gpu.ResourceStatePresent, h.sc.BackBuffer(0).State())
	assert.Equal(t, 1, h.sc.CurrentBackBufferIndex())

	stats := h.r.Stats()
	assert.EqualValues(t, 1, stats.Frame)
	assert.Equal(t, 1, stats.Drawn)
	assert.Equal(t, 2, stats.TempDraws)
	assert.Equal(t, 1, stats.UIDraws)
	assert.Equal(t, []uint64{stats.FenceValue, 0}, h.r.FenceValues())

	// the queue is consumed by the frame
	lines, tris := h.r.TempGeometry().Pending(pipeline.TempLayerInWorld)
	assert.Zero(t, lines+tris)
}

func TestRenderFrameSkipsOptionalPasses(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	start := len(h.dev.Submissions)
	require.NoError(t, h.r.RenderFrame(context.Background(), in))
	subs := h.dev.Submissions[start:]

	// no ui data: neither the copy nor the ui pass; no temp geometry: the temp lists draw nothing
	require.Len(t, subs, 7)
	for _, s := range subs {
		assert.Equal(t, gpu.CommandListTypeDirect, s.Queue)
	}
	assert.Zero(t, countKind(subs, gpu.OpDraw))
}

func TestFenceValuesBoundFramesInFlight(t *testing.T) {
	h := newHarness(t, WithGPUWaitTimeout(20*time.Millisecond))
	in := h.scene(t)
	ctx := context.Background()
	h.dev.AutoComplete = false

	require.NoError(t, h.r.RenderFrame(ctx, in))
	require.NoError(t, h.r.RenderFrame(ctx, in))
	fv := h.r.FenceValues()
	assert.Greater(t, fv[1], fv[0])
	assert.Equal(t, fv[1], h.r.Stats().FenceValue)

	// back buffer 0 comes round again while its frame is still on the GPU
	err := h.r.RenderFrame(ctx, in)
	require.ErrorIs(t, err, gpu.ErrWaitTimeout)
	assert.Equal(t, 2, h.sc.Presents)

	h.dev.Complete(-1)
	require.NoError(t, h.r.RenderFrame(ctx, in))
	assert.Equal(t, 3, h.sc.Presents)
	assert.Greater(t, h.r.FenceValues()[0], fv[1])
}

func TestTwoFramesInFlightWithoutCompletion(t *testing.T) {
	tests := []struct {
		name    string
		options []RendererBuilderOption
	}{
		{"default config", []RendererBuilderOption{WithConfig(config.Default()), WithShadowResolution(16)}},
		{"one frame of allocators", []RendererBuilderOption{WithCommandListPools(4, frameDirectLists, 2, 4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.options...)
			in := h.scene(t)
			ctx := context.Background()
			h.dev.AutoComplete = false

			require.NoError(t, h.r.RenderFrame(ctx, in))
			require.NoError(t, h.r.RenderFrame(ctx, in), "the second frame records while the first is on the GPU")
			assert.Zero(t, h.r.Stats().Skipped)
			assert.Equal(t, 2, h.sc.Presents)
			pool := h.r.(*renderer).directPool
			assert.GreaterOrEqual(t, pool.FreeAllocatorCount()+pool.ActiveAllocators(), 2*frameDirectLists)
		})
	}
}

func TestFrameSkippedWhenAllocatorsRunOut(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	ctx := context.Background()
	h.dev.AutoComplete = false

	// keep direct allocators busy on the GPU until less than a frame's worth is free
	pool := h.r.(*renderer).directPool
	for pool.FreeAllocatorCount() >= frameDirectLists {
		lh, err := pool.AllocList()
		require.NoError(t, err)
		_, err = pool.ExecuteAndFreeList(lh)
		require.NoError(t, err)
	}
	submitted := len(h.dev.Submissions)

	err := h.r.RenderFrame(ctx, in)
	require.ErrorIs(t, err, gpu.ErrNoResourceAvailable)
	assert.Len(t, h.dev.Submissions, submitted, "a skipped frame submits nothing")
	assert.EqualValues(t, 1, h.r.Stats().Skipped)
	assert.Zero(t, h.sc.Presents)

	h.dev.Complete(-1)
	require.NoError(t, h.r.RenderFrame(ctx, in))
	assert.Equal(t, 1, h.sc.Presents)
}

func TestResizeRaisesFenceValuesToTheirMax(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	ctx := context.Background()
	require.NoError(t, h.r.RenderFrame(ctx, in))
	require.NoError(t, h.r.RenderFrame(ctx, in))
	before := h.r.FenceValues()
	require.Less(t, before[0], before[1])

	require.NoError(t, h.r.Resize(ctx, 128, 96))
	assert.Equal(t, []uint64{before[1], before[1]}, h.r.FenceValues())
	assert.Equal(t, 1, h.sc.Resizes)
	w, ht := h.r.Size()
	assert.EqualValues(t, 128, w)
	assert.EqualValues(t, 96, ht)

	// same size is a no-op
	require.NoError(t, h.r.Resize(ctx, 128, 96))
	assert.Equal(t, 1, h.sc.Resizes)

	require.NoError(t, h.r.RenderFrame(ctx, in))
	assert.Equal(t, 3, h.sc.Presents)
}

func TestMinimizedWindowPausesRendering(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	ctx := context.Background()

	require.NoError(t, h.r.Resize(ctx, 0, 0))
	start := len(h.dev.Submissions)
	require.NoError(t, h.r.RenderFrame(ctx, in))
	assert.Len(t, h.dev.Submissions, start)
	assert.Zero(t, h.sc.Presents)

	require.NoError(t, h.r.Resize(ctx, 64, 48))
	assert.Equal(t, 1, h.sc.Resizes, "restoring recreates the targets")
	require.NoError(t, h.r.RenderFrame(ctx, in))
	assert.Equal(t, 1, h.sc.Presents)
}

func TestFailedFrameLeavesBackBufferPresentable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	good := h.scene(t)
	bad := &FrameInput{
		View:       good.View,
		Models:     []model.Instance{model.NewInstance(9, handle.Handle{Index: 40, Generation: 3})},
		Transforms: []common.Mat4{common.IdentityMat4()},
	}

	err := h.r.RenderFrame(ctx, bad)
	require.Error(t, err)
	assert.False(t, errors.Is(err, gpu.ErrNoResourceAvailable))
	assert.Zero(t, h.sc.Presents)
	assert.Equal(t, gpu.ResourceStatePresent, h.sc.BackBuffer(0).State())
	assert.NotZero(t, h.r.FenceValues()[0], "the recovery list is waited for like a frame")

	require.NoError(t, h.r.RenderFrame(ctx, good))
	assert.Equal(t, 1, h.sc.Presents)
}

func TestRenderFrameRejectsMismatchedTransforms(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	in.Transforms = nil
	start := len(h.dev.Submissions)
	assert.Error(t, h.r.RenderFrame(context.Background(), in))
	assert.Len(t, h.dev.Submissions, start)
}

func TestReloadShadersRebuildsUsers(t *testing.T) {
	h := newHarness(t)
	assert.Len(t, h.r.Pipelines(), 6)
	lines := h.r.Pipeline("temp lines")
	require.NotNil(t, lines)
	old := lines.State()

	rebuilt, err := h.r.ReloadShaders(context.Background(), shader.ProgramTemp)
	require.NoError(t, err)
	assert.Equal(t, []string{"temp lines", "temp triangles"}, rebuilt)
	assert.NotSame(t, old, lines.State())

	rebuilt, err = h.r.ReloadShaders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rebuilt, "nothing changed on disk")
}

func TestReleaseMeshInvalidatesHandle(t *testing.T) {
	h := newHarness(t)
	in := h.scene(t)
	ctx := context.Background()
	require.NoError(t, h.r.RenderFrame(ctx, in))
	before := h.r.Meshes().Count()

	h.r.ReleaseMesh(in.Models[0].Mesh)
	assert.Equal(t, before-1, h.r.Meshes().Count())
	_, err := h.r.Meshes().Get(in.Models[0].Mesh)
	assert.Error(t, err)

	// a frame still naming the released mesh fails instead of drawing freed buffers
	assert.Error(t, h.r.RenderFrame(ctx, in))
	require.NoError(t, h.r.RenderFrame(ctx, &FrameInput{View: in.View}))
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.RenderFrame(ctx, h.scene(t)))
	require.NoError(t, h.r.Shutdown(ctx))
	assert.ErrorIs(t, h.r.RenderFrame(ctx, &FrameInput{}), ErrShutdown)
	assert.ErrorIs(t, h.r.Resize(ctx, 10, 10), ErrShutdown)
	assert.NoError(t, h.r.Shutdown(ctx), "second shutdown is a no-op")
	assert.False(t, h.dev.Released, "a caller owned device is left alone")
}

func TestSetLight(t *testing.T) {
	h := newHarness(t, WithLight([3]float32{1, 2, 3}))
	assert.Equal(t, [3]float32{1, 2, 3}, h.r.Light())
	h.r.SetLight([3]float32{4, 5, 6})
	assert.Equal(t, [3]float32{4, 5, 6}, h.r.Light())
}
