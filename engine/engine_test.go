package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/srender/engine/camera"
	"github.com/Carmen-Shannon/srender/engine/light"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/Carmen-Shannon/srender/engine/scene"
	"github.com/Carmen-Shannon/srender/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow runs a message loop without a platform window.
type fakeWindow struct {
	mu       sync.Mutex
	closing  bool
	width    int
	height   int
	onResize func(width, height int)
	onUpdate func()
}

var _ window.Window = &fakeWindow{}

func (w *fakeWindow) SetUpdateCallback(cb func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = cb
}

func (w *fakeWindow) SetResizeCallback(cb func(int, int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = cb
}

func (w *fakeWindow) SetScrollCallback(func(float32)) {}

func (w *fakeWindow) SetKeyDownCallback(func(uint32)) {}

func (w *fakeWindow) SetKeyUpCallback(func(uint32)) {}

func (w *fakeWindow) SetMouseButtonCallback(func(int, bool, float32, float32)) {}

func (w *fakeWindow) SetMouseMoveCallback(func(float32, float32)) {}

func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }

func (w *fakeWindow) Minimized() bool { return false }

func (w *fakeWindow) Close() error { return nil }

func (w *fakeWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *fakeWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *fakeWindow) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closing
}

func (w *fakeWindow) RequestClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closing = true
}

func (w *fakeWindow) ProcessMessages() {
	for w.IsRunning() {
		w.mu.Lock()
		cb := w.onUpdate
		w.mu.Unlock()
		if cb != nil {
			cb()
		}
		time.Sleep(time.Millisecond)
	}
}

func (w *fakeWindow) resize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	cb := w.onResize
	w.mu.Unlock()
	cb(width, height)
}

type harness struct {
	dev *gputest.FakeDevice
	win *fakeWindow
	r   renderer.Renderer
	e   *engine
}

func newHarness(t *testing.T, options ...EngineBuilderOption) *harness {
	t.Helper()
	h := &harness{dev: gputest.NewFakeDevice(), win: &fakeWindow{width: 64, height: 48}}
	h.dev.AutoComplete = true
	lib, err := shader.NewLibrary()
	require.NoError(t, err)
	sc := gputest.NewSwapChain(h.dev, 2, 64, 48)
	h.r, err = renderer.NewRendererWithBackend(context.Background(),
		renderer.NewRendererBackend(renderer.BackendTypeWGPU, h.dev, sc),
		renderer.WithShaderLibrary(lib),
		renderer.WithShadowResolution(16),
		renderer.WithDescriptorCapacity(256),
		renderer.WithGPUWaitTimeout(time.Second),
	)
	require.NoError(t, err)

	opts := append([]EngineBuilderOption{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithWindow(h.win),
		WithRenderer(h.r),
		WithTickRate(500),
	}, options...)
	e, err := NewEngine(context.Background(), opts...)
	require.NoError(t, err)
	h.e = e.(*engine)
	t.Cleanup(func() { assert.NoError(t, h.r.Shutdown(context.Background())) })
	return h
}

func newScene(t *testing.T, opts ...scene.SceneBuilderOption) scene.Scene {
	t.Helper()
	s, err := scene.NewScene("main", camera.NewDebugCamera(4.0/3), append([]scene.SceneBuilderOption{scene.WithActive(true)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRunRendersUntilQuit(t *testing.T) {
	h := newHarness(t)
	h.e.AddScene(0, newScene(t))

	var ticks, frames atomic.Int32
	h.e.SetTickCallback(func(float32) { ticks.Add(1) })
	h.e.SetRenderCallback(func(_ float32, in *renderer.FrameInput) {
		if frames.Add(1) >= 3 && ticks.Load() > 0 {
			h.e.Quit()
		}
	})

	done := make(chan error, 1)
	go func() { done <- h.e.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.GreaterOrEqual(t, frames.Load(), int32(3))
	assert.Positive(t, ticks.Load())
	assert.GreaterOrEqual(t, h.r.Stats().Frame, uint64(3))
	assert.ErrorIs(t, h.r.RenderFrame(context.Background(), &renderer.FrameInput{}), renderer.ErrShutdown, "Run shuts the renderer down")
	assert.False(t, h.win.IsRunning())
}

func TestRunStopsOnRenderError(t *testing.T) {
	h := newHarness(t)
	h.e.SetRenderCallback(func(_ float32, in *renderer.FrameInput) {
		in.Models = append(in.Models, model.Instance{})
	})
	err := h.e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transforms")
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.e.SetRenderCallback(func(float32, *renderer.FrameInput) { cancel() })
	assert.NoError(t, h.e.Run(ctx))
}

func TestResizeIsAppliedOnTheRenderLoop(t *testing.T) {
	h := newHarness(t)
	s := newScene(t)
	h.e.AddScene(0, s)

	h.win.resize(10, 10)
	h.win.resize(32, 16)
	require.NoError(t, h.e.applyResize(context.Background()))
	w, ht := h.r.Size()
	assert.EqualValues(t, 32, w, "only the latest size is applied")
	assert.EqualValues(t, 16, ht)
	assert.InDelta(t, 2, s.Camera().Aspect(), 1e-6)

	h.win.resize(0, 0)
	require.NoError(t, h.e.applyResize(context.Background()))
	assert.InDelta(t, 2, s.Camera().Aspect(), 1e-6, "a minimized window keeps the aspect")
	require.NoError(t, h.e.applyResize(context.Background()), "nothing queued")
}

func TestPrepareFrameUsesLowestActiveScene(t *testing.T) {
	h := newHarness(t)
	lit := newScene(t, scene.WithLights(light.NewLight(light.WithPosition(1, 2, 3))))
	inactive := newScene(t, scene.WithActive(false), scene.WithLights(light.NewLight(light.WithPosition(9, 9, 9))))
	h.e.AddScene(5, lit)
	h.e.AddScene(1, inactive)

	var seen *renderer.FrameInput
	h.e.SetRenderCallback(func(_ float32, in *renderer.FrameInput) { seen = in })
	h.e.prepareFrame(0.016)
	require.NotNil(t, seen)
	assert.Equal(t, [3]float32{1, 2, 3}, h.r.Light())
	assert.Equal(t, lit.Camera().ViewMatrix(), seen.View)

	inactive.SetActive(true)
	h.e.prepareFrame(0.016)
	assert.Equal(t, [3]float32{9, 9, 9}, h.r.Light())
}

func TestSetTickRateWhileStopped(t *testing.T) {
	h := newHarness(t)
	h.e.SetTickRate(0)
	assert.Equal(t, time.Second/60, h.e.engineTickRate)
	h.e.SetTickRate(100)
	assert.Equal(t, 10*time.Millisecond, h.e.engineTickRate)
	h.e.SetRenderFrameLimit(50)
	assert.Equal(t, 20*time.Millisecond, h.e.renderFrameLimit)
}
