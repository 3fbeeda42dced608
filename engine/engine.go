package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/config"
	"github.com/Carmen-Shannon/srender/engine/profiler"
	"github.com/Carmen-Shannon/srender/engine/renderer"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/scene"
	"github.com/Carmen-Shannon/srender/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, render and window goroutines.
type engine struct {
	mu *sync.Mutex

	cfg        config.Config
	configPath string
	logger     *slog.Logger

	window     window.Window
	ownsWindow bool

	renderer        renderer.Renderer
	rendererOptions []renderer.RendererBuilderOption

	scenes map[int]scene.Scene

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate   time.Duration
	tickRateChannel  chan time.Duration
	renderFrameLimit time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32, in *renderer.FrameInput)

	// resizeChannel holds the latest framebuffer size not yet applied
	resizeChannel chan [2]int

	running     atomic.Bool
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once
	renderErr   error

	// frame is refilled by the active scene every render iteration
	frame renderer.FrameInput
}

// Engine is the main entry point. It owns the window, the renderer and a set of scenes, and runs
// a fixed-rate tick loop and a render loop beside the window's message loop.
type Engine interface {
	// Config returns the configuration the engine was built with.
	Config() config.Config

	// Window returns the window being rendered into.
	Window() window.Window

	// Renderer returns the renderer.
	Renderer() renderer.Renderer

	// EnableProfiler enables the periodic profile log line.
	EnableProfiler()

	// DisableProfiler disables the profile log line.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second. Takes effect immediately when
	// running.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick after the active scenes
	// were updated. Use it for game logic and input processing.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame after the active
	// scene filled the frame input and before it is rendered. Use it to add UI draw data or
	// queue debug geometry.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds and the frame input
	SetRenderCallback(callback func(deltaTime float32, in *renderer.FrameInput))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given key. Every active scene is updated each tick;
	// the active scene with the lowest key is rendered.
	//
	// Parameters:
	//   - key: the scene key
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given key without closing it.
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given key, nil if none.
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes.
	Scenes() map[int]scene.Scene

	// Run starts the tick and render loops and runs the window message loop on the calling
	// goroutine until the window closes, Quit is called, ctx is cancelled or a frame fails.
	// It then shuts down the renderer, closes every scene and, if the engine created it, the
	// window.
	//
	// Parameters:
	//   - ctx: cancelling it stops the engine
	//
	// Returns:
	//   - error: the render error that stopped the engine, joined with any shutdown error
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop. Safe to call multiple times and from any
	// goroutine.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates the engine. Options are applied first; then the configuration file is
// loaded if one was named, the logger is installed, and the window and renderer are created
// unless they were supplied.
//
// Parameters:
//   - ctx: bounds the renderer's initial uploads
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a configuration, window or renderer error
func NewEngine(ctx context.Context, options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		mu:              &sync.Mutex{},
		cfg:             config.Default(),
		scenes:          make(map[int]scene.Scene),
		engineTickRate:  time.Second / 60,
		tickRateChannel: make(chan time.Duration, 1),
		resizeChannel:   make(chan [2]int, 1),
		quitChannel:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.configPath != "" {
		cfg, err := config.Load(e.configPath)
		if err != nil {
			return nil, err
		}
		e.cfg = cfg
	}
	if e.logger == nil {
		e.logger = e.cfg.NewLogger(os.Stderr)
	}
	common.SetLogger(e.logger)
	e.profiler = profiler.NewProfiler()

	if e.window == nil {
		w, err := window.NewWindow(window.WithConfig(e.cfg.Window))
		if err != nil {
			return nil, err
		}
		e.window, e.ownsWindow = w, true
	}
	if e.renderer == nil {
		opts := append([]renderer.RendererBuilderOption{renderer.WithConfig(e.cfg)}, e.rendererOptions...)
		r, err := renderer.NewRenderer(ctx, renderer.BackendTypeWGPU, e.window, opts...)
		if err != nil {
			if e.ownsWindow {
				_ = e.window.Close()
			}
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.renderer = r
	}

	e.window.SetResizeCallback(e.queueResize)
	return e, nil
}

func (e *engine) Config() config.Config {
	return e.cfg
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

// queueResize keeps only the latest size. The renderer drains the GPU on Resize, so the
// message goroutine hands the size to the render goroutine instead of blocking.
func (e *engine) queueResize(width, height int) {
	size := [2]int{width, height}
	for {
		select {
		case e.resizeChannel <- size:
			return
		default:
			select {
			case <-e.resizeChannel:
			default:
			}
		}
	}
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.running.Store(true)
	common.Logger().Info("engine running", "tick_rate", e.engineTickRate)
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender(ctx)
	go func() {
		select {
		case <-ctx.Done():
			e.signalQuit()
		case <-e.quitChannel:
		}
	}()

	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	e.running.Store(false)

	return errors.Join(e.renderErr, e.shutdown(context.WithoutCancel(ctx)))
}

// shutdown releases the renderer, the scenes and an owned window.
func (e *engine) shutdown(ctx context.Context) error {
	if d := e.cfg.Renderer.GPUWaitTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := e.renderer.Shutdown(ctx)
	for _, s := range e.Scenes() {
		s.Close()
	}
	if e.ownsWindow {
		err = errors.Join(err, e.window.Close())
	}
	common.Logger().Info("engine stopped", "err", err)
	return err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel and asks the window loop to return.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		e.window.RequestClose()
	})
}

// activeScenes returns the active scenes in ascending key order.
func (e *engine) activeScenes() []scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]int, 0, len(e.scenes))
	for k, s := range e.scenes {
		if s.Active() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := make([]scene.Scene, len(keys))
	for i, k := range keys {
		out[i] = e.scenes[k]
	}
	return out
}

// handleEngine runs the fixed-rate tick loop: it updates every active scene and then fires the
// tick callback. Listens for rate changes on tickRateChannel and exits when quit is signalled.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	e.mu.Lock()
	rate := e.engineTickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			for _, s := range e.activeScenes() {
				s.Update(dt)
			}
			e.mu.Lock()
			cb := e.tickCallback
			e.mu.Unlock()
			if cb != nil {
				cb(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleRender runs the render loop. Each iteration applies a pending resize, lets the lowest
// active scene fill the frame input, runs the render callback and renders. A skipped frame is
// logged and the loop continues; any other render error stops the engine. Panics are recovered
// into the returned error.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.renderErr = fmt.Errorf("engine: render loop panic: %v", r)
			common.Logger().Error("render loop recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		if err := e.applyResize(ctx); err != nil {
			e.fail(err)
			return
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.prepareFrame(dt)
		err := e.renderer.RenderFrame(ctx, &e.frame)
		switch {
		case err == nil:
		case errors.Is(err, gpu.ErrNoResourceAvailable):
			common.Logger().Warn("frame skipped", "err", err)
		case ctx.Err() != nil:
			return
		default:
			e.fail(err)
			return
		}

		if e.profilingEnabled.Load() {
			e.profiler.Tick(e.renderer.Stats())
		}

		e.mu.Lock()
		limit := e.renderFrameLimit
		e.mu.Unlock()
		if limit > 0 {
			if remaining := limit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// prepareFrame fills e.frame from the lowest active scene and the render callback.
func (e *engine) prepareFrame(dt float32) {
	e.frame.UI = nil
	if active := e.activeScenes(); len(active) > 0 {
		s := active[0]
		s.Frame(&e.frame)
		if pos, ok := s.Light(); ok {
			e.renderer.SetLight(pos)
		}
	} else {
		e.frame.Models = e.frame.Models[:0]
		e.frame.Transforms = e.frame.Transforms[:0]
		e.frame.Animations = e.frame.Animations[:0]
	}

	e.mu.Lock()
	cb := e.renderCallback
	e.mu.Unlock()
	if cb != nil {
		cb(dt, &e.frame)
	}
}

// applyResize resizes the renderer to the latest queued size and updates the aspect ratio of
// every scene camera. A zero size pauses rendering and leaves the cameras alone.
func (e *engine) applyResize(ctx context.Context) error {
	var size [2]int
	select {
	case size = <-e.resizeChannel:
	default:
		return nil
	}
	if err := e.renderer.Resize(ctx, uint32(max(size[0], 0)), uint32(max(size[1], 0))); err != nil {
		return fmt.Errorf("engine: resize to %dx%d: %w", size[0], size[1], err)
	}
	if size[0] > 0 && size[1] > 0 {
		aspect := float32(size[0]) / float32(size[1])
		for _, s := range e.Scenes() {
			s.Camera().SetAspect(aspect)
		}
	}
	return nil
}

func (e *engine) fail(err error) {
	common.Logger().Error("render loop stopped", "err", err)
	e.renderErr = err
	e.signalQuit()
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.mu.Lock()
		e.engineTickRate = newRate
		e.mu.Unlock()
		return
	}
	// Replace a pending update that was not picked up yet.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32, in *renderer.FrameInput)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderFrameLimit = frameDuration(fps)
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}
