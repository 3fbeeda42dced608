package renderer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/config"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/loader"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/chewxy/math32"
)

// DepthFormat is the format of the main depth buffer.
const DepthFormat = gpu.FormatD32Float

// frameDirectLists is the most direct command lists one frame submits. A frame only starts when
// this many allocators are free, and the direct pool holds this many per back buffer.
const frameDirectLists = config.DirectListsPerFrame

// ErrShutdown is returned by every frame operation after Shutdown.
var ErrShutdown = errors.New("renderer: shut down")

// FrameInput is the scene drawn by one RenderFrame call. Models and Transforms are parallel
// slices.
type FrameInput struct {
	View common.Mat4
	// Projection replaces the renderer's perspective projection when it is not the zero matrix.
	Projection common.Mat4

	Models     []model.Instance
	Transforms []common.Mat4

	// Animations are skinned on the GPU before the shadow and world passes. Their instance
	// indices point into Models.
	Animations []animator.Animator

	// UI is drawn over everything else. Nil or empty data skips the UI upload and pass.
	UI *pipeline.UIDrawData
}

// FrameStats describes the most recent frame.
type FrameStats struct {
	// Frame counts presented frames.
	Frame      uint64
	BackBuffer int
	// FenceValue is the direct fence value signalled at the end of the frame.
	FenceValue uint64
	Drawn      int
	Culled     int
	Skinned    int
	TempDraws  int
	// TempDropped counts debug vertices that did not fit the temp vertex buffer.
	TempDropped int
	UIDraws     int
	// Skipped counts frames refused for lack of free command allocators.
	Skipped uint64
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     *RendererBackend
	device      gpu.Device
	swapChain   gpu.SwapChain

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	presentMode          gpu.PresentMode
	backBufferCount      int
	clearColor           gpu.Color
	fovY, near, far      float32
	waitTimeout          time.Duration
	descriptorCapacity   uint32
	directLists          int
	directAllocators     int
	copyLists            int
	copyAllocators       int
	shadowResolution     uint32
	tempVertexCapacity   uint32
	maxJointMatrices     uint32
	frustumCulling       bool
	shaderDir            string
	shaderBuildDir       string
	shaderPolicy         shader.Policy
	watchShaders         bool

	library     shader.Library
	ownsLibrary bool

	direct      *gpu.CommandQueue
	copyQueue   *gpu.CommandQueue
	directPool  *gpu.CommandListPool
	copyPool    *gpu.CommandListPool
	descriptors *gpu.DescriptorAllocator
	rtvs        *gpu.DescriptorAllocator
	rtv         *gpu.DescriptorAllocation
	dsvs        *gpu.DescriptorAllocator
	dsv         *gpu.DescriptorAllocation
	depth       *gpu.Resource

	meshes   loader.MeshLoader
	textures loader.TextureLoader

	shadow   pipeline.ShadowMappingPipeline
	skinning pipeline.ComputeSkinningPipeline
	world    pipeline.WorldPipeline
	temp     pipeline.TempGeometryPipeline
	ui       pipeline.UIPipeline

	// fenceValues holds, per back buffer, the direct fence value of the last frame rendered into it
	fenceValues []uint64
	lastValue   uint64
	lightPos    [3]float32
	width       uint32
	height      uint32
	minimized   bool
	stats       FrameStats
	shutdown    bool
}

// Renderer draws frames of model instances, debug geometry and UI into a swap chain.
//
// Every frame runs the same sequence of passes, each recorded into its own direct command
// list and submitted before the next one is recorded: wait for the back buffer's previous
// frame, clear and prepare the targets, upload the UI on the copy queue, skin animated
// instances, render the shadow cube, render the world, draw in-world debug geometry, clear
// depth, draw over-world debug geometry, draw the UI, and present.
type Renderer interface {
	// RenderFrame renders and presents one frame.
	//
	// Parameters:
	//   - ctx: bounds the wait for the back buffer's previous frame
	//   - in: the scene
	//
	// Returns:
	//   - error: gpu.ErrNoResourceAvailable wrapped when the frame was skipped because too few
	//     command allocators were free, in which case nothing was submitted; any other error
	//     is fatal
	RenderFrame(ctx context.Context, in *FrameInput) error

	// Resize drains the GPU and recreates the swap chain, its render target views and the depth
	// buffer at the new size. A zero width or height pauses rendering until the next Resize.
	//
	// Parameters:
	//   - ctx: bounds the GPU drain
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: a wait, swap chain or creation failure
	Resize(ctx context.Context, width, height uint32) error

	// Shutdown drains the GPU and releases everything the renderer created.
	Shutdown(ctx context.Context) error

	// Pipeline retrieves the pipeline with the given key, or nil.
	//
	// Parameters:
	//   - key: the pipeline key
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines returns every pipeline keyed by PipelineKey.
	Pipelines() map[string]pipeline.Pipeline

	// ReloadShaders reloads programs from the shader library and rebuilds every pipeline using
	// them. With no names, the programs the library reports as changed are reloaded. The GPU
	// is drained first. A failed rebuild keeps the pipeline's previous state.
	//
	// Parameters:
	//   - ctx: bounds the GPU drain
	//   - names: the program names
	//
	// Returns:
	//   - []string: the keys of the rebuilt pipelines
	//   - error: the first load or rebuild failure
	ReloadShaders(ctx context.Context, names ...string) ([]string, error)

	// TempGeometry returns the debug geometry queue drawn by the next frame.
	TempGeometry() pipeline.TempGeometryPipeline

	// Meshes returns the mesh loader.
	Meshes() loader.MeshLoader

	// Textures returns the texture loader.
	Textures() loader.TextureLoader

	// ReleaseMesh drops a mesh once every frame submitted so far has completed.
	ReleaseMesh(h handle.Handle)

	// SetLight moves the shadow casting point light.
	SetLight(pos [3]float32)

	// Light returns the light position.
	Light() [3]float32

	// Size returns the back buffer size.
	Size() (width, height uint32)

	// FenceValues returns the direct fence value each back buffer waits for before reuse.
	FenceValues() []uint64

	// Stats returns statistics of the last frame.
	Stats() FrameStats
}

var _ Renderer = &renderer{}

// newDefaultRenderer returns a renderer holding the default settings.
func newDefaultRenderer() *renderer {
	return &renderer{
		mu:                 &sync.Mutex{},
		pipelineCache:      make(map[string]pipeline.Pipeline),
		presentMode:        gpu.PresentModeVSync,
		backBufferCount:    2,
		clearColor:         gpu.Color{0.1, 0.1, 0.12, 1},
		fovY:               math32.Pi / 3,
		near:               0.1,
		far:                1000,
		waitTimeout:        10 * time.Second,
		descriptorCapacity: 4096,
		directLists:        4,
		directAllocators:   32,
		copyLists:          2,
		copyAllocators:     4,
		shadowResolution:   1024,
		tempVertexCapacity: 1 << 16,
		maxJointMatrices:   4096,
		frustumCulling:     true,
		shaderBuildDir:     shader.DefaultBuildDir,
		shaderPolicy:       shader.PolicyStale,
		lightPos:           [3]float32{0, 10, 0},
	}
}

// NewRenderer creates the backend for a window surface and everything a frame needs on it.
// Builder options are applied before the backend is created so they can select the adapter,
// the back buffer count and the present mode.
//
// Parameters:
//   - ctx: bounds the initial uploads
//   - backendType: the GPU backend to create
//   - surface: the window being rendered into
//   - options: a variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: a backend, pipeline or resource creation failure
func NewRenderer(ctx context.Context, backendType RendererBackendType, surface Surface, options ...RendererBuilderOption) (Renderer, error) {
	r := newDefaultRenderer()
	for _, opt := range options {
		opt(r)
	}
	backend, err := newBackend(backendType, surface, r)
	if err != nil {
		return nil, err
	}
	if err := r.init(ctx, backend); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRendererWithBackend creates a renderer on a device and swap chain the caller owns.
//
// Parameters:
//   - ctx: bounds the initial uploads
//   - backend: the device and swap chain
//   - options: a variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: a pipeline or resource creation failure
func NewRendererWithBackend(ctx context.Context, backend *RendererBackend, options ...RendererBuilderOption) (Renderer, error) {
	r := newDefaultRenderer()
	for _, opt := range options {
		opt(r)
	}
	if err := r.init(ctx, backend); err != nil {
		return nil, err
	}
	return r, nil
}

// init creates the queues, pools, heaps, targets, loaders and passes. On failure everything
// created so far is released.
func (r *renderer) init(ctx context.Context, backend *RendererBackend) (err error) {
	r.backend = backend
	r.backendType = backend.Type
	r.device = backend.Device
	r.swapChain = backend.SwapChain
	defer func() {
		if err != nil {
			r.release(ctx)
		}
	}()

	// every back buffer may hold a whole frame's allocators until its fence completes
	r.directAllocators = max(r.directAllocators, frameDirectLists*r.swapChain.BufferCount())
	fenceOpts := []gpu.FenceOption{gpu.WithWaitTimeout(r.waitTimeout)}
	r.direct = gpu.NewCommandQueue(r.device, gpu.CommandListTypeDirect, fenceOpts...)
	r.copyQueue = gpu.NewCommandQueue(r.device, gpu.CommandListTypeCopy, fenceOpts...)
	if r.directPool, err = gpu.NewCommandListPool(r.device, r.direct, r.directLists, r.directAllocators, fenceOpts...); err != nil {
		return fmt.Errorf("direct list pool: %w", err)
	}
	if r.copyPool, err = gpu.NewCommandListPool(r.device, r.copyQueue, r.copyLists, r.copyAllocators, fenceOpts...); err != nil {
		return fmt.Errorf("copy list pool: %w", err)
	}

	buffers := r.swapChain.BufferCount()
	r.descriptors = gpu.NewDescriptorAllocator(gpu.DescriptorHeapCBVSRVUAV, r.descriptorCapacity)
	r.rtvs = gpu.NewDescriptorAllocator(gpu.DescriptorHeapRTV, uint32(buffers))
	r.dsvs = gpu.NewDescriptorAllocator(gpu.DescriptorHeapDSV, 1)
	if err = r.createTargets(); err != nil {
		return err
	}

	if r.library == nil {
		if r.library, err = r.newLibrary(); err != nil {
			return err
		}
		r.ownsLibrary = true
	}

	if r.meshes, err = loader.NewMeshLoader(r.device, r.direct, r.copyQueue, r.descriptors); err != nil {
		return fmt.Errorf("mesh loader: %w", err)
	}
	if r.textures, err = loader.NewTextureLoader(ctx, r.device, r.direct, r.copyQueue, r.descriptors); err != nil {
		return fmt.Errorf("texture loader: %w", err)
	}

	color := r.swapChain.Format()
	heap := r.descriptors.Heap()
	if r.shadow, err = pipeline.NewShadowMappingPipeline(r.device, r.library, r.descriptors,
		pipeline.WithShadowResolution(r.shadowResolution)); err != nil {
		return fmt.Errorf("shadow pipeline: %w", err)
	}
	if r.skinning, err = pipeline.NewComputeSkinningPipeline(r.device, r.library, heap,
		pipeline.WithSkinningBackBuffers(buffers),
		pipeline.WithMaxJointMatrices(r.maxJointMatrices)); err != nil {
		return fmt.Errorf("skinning pipeline: %w", err)
	}
	if r.world, err = pipeline.NewWorldPipeline(r.device, r.library, heap, color, DepthFormat,
		pipeline.WithFrustumCulling(r.frustumCulling)); err != nil {
		return fmt.Errorf("world pipeline: %w", err)
	}
	if r.temp, err = pipeline.NewTempGeometryPipeline(r.device, r.library, color, DepthFormat,
		pipeline.WithTempBackBuffers(buffers),
		pipeline.WithTempCapacity(r.tempVertexCapacity)); err != nil {
		return fmt.Errorf("temp geometry pipeline: %w", err)
	}
	if r.ui, err = pipeline.NewUIPipeline(r.device, r.library, heap, color, DepthFormat,
		pipeline.WithUIBackBuffers(buffers)); err != nil {
		return fmt.Errorf("ui pipeline: %w", err)
	}

	all := []pipeline.Pipeline{r.shadow.Pipeline(), r.skinning.Pipeline(), r.world.Pipeline(), r.ui.Pipeline()}
	all = append(all, r.temp.Pipelines()...)
	for _, p := range all {
		r.pipelineCache[p.PipelineKey()] = p
	}

	r.fenceValues = make([]uint64, buffers)
	common.Logger().Info("renderer created",
		"backend", r.backendType.String(),
		"width", r.width, "height", r.height,
		"back_buffers", buffers,
		"descriptors", r.descriptorCapacity)
	return nil
}

// newLibrary creates the shader library from the shader settings.
func (r *renderer) newLibrary() (shader.Library, error) {
	opts := []shader.LibraryOption{
		shader.WithShaderBuilder(shader.NewBuilder(
			shader.WithBuildDir(r.shaderBuildDir),
			shader.WithPolicy(r.shaderPolicy),
		)),
	}
	if r.shaderDir != "" {
		opts = append(opts, shader.WithOverrideDir(r.shaderDir), shader.WithWatch(r.watchShaders))
	}
	return shader.NewLibrary(opts...)
}

// createTargets writes one render target view per back buffer and creates the depth buffer and
// its view at the swap chain's size. The views reuse their allocations across resizes.
func (r *renderer) createTargets() error {
	var err error
	n := r.swapChain.BufferCount()
	if r.rtv == nil {
		if r.rtv, err = r.rtvs.Alloc(uint32(n)); err != nil {
			return fmt.Errorf("render target views: %w", err)
		}
	}
	for i := 0; i < n; i++ {
		r.rtvs.Heap().CreateRenderTargetView(r.swapChain.BackBuffer(i), gpu.ViewDesc{
			Dimension: gpu.ViewDimensionTexture2D,
			Format:    r.swapChain.Format(),
		}, r.rtv.CPUHandle(uint32(i)))
	}

	r.width, r.height = r.swapChain.Size()
	r.depth, err = gpu.CreateCommittedTexture(r.device, gpu.TextureDesc{
		Label:       "depth",
		Width:       r.width,
		Height:      r.height,
		MipLevels:   1,
		SampleCount: 1,
		Format:      DepthFormat,
		Dimension:   gpu.TextureDimension2D,
		Flags:       gpu.ResourceFlagAllowDepthStencil,
		ClearDepth:  1,
	}, gpu.ResourceStateDepthWrite)
	if err != nil {
		return fmt.Errorf("depth buffer: %w", err)
	}
	if r.dsv == nil {
		if r.dsv, err = r.dsvs.Alloc(1); err != nil {
			return fmt.Errorf("depth view: %w", err)
		}
	}
	r.dsvs.Heap().CreateDepthStencilView(r.depth, gpu.ViewDesc{
		Dimension: gpu.ViewDimensionTexture2D,
		Format:    DepthFormat,
	}, r.dsv.CPUHandle(0))
	return nil
}

// projection returns the frame's projection, the renderer's perspective unless in sets one.
func (r *renderer) projection(in *FrameInput) common.Mat4 {
	if in.Projection != (common.Mat4{}) {
		return in.Projection
	}
	var p common.Mat4
	common.Perspective(p[:], r.fovY, float32(r.width)/float32(r.height), r.near, r.far)
	return p
}

// bindTargets binds the back buffer, the depth buffer and a full viewport. Every list drawing
// into the back buffer starts with it since bindings do not carry across lists.
func (r *renderer) bindTargets(list *gpu.CommandList, backBuffer int) {
	dsv := r.dsv.CPUHandle(0)
	list.OMSetRenderTargets([]gpu.CPUDescriptorHandle{r.rtv.CPUHandle(uint32(backBuffer))}, &dsv)
	list.SetViewport(gpu.Viewport{Width: float32(r.width), Height: float32(r.height), MaxDepth: 1})
	list.SetScissorRect(gpu.Rect{Right: int32(r.width), Bottom: int32(r.height)})
}

// step records one pass into a fresh direct list and submits it. The list is submitted even
// when record fails, since passes resolve their inputs before recording anything.
//
// Parameters:
//   - name: the pass name used in errors
//   - record: records the pass
//
// Returns:
//   - error: an allocation, recording or submission failure
func (r *renderer) step(name string, record func(list *gpu.CommandList) error) error {
	h, err := r.directPool.AllocList()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	recErr := record(r.directPool.MustList(h))
	v, err := r.directPool.ExecuteAndFreeList(h)
	r.lastValue = v
	if recErr != nil {
		return fmt.Errorf("%s: %w", name, recErr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// waitBackBuffer blocks until the last frame rendered into backBuffer has completed, then
// reclaims command allocators, deferred descriptor frees and released meshes.
func (r *renderer) waitBackBuffer(ctx context.Context, backBuffer int) error {
	if err := r.directPool.WaitForInternalFenceValue(ctx, r.fenceValues[backBuffer]); err != nil {
		return fmt.Errorf("back buffer %d: %w", backBuffer, err)
	}
	completed := r.directPool.InternalFence().CompletedValue()
	r.directPool.FreeAllocators()
	r.copyPool.FreeAllocators()
	r.descriptors.Signal(completed)
	r.meshes.Collect(completed)
	return nil
}

func (r *renderer) RenderFrame(ctx context.Context, in *FrameInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return ErrShutdown
	}
	if r.minimized {
		return nil
	}
	if len(in.Models) != len(in.Transforms) {
		return fmt.Errorf("renderer: %d models with %d transforms", len(in.Models), len(in.Transforms))
	}

	if r.watchShaders {
		if names := r.library.TakeChanged(); len(names) > 0 {
			if _, err := r.reloadShaders(ctx, names); err != nil {
				common.Logger().Warn("shader reload failed", "programs", names, "err", err)
			}
		}
	}

	bb := r.swapChain.CurrentBackBufferIndex()

	// 1. bounded frames in flight
	if err := r.waitBackBuffer(ctx, bb); err != nil {
		return err
	}
	hasUI := !in.UI.Empty()
	if free := r.directPool.FreeAllocatorCount(); free < frameDirectLists || (hasUI && r.copyPool.FreeAllocatorCount() == 0) {
		r.stats.Skipped++
		return fmt.Errorf("frame %d needs %d direct allocators, %d free: %w", r.stats.Frame, frameDirectLists, free, gpu.ErrNoResourceAvailable)
	}

	target := r.swapChain.BackBuffer(bb)
	f := &pipeline.Frame{
		View:       in.View,
		Projection: r.projection(in),
		Models:     in.Models,
		Transforms: in.Transforms,
	}
	viewProj := f.Projection.Mul(f.View)
	stats := FrameStats{Frame: r.stats.Frame, BackBuffer: bb, Skipped: r.stats.Skipped}

	err := r.renderPasses(ctx, in, f, viewProj, target, bb, hasUI, &stats)
	if err != nil {
		// leave the back buffer presentable so the next frame starts from a known state
		if target.State() != gpu.ResourceStatePresent {
			if abortErr := r.step("abort", func(list *gpu.CommandList) error {
				list.Transition(target, target.State(), gpu.ResourceStatePresent)
				return nil
			}); abortErr != nil {
				err = errors.Join(err, abortErr)
			}
		}
		r.fenceValues[bb] = r.lastValue
		return err
	}

	r.fenceValues[bb] = r.lastValue
	if err := r.swapChain.Present(); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	stats.Frame++
	stats.FenceValue = r.lastValue
	r.stats = stats
	common.Logger().Debug("frame presented",
		"frame", stats.Frame,
		"back_buffer", bb,
		"fence", stats.FenceValue,
		"drawn", stats.Drawn,
		"culled", stats.Culled)
	return nil
}

// renderPasses records and submits steps 2 to 10 of a frame.
func (r *renderer) renderPasses(ctx context.Context, in *FrameInput, f *pipeline.Frame, viewProj common.Mat4, target *gpu.Resource, bb int, hasUI bool, stats *FrameStats) error {
	// 2. targets and per-frame debug vertices
	if err := r.step("begin frame", func(list *gpu.CommandList) error {
		list.Transition(target, gpu.ResourceStatePresent, gpu.ResourceStateRenderTarget)
		list.ClearRenderTargetView(r.rtv.CPUHandle(uint32(bb)), r.clearColor)
		list.ClearDepthStencilView(r.dsv.CPUHandle(0), 1)
		stats.TempDropped = r.temp.Upload(list, bb)
		return nil
	}); err != nil {
		return err
	}

	// 3. ui buffers on the copy queue, waited for on the direct queue
	if hasUI {
		if err := r.ui.Upload(r.copyPool, r.direct, in.UI, bb); err != nil {
			return fmt.Errorf("ui upload: %w", err)
		}
	}

	// skinned streams feed both the shadow and the world pass
	if len(in.Animations) > 0 {
		if err := r.step("skinning", func(list *gpu.CommandList) error {
			return r.skinning.Compute(list, r.meshes, in.Animations, in.Models, bb)
		}); err != nil {
			return err
		}
		f.Skinned = r.skinning
		stats.Skinned = r.skinning.InstanceCount()
	}

	// 4. shadow cube
	if err := r.step("shadow pass", func(list *gpu.CommandList) error {
		return r.shadow.Render(r.meshes, r.lightPos, list, f)
	}); err != nil {
		return err
	}

	// 5. world
	if err := r.step("world pass", func(list *gpu.CommandList) error {
		r.bindTargets(list, bb)
		return r.world.Render(list, r.meshes, r.textures, f, r.shadow.Constants(r.lightPos), r.shadow.SRV())
	}); err != nil {
		return err
	}
	stats.Drawn, stats.Culled = r.world.Stats()

	// 6. debug geometry tested against the world's depth
	if err := r.step("temp in world", func(list *gpu.CommandList) error {
		r.bindTargets(list, bb)
		stats.TempDraws += r.temp.Render(list, viewProj, pipeline.TempLayerInWorld, bb)
		return nil
	}); err != nil {
		return err
	}

	// 7. depth is cleared so over-world geometry is never occluded
	if err := r.step("clear depth", func(list *gpu.CommandList) error {
		list.ClearDepthStencilView(r.dsv.CPUHandle(0), 1)
		return nil
	}); err != nil {
		return err
	}

	// 8. debug geometry over the world
	if err := r.step("temp over world", func(list *gpu.CommandList) error {
		r.bindTargets(list, bb)
		stats.TempDraws += r.temp.Render(list, viewProj, pipeline.TempLayerOverWorld, bb)
		return nil
	}); err != nil {
		return err
	}

	// 9. ui
	if hasUI {
		if err := r.step("ui pass", func(list *gpu.CommandList) error {
			r.bindTargets(list, bb)
			n, err := r.ui.Render(list, r.textures, in.UI, bb, r.width, r.height)
			stats.UIDraws = n
			return err
		}); err != nil {
			return err
		}
	}

	// 10. back to Present; the list's fence value becomes the back buffer's
	return r.step("end frame", func(list *gpu.CommandList) error {
		list.Transition(target, gpu.ResourceStateRenderTarget, gpu.ResourceStatePresent)
		return nil
	})
}

func (r *renderer) Resize(ctx context.Context, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return ErrShutdown
	}
	if width == 0 || height == 0 {
		r.minimized = true
		return nil
	}
	if !r.minimized && width == r.width && height == r.height {
		return nil
	}
	r.minimized = false

	if err := r.drain(ctx); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	r.depth.Release()
	r.depth = nil
	if err := r.swapChain.Resize(width, height); err != nil {
		return fmt.Errorf("resize swap chain: %w", err)
	}
	if err := r.createTargets(); err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	// a resize invalidates which back buffer waits on which frame, so both wait on the newest
	m := slices.Max(r.fenceValues)
	for i := range r.fenceValues {
		r.fenceValues[i] = m
	}
	common.Logger().Info("renderer resized", "width", r.width, "height", r.height, "fence", m)
	return nil
}

// drain blocks until both queues are idle.
func (r *renderer) drain(ctx context.Context) error {
	if err := r.direct.Flush(ctx); err != nil {
		return err
	}
	return r.copyQueue.Flush(ctx)
}

func (r *renderer) ReloadShaders(ctx context.Context, names ...string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil, ErrShutdown
	}
	if len(names) == 0 {
		names = r.library.TakeChanged()
	}
	return r.reloadShaders(ctx, names)
}

// reloadShaders reloads the named programs and rebuilds the pipelines using any of them.
func (r *renderer) reloadShaders(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	// pipeline states are replaced in place and may be referenced by lists in flight
	if err := r.drain(ctx); err != nil {
		return nil, err
	}
	changed := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := r.library.Reload(name); err != nil {
			return nil, fmt.Errorf("reload %s: %w", name, err)
		}
		changed[name] = true
	}

	var rebuilt []string
	for _, key := range slices.Sorted(maps.Keys(r.pipelineCache)) {
		p := r.pipelineCache[key]
		uses := false
		for _, t := range []shader.ShaderType{shader.ShaderTypeVertex, shader.ShaderTypeFragment, shader.ShaderTypeCompute} {
			if s := p.Shader(t); s != nil && changed[s.Name()] {
				uses = true
			}
		}
		if !uses {
			continue
		}
		if err := p.Rebuild(r.device, r.library); err != nil {
			return rebuilt, fmt.Errorf("rebuild %s: %w", key, err)
		}
		rebuilt = append(rebuilt, key)
	}
	common.Logger().Info("shaders reloaded", "programs", names, "pipelines", rebuilt)
	return rebuilt, nil
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.pipelineCache)
}

func (r *renderer) TempGeometry() pipeline.TempGeometryPipeline {
	return r.temp
}

func (r *renderer) Meshes() loader.MeshLoader {
	return r.meshes
}

func (r *renderer) Textures() loader.TextureLoader {
	return r.textures
}

func (r *renderer) ReleaseMesh(h handle.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meshes.Release(h, r.directPool.InternalFence().LastSignaled())
}

func (r *renderer) SetLight(pos [3]float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lightPos = pos
}

func (r *renderer) Light() [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lightPos
}

func (r *renderer) Size() (uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) FenceValues() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.fenceValues)
}

func (r *renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil
	}
	r.shutdown = true
	err := r.drain(ctx)
	if err != nil {
		// releasing resources the GPU may still read is worse than leaking them
		return fmt.Errorf("shutdown: %w", err)
	}
	err = r.release(ctx)
	common.Logger().Info("renderer shut down", "frames", r.stats.Frame)
	return err
}

// release frees everything init created, in reverse order. It tolerates a partial init.
func (r *renderer) release(ctx context.Context) error {
	var errs []error
	if r.ui != nil {
		r.ui.Release()
	}
	if r.temp != nil {
		r.temp.Release()
	}
	if r.world != nil {
		r.world.Release()
	}
	if r.skinning != nil {
		r.skinning.Release()
	}
	if r.shadow != nil {
		r.shadow.Release()
	}
	clear(r.pipelineCache)
	if r.textures != nil {
		errs = append(errs, r.textures.Shutdown(ctx))
	}
	if r.meshes != nil {
		errs = append(errs, r.meshes.Shutdown(ctx))
	}
	if r.library != nil && r.ownsLibrary {
		errs = append(errs, r.library.Close())
	}
	r.depth.Release()
	if r.rtv != nil {
		r.rtv.Free()
	}
	if r.dsv != nil {
		r.dsv.Free()
	}
	for _, a := range []*gpu.DescriptorAllocator{r.rtvs, r.dsvs, r.descriptors} {
		if a != nil {
			a.Release()
		}
	}
	for _, p := range []*gpu.CommandListPool{r.directPool, r.copyPool} {
		if p != nil {
			errs = append(errs, p.Release(ctx))
		}
	}
	if r.backend != nil {
		r.backend.release()
	}
	return errors.Join(errs...)
}
