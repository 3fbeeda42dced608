package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// uiBuffer is a default-heap buffer with its upload twin. The default buffer rests in Common
// so the copy queue can write it.
type uiBuffer struct {
	label    string
	stride   uint64
	capacity uint64
	buffer   *gpu.Resource
	upload   *gpu.Resource
}

// reserve makes room for count elements, replacing both buffers with ones at least twice as
// large when they are too small.
func (b *uiBuffer) reserve(dev gpu.Device, count uint64) error {
	if count <= b.capacity && b.buffer != nil {
		return nil
	}
	capacity := max(count, b.capacity)
	if b.buffer != nil {
		capacity = max(count, b.capacity*2)
	}
	b.release()
	var err error
	b.buffer, err = gpu.CreateCommittedBuffer(dev, gpu.BufferDesc{Label: b.label, Size: capacity * b.stride, Heap: gpu.HeapTypeDefault}, gpu.ResourceStateCommon)
	if err != nil {
		return err
	}
	b.upload, err = gpu.CreateCommittedBuffer(dev, gpu.BufferDesc{Label: b.label + " upload", Size: capacity * b.stride, Heap: gpu.HeapTypeUpload}, gpu.ResourceStateGenericRead)
	if err != nil {
		b.buffer.Release()
		b.buffer = nil
		return err
	}
	b.capacity = capacity
	common.Logger().Debug("ui buffer grown", "buffer", b.label, "capacity", capacity)
	return nil
}

func (b *uiBuffer) release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
	if b.upload != nil {
		b.upload.Release()
		b.upload = nil
	}
}

// uiFrame is the UI geometry storage of one back buffer.
type uiFrame struct {
	vertices uiBuffer
	indices  uiBuffer
	// vertexCount and indexCount are what the last Upload into this frame staged
	vertexCount uint64
	indexCount  uint64
}

// uiPipeline is the implementation of the UIPipeline interface.
type uiPipeline struct {
	mu sync.Mutex

	device   gpu.Device
	pipeline Pipeline
	heap     *gpu.DescriptorHeap
	frames   []uiFrame

	backBuffers     int
	initialVertices uint64
	initialIndices  uint64
}

// UIPipeline draws immediate-mode UI draw data over the finished frame.
type UIPipeline interface {
	// Upload copies the draw data's vertices and indices into the back buffer's UI buffers on
	// the copy queue and makes the direct queue wait for the copy on the GPU. Nothing is
	// submitted for empty draw data.
	//
	// Parameters:
	//   - copyPool: the copy queue list pool
	//   - direct: the direct queue that renders the frame
	//   - data: the frame's UI draw data, may be nil
	//   - backBuffer: the back buffer the frame renders into; its previous frame must have completed
	//
	// Returns:
	//   - error: ErrNoResourceAvailable when the copy pool is exhausted, invalid draw data, or a
	//     buffer or submission failure
	Upload(copyPool *gpu.CommandListPool, direct *gpu.CommandQueue, data *UIDrawData, backBuffer int) error

	// Render records one draw per command, each clipped by a scissor derived from its clip
	// rectangle and sampling its own texture. Commands clipped away entirely are skipped. The
	// caller binds the render target and the full viewport.
	//
	// Parameters:
	//   - list: a recording direct command list
	//   - textures: resolves the commands' texture handles
	//   - data: the draw data passed to Upload for this back buffer
	//   - backBuffer: the back buffer Upload staged into
	//   - width, height: the framebuffer size in pixels
	//
	// Returns:
	//   - int: the number of draws recorded
	//   - error: an unresolvable texture handle
	Render(list *gpu.CommandList, textures TextureSource, data *UIDrawData, backBuffer int, width, height uint32) (int, error)

	// Pipeline returns the UI pipeline.
	Pipeline() Pipeline

	// Release frees the UI buffers and the pipeline. The GPU must be idle.
	Release()
}

var _ UIPipeline = &uiPipeline{}

// NewUIPipeline builds the alpha blended UI pipeline from the ui program. Buffers are created on
// first use.
//
// Parameters:
//   - dev: the device
//   - lib: the shader library
//   - heap: the shader visible heap texture views live in
//   - colorFormat: the render target format
//   - depthFormat: the depth buffer format bound alongside the render target
//   - options: a variadic list of UIBuilderOption functions
//
// Returns:
//   - UIPipeline: the pipeline
//   - error: a shader or creation failure
func NewUIPipeline(dev gpu.Device, lib shader.Library, heap *gpu.DescriptorHeap, colorFormat, depthFormat gpu.Format, options ...UIBuilderOption) (UIPipeline, error) {
	u := &uiPipeline{
		device:          dev,
		heap:            heap,
		backBuffers:     2,
		initialVertices: 5000,
		initialIndices:  10000,
	}
	for _, opt := range options {
		opt(u)
	}

	prog, err := lib.Get(shader.ProgramUI)
	if err != nil {
		return nil, err
	}
	u.pipeline = NewPipeline("ui", PipelineTypeRender, shader.UIRootSignature(),
		WithVertexShader(prog),
		WithFragmentShader(prog),
		WithInputLayout(shader.UIInputLayout()),
		WithBlendEnabled(true),
		WithDepthTestEnabled(false),
		WithDepthWriteEnabled(false),
		WithRenderTargetFormats(colorFormat),
		WithDepthFormat(depthFormat),
	)
	if err := u.pipeline.Build(dev); err != nil {
		return nil, err
	}

	vstride := uint64((&shader.SUIVertex{}).Size())
	for i := 0; i < u.backBuffers; i++ {
		u.frames = append(u.frames, uiFrame{
			vertices: uiBuffer{label: fmt.Sprintf("ui vertices %d", i), stride: vstride, capacity: u.initialVertices},
			indices:  uiBuffer{label: fmt.Sprintf("ui indices %d", i), stride: 4, capacity: u.initialIndices},
		})
	}
	return u, nil
}

func (u *uiPipeline) Upload(copyPool *gpu.CommandListPool, direct *gpu.CommandQueue, data *UIDrawData, backBuffer int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	fr := &u.frames[backBuffer%len(u.frames)]
	fr.vertexCount, fr.indexCount = 0, 0
	if data.Empty() {
		return nil
	}
	if err := data.Validate(); err != nil {
		return err
	}
	nv, ni := data.Totals()
	if err := fr.vertices.reserve(u.device, uint64(nv)); err != nil {
		return fmt.Errorf("ui vertices: %w", err)
	}
	if err := fr.indices.reserve(u.device, uint64(ni)); err != nil {
		return fmt.Errorf("ui indices: %w", err)
	}

	h, err := copyPool.AllocList()
	if err != nil {
		return err
	}
	vmem, imem := fr.vertices.upload.Mapped(), fr.indices.upload.Mapped()
	var vo, io uint64
	for i := range data.Lists {
		l := &data.Lists[i]
		vo += uint64(copy(vmem[vo:], common.SliceToBytes(l.Vertices)))
		io += uint64(copy(imem[io:], common.SliceToBytes(l.Indices)))
	}

	list := copyPool.MustList(h)
	list.ResourceBarrier(
		gpu.Barrier{Resource: fr.vertices.buffer, Before: gpu.ResourceStateCommon, After: gpu.ResourceStateCopyDest},
		gpu.Barrier{Resource: fr.indices.buffer, Before: gpu.ResourceStateCommon, After: gpu.ResourceStateCopyDest},
	)
	list.CopyBufferRegion(fr.vertices.buffer, 0, fr.vertices.upload, 0, vo)
	list.CopyBufferRegion(fr.indices.buffer, 0, fr.indices.upload, 0, io)
	list.ResourceBarrier(
		gpu.Barrier{Resource: fr.vertices.buffer, Before: gpu.ResourceStateCopyDest, After: gpu.ResourceStateCommon},
		gpu.Barrier{Resource: fr.indices.buffer, Before: gpu.ResourceStateCopyDest, After: gpu.ResourceStateCommon},
	)
	v, err := copyPool.ExecuteAndFreeList(h)
	if err != nil {
		return fmt.Errorf("ui upload: %w", err)
	}
	if err := direct.GPUWait(copyPool.InternalFence(), v); err != nil {
		return fmt.Errorf("ui upload: %w", err)
	}
	fr.vertexCount, fr.indexCount = uint64(nv), uint64(ni)
	return nil
}

// scissorFor converts a clip rectangle from display coordinates into a framebuffer scissor
// clamped to the framebuffer.
//
// Parameters:
//   - clip: min x, min y, max x, max y in display coordinates
//   - data: the draw data the clip rectangle belongs to
//   - width, height: the framebuffer size in pixels
//
// Returns:
//   - gpu.Rect: the scissor
//   - bool: false when nothing of the rectangle is visible
func scissorFor(clip [4]float32, data *UIDrawData, width, height uint32) (gpu.Rect, bool) {
	s := data.scale()
	minX := (clip[0] - data.DisplayPos[0]) * s[0]
	minY := (clip[1] - data.DisplayPos[1]) * s[1]
	maxX := (clip[2] - data.DisplayPos[0]) * s[0]
	maxY := (clip[3] - data.DisplayPos[1]) * s[1]
	r := gpu.Rect{
		Left:   int32(max(minX, 0)),
		Top:    int32(max(minY, 0)),
		Right:  int32(min(maxX, float32(width))),
		Bottom: int32(min(maxY, float32(height))),
	}
	if r.Right <= r.Left || r.Bottom <= r.Top {
		return gpu.Rect{}, false
	}
	return r, true
}

// projection maps the display rectangle onto clip space with y pointing down.
func (d *UIDrawData) projection() common.Mat4 {
	var m common.Mat4
	l, t := d.DisplayPos[0], d.DisplayPos[1]
	r, b := l+d.DisplaySize[0], t+d.DisplaySize[1]
	common.Orthographic(m[:], l, r, b, t, 0, 1)
	return m
}

func (u *uiPipeline) Render(list *gpu.CommandList, textures TextureSource, data *UIDrawData, backBuffer int, width, height uint32) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fr := &u.frames[backBuffer%len(u.frames)]
	if fr.indexCount == 0 || data.Empty() {
		return 0, nil
	}
	fallback, err := textures.Get(textures.Fallback())
	if err != nil {
		return 0, fmt.Errorf("ui pass: fallback texture: %w", err)
	}
	tables := make([][]gpu.GPUDescriptorHandle, len(data.Lists))
	for li := range data.Lists {
		cmds := data.Lists[li].Commands
		tables[li] = make([]gpu.GPUDescriptorHandle, len(cmds))
		for ci, c := range cmds {
			tex := fallback
			if !c.Texture.IsZero() {
				if tex, err = textures.Get(c.Texture); err != nil {
					return 0, fmt.Errorf("ui pass: list %d command %d texture %v: %w", li, ci, c.Texture, err)
				}
			}
			tables[li][ci] = tex.SRV.GPUHandle(0)
		}
	}

	list.ResourceBarrier(
		gpu.Barrier{Resource: fr.vertices.buffer, Before: gpu.ResourceStateCommon, After: gpu.ResourceStateVertexAndConstantBuffer},
		gpu.Barrier{Resource: fr.indices.buffer, Before: gpu.ResourceStateCommon, After: gpu.ResourceStateIndexBuffer},
	)
	u.pipeline.Bind(list)
	list.SetDescriptorHeaps(u.heap)
	consts := shader.SUIConstants{Projection: data.projection()}
	list.SetGraphicsRoot32BitConstants(shader.UIParamConstants, consts.Marshal(), 0)
	list.SetVertexBuffers(0, gpu.VertexBufferView{
		Resource: fr.vertices.buffer,
		Size:     fr.vertexCount * fr.vertices.stride,
		Stride:   uint32(fr.vertices.stride),
	})
	list.SetIndexBuffer(gpu.IndexBufferView{Resource: fr.indices.buffer, Size: fr.indexCount * 4, Format: gpu.FormatR32Uint})

	draws := 0
	var baseVertex, baseIndex uint32
	for li := range data.Lists {
		l := &data.Lists[li]
		for ci, c := range l.Commands {
			if c.ElemCount == 0 {
				continue
			}
			scissor, ok := scissorFor(c.ClipRect, data, width, height)
			if !ok {
				continue
			}
			list.SetScissorRect(scissor)
			list.SetGraphicsRootDescriptorTable(shader.UIParamTexture, tables[li][ci])
			list.DrawIndexedInstanced(c.ElemCount, 1, baseIndex+c.IndexOffset, int32(baseVertex+c.VertexOffset), 0)
			draws++
		}
		baseVertex += uint32(len(l.Vertices))
		baseIndex += uint32(len(l.Indices))
	}

	list.ResourceBarrier(
		gpu.Barrier{Resource: fr.vertices.buffer, Before: gpu.ResourceStateVertexAndConstantBuffer, After: gpu.ResourceStateCommon},
		gpu.Barrier{Resource: fr.indices.buffer, Before: gpu.ResourceStateIndexBuffer, After: gpu.ResourceStateCommon},
	)
	return draws, nil
}

func (u *uiPipeline) Pipeline() Pipeline {
	return u.pipeline
}

func (u *uiPipeline) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.frames {
		u.frames[i].vertices.release()
		u.frames[i].indices.release()
	}
	u.frames = nil
	u.pipeline.Release()
}

// UIBuilderOption is a functional option for configuring a UIPipeline.
type UIBuilderOption func(*uiPipeline)

// WithUIBackBuffers sets how many buffer sets are cycled, one per back buffer.
//
// Parameters:
//   - n: the back buffer count
//
// Returns:
//   - UIBuilderOption: a function that applies the back buffer option
func WithUIBackBuffers(n int) UIBuilderOption {
	return func(u *uiPipeline) {
		u.backBuffers = max(n, 1)
	}
}

// WithUIInitialCapacity sets the vertex and index capacity the buffers start with.
func WithUIInitialCapacity(vertices, indices uint32) UIBuilderOption {
	return func(u *uiPipeline) {
		u.initialVertices = uint64(max(vertices, 1))
		u.initialIndices = uint64(max(indices, 1))
	}
}
