package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// TempLayer selects when debug geometry is drawn.
type TempLayer int

const (
	// TempLayerInWorld geometry is depth tested against the world.
	TempLayerInWorld TempLayer = iota
	// TempLayerOverWorld geometry is drawn after the depth buffer is cleared, on top of the world.
	TempLayerOverWorld
	tempLayerCount
)

func (l TempLayer) String() string {
	switch l {
	case TempLayerInWorld:
		return "in world"
	case TempLayerOverWorld:
		return "over world"
	default:
		return fmt.Sprintf("TempLayer(%d)", int(l))
	}
}

// tempBatch is the queued geometry of one layer.
type tempBatch struct {
	lines     []shader.STempVertex
	triangles []shader.STempVertex
}

// tempUpload is where a layer's geometry landed in the back buffer's vertex buffer.
type tempUpload struct {
	lines     gpu.BindlessSlice
	triangles gpu.BindlessSlice
}

// tempRing is the vertex storage of one back buffer.
type tempRing struct {
	buffer  *gpu.BindlessBufferResource[shader.STempVertex]
	uploads [tempLayerCount]tempUpload
}

func (r *tempRing) reset() {
	for i := range r.uploads {
		for _, s := range []gpu.BindlessSlice{r.uploads[i].lines, r.uploads[i].triangles} {
			if s.Valid() {
				r.buffer.Free(s)
			}
		}
		r.uploads[i] = tempUpload{}
	}
}

// tempGeometryPipeline is the implementation of the TempGeometryPipeline interface.
type tempGeometryPipeline struct {
	mu sync.Mutex

	lines     Pipeline
	triangles Pipeline

	batches [tempLayerCount]tempBatch
	rings   []tempRing

	backBuffers int
	maxVertices uint32
}

// TempGeometryPipeline draws unlit debug lines and triangles that live for one frame. Callers
// queue geometry at any time; Upload moves everything queued into the back buffer's vertex
// buffer and empties the queue.
type TempGeometryPipeline interface {
	// DrawLine queues a line segment.
	DrawLine(layer TempLayer, a, b common.Vec3, color [4]float32)

	// DrawTriangle queues a filled triangle.
	DrawTriangle(layer TempLayer, a, b, c common.Vec3, color [4]float32)

	// DrawBox queues the twelve edges of an axis aligned box.
	DrawBox(layer TempLayer, min, max common.Vec3, color [4]float32)

	// DrawAxes queues three lines of the given length along +X, +Y and +Z from origin, colored
	// red, green and blue.
	DrawAxes(layer TempLayer, origin common.Vec3, length float32)

	// Pending returns the queued vertex counts of a layer.
	Pending(layer TempLayer) (lineVertices, triangleVertices int)

	// Upload stages the queued geometry of every layer into the back buffer's vertex buffer,
	// records the copy on list and clears the queue. Geometry beyond the buffer capacity is
	// dropped whole primitives at a time.
	//
	// Parameters:
	//   - list: a recording direct command list, executed before the draws
	//   - backBuffer: the back buffer the frame renders into; its previous frame must have completed
	//
	// Returns:
	//   - int: the number of vertices dropped
	Upload(list *gpu.CommandList, backBuffer int) int

	// Render draws the geometry uploaded for one layer. The caller binds the render target,
	// depth buffer, viewport and scissor.
	//
	// Parameters:
	//   - list: a recording direct command list
	//   - viewProjection: the camera view-projection
	//   - layer: the layer to draw
	//   - backBuffer: the back buffer Upload staged into
	//
	// Returns:
	//   - int: the number of draws recorded
	Render(list *gpu.CommandList, viewProjection common.Mat4, layer TempLayer, backBuffer int) int

	// Clear drops the queued geometry without uploading it.
	Clear()

	// Pipelines returns the line and triangle pipelines.
	Pipelines() []Pipeline

	// Release frees the vertex buffers and the pipelines. The GPU must be idle.
	Release()
}

var _ TempGeometryPipeline = &tempGeometryPipeline{}

// NewTempGeometryPipeline builds the line and triangle pipelines from the temp program and one
// vertex buffer per back buffer.
//
// Parameters:
//   - dev: the device
//   - lib: the shader library
//   - colorFormat: the render target format
//   - depthFormat: the depth buffer format
//   - options: a variadic list of TempBuilderOption functions
//
// Returns:
//   - TempGeometryPipeline: the pipeline
//   - error: a shader or creation failure
func NewTempGeometryPipeline(dev gpu.Device, lib shader.Library, colorFormat, depthFormat gpu.Format, options ...TempBuilderOption) (TempGeometryPipeline, error) {
	t := &tempGeometryPipeline{
		backBuffers: 2,
		maxVertices: 1 << 16,
	}
	for _, opt := range options {
		opt(t)
	}

	prog, err := lib.Get(shader.ProgramTemp)
	if err != nil {
		return nil, err
	}
	build := func(key string, topology gpu.PrimitiveTopology) (Pipeline, error) {
		p := NewPipeline(key, PipelineTypeRender, shader.TempRootSignature(),
			WithVertexShader(prog),
			WithFragmentShader(prog),
			WithInputLayout(shader.TempInputLayout()),
			WithTopology(topology),
			WithBlendEnabled(true),
			WithDepthFunc(gpu.ComparisonLessEqual),
			WithRenderTargetFormats(colorFormat),
			WithDepthFormat(depthFormat),
		)
		return p, p.Build(dev)
	}
	if t.lines, err = build("temp lines", gpu.TopologyLineList); err != nil {
		return nil, err
	}
	if t.triangles, err = build("temp triangles", gpu.TopologyTriangleList); err != nil {
		t.lines.Release()
		return nil, err
	}

	for i := 0; i < t.backBuffers; i++ {
		buf, err := gpu.NewBindlessBufferResource[shader.STempVertex](dev, fmt.Sprintf("temp vertices %d", i), t.maxVertices, t.maxVertices, gpu.ResourceStateVertexAndConstantBuffer)
		if err != nil {
			t.Release()
			return nil, err
		}
		t.rings = append(t.rings, tempRing{buffer: buf})
	}
	return t, nil
}

func (t *tempGeometryPipeline) DrawLine(layer TempLayer, a, b common.Vec3, color [4]float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bt := &t.batches[layer]
	bt.lines = append(bt.lines,
		shader.STempVertex{Position: a, Color: color},
		shader.STempVertex{Position: b, Color: color})
}

func (t *tempGeometryPipeline) DrawTriangle(layer TempLayer, a, b, c common.Vec3, color [4]float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bt := &t.batches[layer]
	bt.triangles = append(bt.triangles,
		shader.STempVertex{Position: a, Color: color},
		shader.STempVertex{Position: b, Color: color},
		shader.STempVertex{Position: c, Color: color})
}

func (t *tempGeometryPipeline) DrawBox(layer TempLayer, min, max common.Vec3, color [4]float32) {
	var corners [8]common.Vec3
	for i := range corners {
		corners[i] = min
		if i&1 != 0 {
			corners[i][0] = max[0]
		}
		if i&2 != 0 {
			corners[i][1] = max[1]
		}
		if i&4 != 0 {
			corners[i][2] = max[2]
		}
	}
	// corners differing in exactly one bit share an edge
	for i := 0; i < 8; i++ {
		for bit := 1; bit < 8; bit <<= 1 {
			if j := i | bit; j != i {
				t.DrawLine(layer, corners[i], corners[j], color)
			}
		}
	}
}

func (t *tempGeometryPipeline) DrawAxes(layer TempLayer, origin common.Vec3, length float32) {
	t.DrawLine(layer, origin, common.Vec3{origin[0] + length, origin[1], origin[2]}, [4]float32{1, 0, 0, 1})
	t.DrawLine(layer, origin, common.Vec3{origin[0], origin[1] + length, origin[2]}, [4]float32{0, 1, 0, 1})
	t.DrawLine(layer, origin, common.Vec3{origin[0], origin[1], origin[2] + length}, [4]float32{0, 0, 1, 1})
}

func (t *tempGeometryPipeline) Pending(layer TempLayer) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches[layer].lines), len(t.batches[layer].triangles)
}

// stage allocates and stages up to the remaining capacity of verts, whole primitives of the
// given size only.
func (t *tempGeometryPipeline) stage(ring *tempRing, verts []shader.STempVertex, primitive int, remaining *uint32) (gpu.BindlessSlice, int) {
	n := min(len(verts), int(*remaining))
	n -= n % primitive
	dropped := len(verts) - n
	if n == 0 {
		return gpu.BindlessSlice{}, dropped
	}
	s, err := ring.buffer.Alloc(uint32(n))
	if err != nil {
		return gpu.BindlessSlice{}, len(verts)
	}
	ring.buffer.CopyToUpload(s, verts[:n])
	*remaining -= uint32(n)
	return s, dropped
}

func (t *tempGeometryPipeline) Upload(list *gpu.CommandList, backBuffer int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := &t.rings[backBuffer%len(t.rings)]
	ring.reset()
	remaining := t.maxVertices
	dropped := 0
	for layer := range t.batches {
		bt := &t.batches[layer]
		var d int
		ring.uploads[layer].lines, d = t.stage(ring, bt.lines, 2, &remaining)
		dropped += d
		ring.uploads[layer].triangles, d = t.stage(ring, bt.triangles, 3, &remaining)
		dropped += d
		bt.lines = bt.lines[:0]
		bt.triangles = bt.triangles[:0]
	}
	ring.buffer.FlushUploadToDefault(list)
	if dropped > 0 {
		common.Logger().Warn("temp geometry over capacity", "dropped", dropped, "capacity", t.maxVertices)
	}
	return dropped
}

func (t *tempGeometryPipeline) Render(list *gpu.CommandList, viewProjection common.Mat4, layer TempLayer, backBuffer int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := &t.rings[backBuffer%len(t.rings)]
	up := ring.uploads[layer]
	consts := shader.STempConstants{ViewProjection: viewProjection}
	draws := 0
	for _, b := range []struct {
		p Pipeline
		s gpu.BindlessSlice
	}{{t.lines, up.lines}, {t.triangles, up.triangles}} {
		if !b.s.Valid() {
			continue
		}
		b.p.Bind(list)
		list.SetGraphicsRoot32BitConstants(shader.TempParamConstants, consts.Marshal(), 0)
		list.SetVertexBuffers(0, ring.buffer.VertexView(b.s))
		list.DrawInstanced(b.s.Count(), 1, 0, 0)
		draws++
	}
	return draws
}

func (t *tempGeometryPipeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.batches {
		t.batches[i].lines = t.batches[i].lines[:0]
		t.batches[i].triangles = t.batches[i].triangles[:0]
	}
}

func (t *tempGeometryPipeline) Pipelines() []Pipeline {
	return []Pipeline{t.lines, t.triangles}
}

func (t *tempGeometryPipeline) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rings {
		t.rings[i].reset()
		t.rings[i].buffer.Release()
	}
	t.rings = nil
	if t.lines != nil {
		t.lines.Release()
	}
	if t.triangles != nil {
		t.triangles.Release()
	}
}
