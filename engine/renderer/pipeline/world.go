package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/loader"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// worldPipeline is the implementation of the WorldPipeline interface.
type worldPipeline struct {
	mu sync.Mutex

	pipeline Pipeline
	heap     *gpu.DescriptorHeap

	cullMode gpu.CullMode
	culling  bool
	culled   int
	drawn    int
}

// WorldPipeline draws opaque geometry lit by the point light and shadowed by the shadow cube.
type WorldPipeline interface {
	// Render draws every visible model. The caller binds the render target, depth buffer,
	// viewport and scissor. Each draw sets its model-view-projection and texture metadata
	// constants and its texture table; untextured models bind the fallback texture with
	// sampling disabled. Static models outside the view frustum are skipped when culling is
	// enabled.
	//
	// Parameters:
	//   - list: a recording direct command list
	//   - meshes: resolves mesh handles
	//   - textures: resolves texture handles
	//   - f: the frame
	//   - shadow: the light and projection the shadow cube was rendered with
	//   - shadowMap: the shadow cube view, in GenericRead
	//
	// Returns:
	//   - error: an unresolvable mesh or texture handle, or mismatched model and transform slices
	Render(list *gpu.CommandList, meshes MeshSource, textures TextureSource, f *Frame, shadow shader.SShadowConstants, shadowMap *gpu.DescriptorAllocation) error

	// Stats returns the number of models drawn and culled by the last Render.
	Stats() (drawn, culled int)

	// Pipeline returns the world pipeline.
	Pipeline() Pipeline

	// Release destroys the pipeline.
	Release()
}

var _ WorldPipeline = &worldPipeline{}

// NewWorldPipeline builds the world pipeline from the world program.
//
// Parameters:
//   - dev: the device
//   - lib: the shader library
//   - heap: the shader visible heap textures and the shadow cube view live in
//   - colorFormat: the render target format
//   - depthFormat: the depth buffer format
//   - options: a variadic list of WorldBuilderOption functions
//
// Returns:
//   - WorldPipeline: the pipeline
//   - error: a shader or creation failure
func NewWorldPipeline(dev gpu.Device, lib shader.Library, heap *gpu.DescriptorHeap, colorFormat, depthFormat gpu.Format, options ...WorldBuilderOption) (WorldPipeline, error) {
	w := &worldPipeline{
		heap:     heap,
		cullMode: gpu.CullBack,
		culling:  true,
	}
	for _, opt := range options {
		opt(w)
	}

	prog, err := lib.Get(shader.ProgramWorld)
	if err != nil {
		return nil, err
	}
	w.pipeline = NewPipeline("world", PipelineTypeRender, shader.WorldRootSignature(),
		WithVertexShader(prog),
		WithFragmentShader(prog),
		WithInputLayout(shader.MeshInputLayout()),
		WithCullMode(w.cullMode),
		WithRenderTargetFormats(colorFormat),
		WithDepthFormat(depthFormat),
	)
	if err := w.pipeline.Build(dev); err != nil {
		return nil, err
	}
	return w, nil
}

// worldDraw is a draw with its resolved texture.
type worldDraw struct {
	drawItem
	texture  *loader.Texture
	textured bool
}

// resolveTextures pairs every draw with its texture, the fallback for untextured models.
func resolveTextures(textures TextureSource, draws []drawItem) ([]worldDraw, error) {
	fallback, err := textures.Get(textures.Fallback())
	if err != nil {
		return nil, fmt.Errorf("fallback texture: %w", err)
	}
	out := make([]worldDraw, len(draws))
	for i, d := range draws {
		out[i] = worldDraw{drawItem: d, texture: fallback}
		if !d.instance.Textured() {
			continue
		}
		tex, err := textures.Get(d.instance.Texture)
		if err != nil {
			return nil, fmt.Errorf("instance %d texture %v: %w", d.instance.ID, d.instance.Texture, err)
		}
		out[i].texture, out[i].textured = tex, true
	}
	return out, nil
}

func (w *worldPipeline) Render(list *gpu.CommandList, meshes MeshSource, textures TextureSource, f *Frame, shadow shader.SShadowConstants, shadowMap *gpu.DescriptorAllocation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := collectDraws(meshes, f, func(*model.Instance) bool { return true })
	if err != nil {
		return fmt.Errorf("world pass: %w", err)
	}
	visible := all
	if w.culling {
		frustum := common.ExtractFrustum(f.Projection.Mul(f.View))
		visible = all[:0:0]
		for _, d := range all {
			// skinned vertices may leave the bind-pose bounds
			if !d.mesh.Skinned() {
				m := f.Transforms[d.index]
				if !frustum.IntersectsSphere(m.Translation(), d.mesh.BoundingRadius*m.MaxScale()) {
					continue
				}
			}
			visible = append(visible, d)
		}
	}
	draws, err := resolveTextures(textures, visible)
	if err != nil {
		return fmt.Errorf("world pass: %w", err)
	}
	w.drawn, w.culled = len(draws), len(all)-len(visible)

	w.pipeline.Bind(list)
	list.SetDescriptorHeaps(w.heap)
	list.SetGraphicsRoot32BitConstants(shader.WorldParamShadowConstants, shadow.Marshal(), 0)
	list.SetGraphicsRootDescriptorTable(shader.WorldParamShadowMap, shadowMap.GPUHandle(0))

	for i := range draws {
		d := &draws[i]
		mvp := shader.SModelViewProjection{Model: f.Transforms[d.index], View: f.View, Projection: f.Projection}
		meta := shader.STextureMetadata{BaseColor: d.instance.BaseColor}
		if d.textured {
			meta.HasTexture = 1
		}
		if d.instance.ReceivesShadow {
			meta.ReceivesShadow = 1
		}
		list.SetGraphicsRoot32BitConstants(shader.WorldParamMVP, mvp.Marshal(), 0)
		list.SetGraphicsRoot32BitConstants(shader.WorldParamTextureMetadata, meta.Marshal(), 0)
		list.SetGraphicsRootDescriptorTable(shader.WorldParamTexture, d.texture.SRV.GPUHandle(0))
		drawMesh(list, &d.drawItem, 3)
	}
	return nil
}

func (w *worldPipeline) Stats() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drawn, w.culled
}

func (w *worldPipeline) Pipeline() Pipeline {
	return w.pipeline
}

func (w *worldPipeline) Release() {
	w.pipeline.Release()
}
