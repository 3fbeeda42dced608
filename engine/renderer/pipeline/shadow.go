package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/chewxy/math32"
)

// ShadowFormat is the depth format of the shadow cube.
const ShadowFormat = gpu.FormatD32Float

// ShadowFaceCount is the number of faces of the shadow cube.
const ShadowFaceCount = 6

// shadowFaces holds the view direction and up vector of each cube face in +X, -X, +Y, -Y, +Z,
// -Z order. Looking along ±Y the default up would be parallel to the view, so those faces use
// ±Z.
var shadowFaces = [ShadowFaceCount]struct{ dir, up common.Vec3 }{
	{common.Vec3{1, 0, 0}, common.Vec3{0, -1, 0}},
	{common.Vec3{-1, 0, 0}, common.Vec3{0, -1, 0}},
	{common.Vec3{0, 1, 0}, common.Vec3{0, 0, 1}},
	{common.Vec3{0, -1, 0}, common.Vec3{0, 0, -1}},
	{common.Vec3{0, 0, 1}, common.Vec3{0, -1, 0}},
	{common.Vec3{0, 0, -1}, common.Vec3{0, -1, 0}},
}

// shadowMappingPipeline is the implementation of the ShadowMappingPipeline interface.
type shadowMappingPipeline struct {
	mu sync.Mutex

	pipeline Pipeline

	cube *gpu.Resource
	dsvs *gpu.DescriptorAllocator
	dsv  *gpu.DescriptorAllocation
	srv  *gpu.DescriptorAllocation

	resolution uint32
	near, far  float32
	bias       float32
	depthBias  int32
	slopeBias  float32
}

// ShadowMappingPipeline renders the depth of shadow casters around a point light into a cube
// texture the world pass samples.
type ShadowMappingPipeline interface {
	// Render draws every shadow casting model into the six cube faces. The cube is moved to
	// DepthWrite for the pass and back to GenericRead afterwards. No culling against the
	// light's faces is done.
	//
	// Parameters:
	//   - meshes: resolves the models' mesh handles
	//   - lightPos: the light position in world space
	//   - list: a recording direct command list
	//   - f: the frame; View and Projection are not used
	//
	// Returns:
	//   - error: an unresolvable mesh handle or mismatched model and transform slices
	Render(meshes MeshSource, lightPos [3]float32, list *gpu.CommandList, f *Frame) error

	// FaceViewProjection returns the view and projection of one cube face.
	//
	// Parameters:
	//   - face: the face index in +X, -X, +Y, -Y, +Z, -Z order
	//   - lightPos: the light position
	//
	// Returns:
	//   - common.Mat4: the view matrix
	//   - common.Mat4: the 90 degree projection
	FaceViewProjection(face int, lightPos [3]float32) (common.Mat4, common.Mat4)

	// Constants returns the block the world pass reads to sample the cube.
	Constants(lightPos [3]float32) shader.SShadowConstants

	// ShadowMap returns the depth cube.
	ShadowMap() *gpu.Resource

	// SRV returns the cube's shader resource view.
	SRV() *gpu.DescriptorAllocation

	// Resolution returns the edge length of each face in texels.
	Resolution() uint32

	// Pipeline returns the depth-only pipeline.
	Pipeline() Pipeline

	// Release frees the cube, its views and the pipeline. The GPU must be idle.
	Release()
}

var _ ShadowMappingPipeline = &shadowMappingPipeline{}

// NewShadowMappingPipeline creates the depth cube, its six depth views and its shader resource
// view, and builds the depth-only pipeline from the shadow program.
//
// Parameters:
//   - dev: the device
//   - lib: the shader library
//   - descriptors: the shader visible allocator the cube SRV is taken from
//   - options: a variadic list of ShadowBuilderOption functions
//
// Returns:
//   - ShadowMappingPipeline: the pipeline
//   - error: a shader, descriptor or creation failure
func NewShadowMappingPipeline(dev gpu.Device, lib shader.Library, descriptors *gpu.DescriptorAllocator, options ...ShadowBuilderOption) (ShadowMappingPipeline, error) {
	s := &shadowMappingPipeline{
		resolution: 1024,
		near:       0.1,
		far:        100,
		bias:       0.0005,
		depthBias:  2,
		slopeBias:  2,
	}
	for _, opt := range options {
		opt(s)
	}

	prog, err := lib.Get(shader.ProgramShadow)
	if err != nil {
		return nil, err
	}
	s.pipeline = NewPipeline("shadow", PipelineTypeRender, shader.ShadowRootSignature(),
		WithVertexShader(prog),
		WithInputLayout(shader.ShadowInputLayout()),
		WithDepthFormat(ShadowFormat),
		WithDepthBias(s.depthBias, s.slopeBias),
		WithCullMode(gpu.CullNone),
	)
	if err := s.pipeline.Build(dev); err != nil {
		return nil, err
	}

	s.cube, err = gpu.CreateCommittedTexture(dev, gpu.TextureDesc{
		Label:       "shadow cube",
		Width:       s.resolution,
		Height:      s.resolution,
		ArrayLayers: ShadowFaceCount,
		MipLevels:   1,
		SampleCount: 1,
		Format:      ShadowFormat,
		Dimension:   gpu.TextureDimensionCube,
		Flags:       gpu.ResourceFlagAllowDepthStencil,
		ClearDepth:  1,
	}, gpu.ResourceStateGenericRead)
	if err != nil {
		s.pipeline.Release()
		return nil, err
	}

	s.dsvs = gpu.NewDescriptorAllocator(gpu.DescriptorHeapDSV, ShadowFaceCount)
	if s.dsv, err = s.dsvs.Alloc(ShadowFaceCount); err != nil {
		s.Release()
		return nil, err
	}
	for face := uint32(0); face < ShadowFaceCount; face++ {
		s.dsvs.Heap().CreateDepthStencilView(s.cube, gpu.ViewDesc{
			Dimension:      gpu.ViewDimensionTexture2DArray,
			Format:         ShadowFormat,
			BaseArrayLayer: face,
			ArrayLayers:    1,
		}, s.dsv.CPUHandle(face))
	}

	if s.srv, err = descriptors.Alloc(1); err != nil {
		s.Release()
		return nil, fmt.Errorf("shadow cube view: %w", err)
	}
	descriptors.Heap().CreateShaderResourceView(s.cube, gpu.ViewDesc{
		Dimension:   gpu.ViewDimensionTextureCube,
		Format:      ShadowFormat,
		ArrayLayers: ShadowFaceCount,
	}, s.srv.CPUHandle(0))

	common.Logger().Info("shadow pipeline created", "resolution", s.resolution, "near", s.near, "far", s.far)
	return s, nil
}

func (s *shadowMappingPipeline) FaceViewProjection(face int, lightPos [3]float32) (common.Mat4, common.Mat4) {
	f := shadowFaces[face]
	view := common.LookTo(common.Vec3(lightPos), f.dir, f.up)
	var proj common.Mat4
	common.Perspective(proj[:], math32.Pi/2, 1, s.near, s.far)
	return view, proj
}

func (s *shadowMappingPipeline) Constants(lightPos [3]float32) shader.SShadowConstants {
	return shader.SShadowConstants{LightPosition: lightPos, NearPlane: s.near, FarPlane: s.far, Bias: s.bias}
}

func (s *shadowMappingPipeline) Render(meshes MeshSource, lightPos [3]float32, list *gpu.CommandList, f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draws, err := collectDraws(meshes, f, func(i *model.Instance) bool { return i.CastsShadow })
	if err != nil {
		return fmt.Errorf("shadow pass: %w", err)
	}

	list.Transition(s.cube, gpu.ResourceStateGenericRead, gpu.ResourceStateDepthWrite)
	s.pipeline.Bind(list)
	viewport, scissor := fullViewport(s.resolution, s.resolution)
	list.SetViewport(viewport)
	list.SetScissorRect(scissor)

	for face := 0; face < ShadowFaceCount; face++ {
		view, proj := s.FaceViewProjection(face, lightPos)
		dsv := s.dsv.CPUHandle(uint32(face))
		list.ClearDepthStencilView(dsv, 1)
		list.OMSetRenderTargets(nil, &dsv)
		for i := range draws {
			d := &draws[i]
			mvp := shader.SModelViewProjection{Model: f.Transforms[d.index], View: view, Projection: proj}
			list.SetGraphicsRoot32BitConstants(shader.ShadowParamMVP, mvp.Marshal(), 0)
			drawMesh(list, d, 1)
		}
	}

	list.Transition(s.cube, gpu.ResourceStateDepthWrite, gpu.ResourceStateGenericRead)
	return nil
}

func (s *shadowMappingPipeline) ShadowMap() *gpu.Resource {
	return s.cube
}

func (s *shadowMappingPipeline) SRV() *gpu.DescriptorAllocation {
	return s.srv
}

func (s *shadowMappingPipeline) Resolution() uint32 {
	return s.resolution
}

func (s *shadowMappingPipeline) Pipeline() Pipeline {
	return s.pipeline
}

func (s *shadowMappingPipeline) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		s.srv.Free()
		s.srv = nil
	}
	if s.dsv != nil {
		s.dsv.Free()
		s.dsv = nil
	}
	if s.cube != nil {
		s.cube.Release()
		s.cube = nil
	}
	if s.dsvs != nil {
		s.dsvs.Release()
		s.dsvs = nil
	}
	s.pipeline.Release()
}
