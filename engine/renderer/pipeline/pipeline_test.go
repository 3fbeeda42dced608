package pipeline

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/loader"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dev         *gputest.FakeDevice
	direct      *gpu.CommandQueue
	copyQueue   *gpu.CommandQueue
	descriptors *gpu.DescriptorAllocator
	lib         shader.Library
	meshes      loader.MeshLoader
	textures    loader.TextureLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dev: gputest.NewFakeDevice()}
	f.direct = gpu.NewCommandQueue(f.dev, gpu.CommandListTypeDirect)
	f.copyQueue = gpu.NewCommandQueue(f.dev, gpu.CommandListTypeCopy)
	f.descriptors = gpu.NewDescriptorAllocator(gpu.DescriptorHeapCBVSRVUAV, 128)

	var err error
	f.lib, err = shader.NewLibrary()
	require.NoError(t, err)
	f.meshes, err = loader.NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)
	f.textures, err = loader.NewTextureLoader(context.Background(), f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		assert.NoError(t, f.meshes.Shutdown(ctx))
		assert.NoError(t, f.textures.Shutdown(ctx))
	})
	return f
}

// recordingList returns a direct list with dummy targets bound so draws validate.
func (f *fixture) recordingList() *gpu.CommandList {
	l := gpu.NewCommandList(gpu.CommandListTypeDirect, "test")
	l.Reset(gpu.NewCommandAllocator(f.dev, gpu.CommandListTypeDirect))
	dsv := gpu.CPUDescriptorHandle{Ptr: 2}
	l.OMSetRenderTargets([]gpu.CPUDescriptorHandle{{Ptr: 1}}, &dsv)
	return l
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

// strip returns a skinned triangle strip of n vertices bound entirely to joint 0.
func strip(n int) *model.MeshData {
	m := &model.MeshData{Name: "strip", MaterialIndex: -1}
	for i := 0; i < n; i++ {
		m.Positions = append(m.Positions, [3]float32{float32(i / 2), float32(i % 2), 0})
		m.Normals = append(m.Normals, [3]float32{0, 0, 1})
		m.UVs = append(m.UVs, [2]float32{0, 0})
		m.Joints = append(m.Joints, [4]uint32{})
		m.Weights = append(m.Weights, [4]float32{1})
	}
	for i := 0; i+2 < n; i++ {
		m.Indices = append(m.Indices, uint32(i), uint32(i+1), uint32(i+2))
	}
	return m
}

func twoJointSkeleton() *model.Skeleton {
	return &model.Skeleton{
		Joints: []model.Joint{
			{Name: "root", Parent: model.NoParent, InverseBind: common.IdentityMat4(), Local: model.IdentityTransform()},
			{Name: "tip", Parent: 0, InverseBind: common.IdentityMat4(), Local: model.IdentityTransform()},
		},
		JointNameToIndex: map[string]int32{"root": 0, "tip": 1},
	}
}

func translation(x, y, z float32) common.Mat4 {
	m := common.IdentityMat4()
	m[12], m[13], m[14] = x, y, z
	return m
}

func cameraFrame(models []model.Instance, transforms []common.Mat4) *Frame {
	f := &Frame{Models: models, Transforms: transforms}
	common.LookAt(f.View[:], 0, 0, 5, 0, 0, 0, 0, 1, 0)
	common.Perspective(f.Projection[:], math32.Pi/3, 1, 0.1, 20)
	return f
}

func opsOf(list *gpu.CommandList, kind gpu.OpKind) []gpu.Op {
	var out []gpu.Op
	for _, op := range list.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func TestPipelineBuildAndRebuild(t *testing.T) {
	f := newFixture(t)
	prog, err := f.lib.Get(shader.ProgramTemp)
	require.NoError(t, err)

	p := NewPipeline("temp", PipelineTypeRender, shader.TempRootSignature(),
		WithVertexShader(prog),
		WithFragmentShader(prog),
		WithInputLayout(shader.TempInputLayout()),
		WithRenderTargetFormats(gpu.FormatBGRA8Unorm),
		WithDepthFormat(gpu.FormatD32Float),
	)
	list := f.recordingList()
	assert.Panics(t, func() { p.Bind(list) }, "binding before Build")

	require.NoError(t, p.Build(f.dev))
	first := p.State()
	require.NotNil(t, first)
	desc := p.GraphicsDesc()
	assert.Equal(t, []gpu.Format{gpu.FormatBGRA8Unorm}, desc.RTVFormats)
	assert.True(t, desc.DepthStencil.DepthEnable)
	assert.False(t, desc.VS.Empty())

	require.NoError(t, p.Rebuild(f.dev, f.lib))
	assert.NotSame(t, first, p.State())
	p.Bind(list)
	assert.Len(t, opsOf(list, gpu.OpSetPipelineState), 1)
	assert.Len(t, opsOf(list, gpu.OpSetRootSignature), 1)
}

func TestPipelineRejectsMismatchedLayout(t *testing.T) {
	f := newFixture(t)
	prog, err := f.lib.Get(shader.ProgramWorld)
	require.NoError(t, err)

	p := NewPipeline("bad", PipelineTypeRender, shader.WorldRootSignature(),
		WithVertexShader(prog),
		WithFragmentShader(prog),
		WithInputLayout(shader.ShadowInputLayout()),
	)
	assert.Error(t, p.Build(f.dev))
	assert.Nil(t, p.State())
}

func TestShadowFaceUpVectors(t *testing.T) {
	for i, face := range shadowFaces {
		dot := face.dir[0]*face.up[0] + face.dir[1]*face.up[1] + face.dir[2]*face.up[2]
		assert.Zero(t, dot, "face %d up is perpendicular to its direction", i)
	}
	assert.Equal(t, common.Vec3{0, 0, 1}, shadowFaces[2].up)
	assert.Equal(t, common.Vec3{0, 0, -1}, shadowFaces[3].up)

	f := newFixture(t)
	s, err := NewShadowMappingPipeline(f.dev, f.lib, f.descriptors)
	require.NoError(t, err)
	defer s.Release()

	light := [3]float32{1, 2, 3}
	for i, face := range shadowFaces {
		view, _ := s.FaceViewProjection(i, light)
		ahead := view.TransformPoint(common.Vec3{light[0] + face.dir[0], light[1] + face.dir[1], light[2] + face.dir[2]})
		assert.InDelta(t, 0, ahead[0], 1e-5, "face %d", i)
		assert.InDelta(t, 0, ahead[1], 1e-5, "face %d", i)
		assert.InDelta(t, -1, ahead[2], 1e-5, "face %d looks down -Z in view space", i)
	}
}

func TestShadowRenderDrawsCastersIntoEveryFace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mesh, err := f.meshes.GetOrCreateMesh(ctx, "quad", quad())
	require.NoError(t, err)

	s, err := NewShadowMappingPipeline(f.dev, f.lib, f.descriptors, WithShadowResolution(256), WithShadowPlanes(0.5, 50))
	require.NoError(t, err)
	defer s.Release()
	assert.Equal(t, uint32(256), s.Resolution())
	assert.Equal(t, shader.SShadowConstants{LightPosition: [3]float32{0, 4, 0}, NearPlane: 0.5, FarPlane: 50, Bias: 0.0005}, s.Constants([3]float32{0, 4, 0}))

	models := []model.Instance{
		model.NewInstance(1, mesh),
		model.NewInstance(2, mesh, model.WithCastsShadow(false)),
		model.NewInstance(3, mesh, model.WithHidden(true)),
	}
	frame := cameraFrame(models, []common.Mat4{common.IdentityMat4(), common.IdentityMat4(), common.IdentityMat4()})
	list := f.recordingList()
	require.NoError(t, s.Render(f.meshes, [3]float32{0, 4, 0}, list, frame))

	assert.Len(t, opsOf(list, gpu.OpClearDepthStencil), ShadowFaceCount)
	assert.Len(t, opsOf(list, gpu.OpDrawIndexed), ShadowFaceCount, "one caster drawn per face")
	barriers := opsOf(list, gpu.OpBarrier)
	require.Len(t, barriers, 2)
	assert.Equal(t, gpu.ResourceStateDepthWrite, barriers[0].Barrier.After)
	assert.Equal(t, gpu.ResourceStateGenericRead, barriers[1].Barrier.After)
	assert.Equal(t, gpu.ResourceStateGenericRead, s.ShadowMap().State())
	for _, vb := range opsOf(list, gpu.OpSetVertexBuffer) {
		assert.Equal(t, uint32(0), vb.Slot, "the shadow pass binds positions only")
	}
}

func TestShadowRenderFailsBeforeRecording(t *testing.T) {
	f := newFixture(t)
	s, err := NewShadowMappingPipeline(f.dev, f.lib, f.descriptors)
	require.NoError(t, err)
	defer s.Release()

	models := []model.Instance{model.NewInstance(1, handle.Handle{Index: 40, Generation: 1})}
	list := f.recordingList()
	before := len(list.Ops())
	assert.Error(t, s.Render(f.meshes, [3]float32{}, list, cameraFrame(models, []common.Mat4{common.IdentityMat4()})))
	assert.Len(t, list.Ops(), before)

	assert.Error(t, s.Render(f.meshes, [3]float32{}, list, cameraFrame(models, nil)), "models without transforms")
}

func TestSkinningDispatchesPerSixtyFourVertices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mesh, err := f.meshes.GetOrCreateMeshSkinned(ctx, "strip", strip(130), twoJointSkeleton())
	require.NoError(t, err)

	sk, err := NewComputeSkinningPipeline(f.dev, f.lib, f.descriptors.Heap(), WithRetireAfter(2))
	require.NoError(t, err)
	defer sk.Release()

	models := []model.Instance{model.NewInstance(7, mesh)}
	anim := animator.NewAnimator(animator.WithSkeleton(twoJointSkeleton()), animator.WithInstances(0))

	list := f.recordingList()
	require.NoError(t, sk.Compute(list, f.meshes, []animator.Animator{anim}, models, 0))

	dispatches := opsOf(list, gpu.OpDispatch)
	require.Len(t, dispatches, 1)
	assert.Equal(t, uint32(3), dispatches[0].Groups[0], "130 vertices need three groups of 64")
	assert.Equal(t, 1, sk.InstanceCount())

	streams, ok := sk.Streams(7)
	require.True(t, ok)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, streams[0].Resource.State())
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, streams[1].Resource.State())
	assert.Equal(t, uint64(130*12), streams[0].Size)

	frame := cameraFrame(models, []common.Mat4{common.IdentityMat4()})
	frame.Skinned = sk
	draws, err := collectDraws(f.meshes, frame, func(*model.Instance) bool { return true })
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.Equal(t, streams[0], draws[0].streams[0], "the skinned positions replace the bind pose")

	// frames without the instance retire its streams
	for i := 0; i < 2; i++ {
		require.NoError(t, sk.Compute(f.recordingList(), f.meshes, nil, models, i%2))
	}
	_, ok = sk.Streams(7)
	assert.False(t, ok)
	assert.Zero(t, sk.InstanceCount())
}

func TestSkinningRejectsStaticMeshes(t *testing.T) {
	f := newFixture(t)
	mesh, err := f.meshes.GetOrCreateMesh(context.Background(), "quad", quad())
	require.NoError(t, err)
	sk, err := NewComputeSkinningPipeline(f.dev, f.lib, f.descriptors.Heap())
	require.NoError(t, err)
	defer sk.Release()

	anim := animator.NewAnimator(animator.WithSkeleton(twoJointSkeleton()), animator.WithInstances(0))
	err = sk.Compute(f.recordingList(), f.meshes, []animator.Animator{anim}, []model.Instance{model.NewInstance(1, mesh)}, 0)
	assert.ErrorContains(t, err, "no skin")
}

func TestSkinningFailureDiscardsStagedJoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	skinned, err := f.meshes.GetOrCreateMeshSkinned(ctx, "strip", strip(8), twoJointSkeleton())
	require.NoError(t, err)
	static, err := f.meshes.GetOrCreateMesh(ctx, "quad", quad())
	require.NoError(t, err)
	sk, err := NewComputeSkinningPipeline(f.dev, f.lib, f.descriptors.Heap())
	require.NoError(t, err)
	defer sk.Release()
	ring := &sk.(*computeSkinningPipeline).rings[0]

	// the first instance stages its joints before the second fails
	models := []model.Instance{model.NewInstance(1, skinned), model.NewInstance(2, static)}
	anim := animator.NewAnimator(animator.WithSkeleton(twoJointSkeleton()), animator.WithInstances(0, 1))
	list := f.recordingList()
	require.ErrorContains(t, sk.Compute(list, f.meshes, []animator.Animator{anim}, models, 0), "no skin")
	assert.Empty(t, ring.buffer.Staged())
	assert.Empty(t, ring.slices)
	assert.Empty(t, opsOf(list, gpu.OpCopyBufferRegion))

	anim = animator.NewAnimator(animator.WithSkeleton(twoJointSkeleton()), animator.WithInstances(0))
	list = f.recordingList()
	require.NoError(t, sk.Compute(list, f.meshes, []animator.Animator{anim}, models, 0))
	copies := opsOf(list, gpu.OpCopyBufferRegion)
	require.Len(t, copies, 1, "only this frame's joints are copied")
}

func TestWorldBindsTexturesAndCulls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mesh, err := f.meshes.GetOrCreateMesh(ctx, "quad", quad())
	require.NoError(t, err)
	red, err := f.textures.GetOrCreateTextureData(ctx, "red", common.TextureData{Pixels: []byte{255, 0, 0, 255}, Width: 1, Height: 1})
	require.NoError(t, err)
	redTex, err := f.textures.Get(red)
	require.NoError(t, err)
	fallback, err := f.textures.Get(f.textures.Fallback())
	require.NoError(t, err)

	shadow, err := NewShadowMappingPipeline(f.dev, f.lib, f.descriptors)
	require.NoError(t, err)
	defer shadow.Release()
	w, err := NewWorldPipeline(f.dev, f.lib, f.descriptors.Heap(), gpu.FormatBGRA8Unorm, gpu.FormatD32Float)
	require.NoError(t, err)
	defer w.Release()

	models := []model.Instance{
		model.NewInstance(1, mesh, model.WithTexture(red)),
		model.NewInstance(2, mesh, model.WithReceivesShadow(false)),
		model.NewInstance(3, mesh),
	}
	transforms := []common.Mat4{common.IdentityMat4(), translation(1, 0, 0), translation(0, 0, 40)}
	list := f.recordingList()
	light := [3]float32{0, 5, 0}
	require.NoError(t, w.Render(list, f.meshes, f.textures, cameraFrame(models, transforms), shadow.Constants(light), shadow.SRV()))

	drawn, culled := w.Stats()
	assert.Equal(t, 2, drawn)
	assert.Equal(t, 1, culled, "the model behind the camera is culled")
	assert.Len(t, opsOf(list, gpu.OpDrawIndexed), 2)

	var textureTables []gpu.GPUDescriptorHandle
	for _, op := range opsOf(list, gpu.OpSetRootDescriptorTable) {
		switch op.RootIndex {
		case shader.WorldParamTexture:
			textureTables = append(textureTables, op.Table)
		case shader.WorldParamShadowMap:
			assert.Equal(t, shadow.SRV().GPUHandle(0), op.Table)
		}
	}
	assert.Equal(t, []gpu.GPUDescriptorHandle{redTex.SRV.GPUHandle(0), fallback.SRV.GPUHandle(0)}, textureTables)

	var metadata [][]byte
	for _, op := range opsOf(list, gpu.OpSetRootConstants) {
		if op.RootIndex == shader.WorldParamTextureMetadata {
			metadata = append(metadata, op.Constants)
		}
	}
	textured := shader.STextureMetadata{BaseColor: [4]float32{1, 1, 1, 1}, HasTexture: 1, ReceivesShadow: 1}
	plain := shader.STextureMetadata{BaseColor: [4]float32{1, 1, 1, 1}}
	assert.Equal(t, [][]byte{textured.Marshal(), plain.Marshal()}, metadata)
}

func TestWorldWithoutCullingDrawsEverything(t *testing.T) {
	f := newFixture(t)
	mesh, err := f.meshes.GetOrCreateMesh(context.Background(), "quad", quad())
	require.NoError(t, err)
	shadow, err := NewShadowMappingPipeline(f.dev, f.lib, f.descriptors)
	require.NoError(t, err)
	defer shadow.Release()
	w, err := NewWorldPipeline(f.dev, f.lib, f.descriptors.Heap(), gpu.FormatBGRA8Unorm, gpu.FormatD32Float, WithFrustumCulling(false))
	require.NoError(t, err)
	defer w.Release()

	models := []model.Instance{model.NewInstance(1, mesh)}
	list := f.recordingList()
	require.NoError(t, w.Render(list, f.meshes, f.textures, cameraFrame(models, []common.Mat4{translation(0, 0, 40)}), shadow.Constants([3]float32{}), shadow.SRV()))
	drawn, culled := w.Stats()
	assert.Equal(t, 1, drawn)
	assert.Zero(t, culled)

	bad := []model.Instance{model.NewInstance(1, mesh, model.WithTexture(handle.Handle{Index: 50, Generation: 3}))}
	assert.Error(t, w.Render(f.recordingList(), f.meshes, f.textures, cameraFrame(bad, []common.Mat4{common.IdentityMat4()}), shadow.Constants([3]float32{}), shadow.SRV()))
}

func TestTempGeometryBatchesPerLayer(t *testing.T) {
	f := newFixture(t)
	tg, err := NewTempGeometryPipeline(f.dev, f.lib, gpu.FormatBGRA8Unorm, gpu.FormatD32Float)
	require.NoError(t, err)
	defer tg.Release()

	white := [4]float32{1, 1, 1, 1}
	tg.DrawBox(TempLayerInWorld, common.Vec3{-1, -1, -1}, common.Vec3{1, 1, 1}, white)
	tg.DrawTriangle(TempLayerInWorld, common.Vec3{}, common.Vec3{1, 0, 0}, common.Vec3{0, 1, 0}, white)
	tg.DrawAxes(TempLayerOverWorld, common.Vec3{}, 2)

	lines, tris := tg.Pending(TempLayerInWorld)
	assert.Equal(t, 24, lines, "a box is twelve edges")
	assert.Equal(t, 3, tris)

	list := f.recordingList()
	assert.Zero(t, tg.Upload(list, 1))
	assert.Len(t, opsOf(list, gpu.OpCopyBufferRegion), 3)
	lines, tris = tg.Pending(TempLayerInWorld)
	assert.Zero(t, lines+tris, "upload empties the queue")

	assert.Equal(t, 2, tg.Render(list, common.IdentityMat4(), TempLayerInWorld, 1))
	assert.Equal(t, 1, tg.Render(list, common.IdentityMat4(), TempLayerOverWorld, 1))
	assert.Zero(t, tg.Render(list, common.IdentityMat4(), TempLayerOverWorld, 0), "nothing was uploaded for the other back buffer")

	var counts []uint32
	for _, op := range opsOf(list, gpu.OpDraw) {
		counts = append(counts, op.Count)
	}
	assert.Equal(t, []uint32{24, 3, 6}, counts)
}

func TestTempGeometryDropsWholePrimitivesOverCapacity(t *testing.T) {
	f := newFixture(t)
	tg, err := NewTempGeometryPipeline(f.dev, f.lib, gpu.FormatBGRA8Unorm, gpu.FormatD32Float, WithTempCapacity(5))
	require.NoError(t, err)
	defer tg.Release()

	for i := 0; i < 3; i++ {
		tg.DrawLine(TempLayerInWorld, common.Vec3{}, common.Vec3{1, 0, 0}, [4]float32{1, 0, 0, 1})
	}
	list := f.recordingList()
	assert.Equal(t, 2, tg.Upload(list, 0))
	tg.Render(list, common.IdentityMat4(), TempLayerInWorld, 0)
	draws := opsOf(list, gpu.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(4), draws[0].Count)
}

func TestUIScissorTranslation(t *testing.T) {
	data := &UIDrawData{DisplayPos: [2]float32{100, 50}, DisplaySize: [2]float32{400, 300}, FramebufferScale: [2]float32{2, 2}}
	tests := []struct {
		name string
		clip [4]float32
		want gpu.Rect
		ok   bool
	}{
		{"inside", [4]float32{110, 60, 200, 100}, gpu.Rect{Left: 20, Top: 20, Right: 200, Bottom: 100}, true},
		{"clamped", [4]float32{0, 0, 1000, 1000}, gpu.Rect{Left: 0, Top: 0, Right: 800, Bottom: 600}, true},
		{"off screen", [4]float32{600, 0, 700, 100}, gpu.Rect{}, false},
		{"inverted", [4]float32{200, 100, 110, 60}, gpu.Rect{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scissorFor(tt.clip, data, 800, 600)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func uiQuad(x0, y0, x1, y1 float32) ([]shader.SUIVertex, []uint32) {
	return []shader.SUIVertex{
			{Position: [2]float32{x0, y0}, Color: 0xffffffff},
			{Position: [2]float32{x1, y0}, Color: 0xffffffff},
			{Position: [2]float32{x1, y1}, Color: 0xffffffff},
			{Position: [2]float32{x0, y1}, Color: 0xffffffff},
		},
		[]uint32{0, 1, 2, 0, 2, 3}
}

func TestUIUploadAndRender(t *testing.T) {
	f := newFixture(t)
	copyPool, err := gpu.NewCommandListPool(f.dev, f.copyQueue, 2, 2)
	require.NoError(t, err)
	ui, err := NewUIPipeline(f.dev, f.lib, f.descriptors.Heap(), gpu.FormatBGRA8Unorm, gpu.FormatD32Float, WithUIInitialCapacity(4, 6))
	require.NoError(t, err)
	defer ui.Release()

	v0, i0 := uiQuad(0, 0, 10, 10)
	v1, i1 := uiQuad(20, 20, 40, 40)
	full := [4]float32{0, 0, 640, 480}
	data := &UIDrawData{
		DisplaySize: [2]float32{640, 480},
		Lists: []UIDrawList{
			{Vertices: v0, Indices: i0, Commands: []UIDrawCommand{{ClipRect: full, ElemCount: 6}}},
			{Vertices: v1, Indices: i1, Commands: []UIDrawCommand{
				{ClipRect: [4]float32{20, 20, 30, 30}, ElemCount: 3},
				{ClipRect: [4]float32{700, 0, 800, 10}, ElemCount: 3, IndexOffset: 3},
			}},
		},
	}
	waits := f.direct.GPUWaits()
	require.NoError(t, ui.Upload(copyPool, f.direct, data, 0))
	assert.Equal(t, waits+1, f.direct.GPUWaits(), "the direct queue waits for the copy")
	sub := f.dev.LastSubmission()
	assert.Equal(t, gpu.CommandListTypeCopy, sub.Queue)

	list := f.recordingList()
	n, err := ui.Render(list, f.textures, data, 0, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the off screen command is skipped")

	draws := opsOf(list, gpu.OpDrawIndexed)
	require.Len(t, draws, 2)
	assert.Equal(t, uint32(0), draws[0].Start)
	assert.Equal(t, int32(0), draws[0].BaseVertex)
	assert.Equal(t, uint32(6), draws[1].Start, "the second list's indices follow the first's")
	assert.Equal(t, int32(4), draws[1].BaseVertex)

	assert.Empty(t, opsOf(list, gpu.OpSetViewport), "the caller binds the viewport")
	scissors := opsOf(list, gpu.OpSetScissor)
	require.Len(t, scissors, 2)
	assert.Equal(t, gpu.Rect{Left: 20, Top: 20, Right: 30, Bottom: 30}, scissors[1].Scissor)

	ib := opsOf(list, gpu.OpSetIndexBuffer)
	require.Len(t, ib, 1)
	assert.Equal(t, gpu.ResourceStateCommon, ib[0].IndexView.Resource.State(), "buffers return to Common for the next copy")
	assert.Equal(t, common.SliceToBytes(append(append([]uint32{}, i0...), i1...)), gputest.BufferBytes(ib[0].IndexView.Resource)[:48])
	require.NoError(t, copyPool.Release(context.Background()))
}

func TestUIEmptyDataSubmitsNothing(t *testing.T) {
	f := newFixture(t)
	copyPool, err := gpu.NewCommandListPool(f.dev, f.copyQueue, 1, 1)
	require.NoError(t, err)
	ui, err := NewUIPipeline(f.dev, f.lib, f.descriptors.Heap(), gpu.FormatBGRA8Unorm, gpu.FormatD32Float)
	require.NoError(t, err)
	defer ui.Release()

	submissions := len(f.dev.Submissions)
	require.NoError(t, ui.Upload(copyPool, f.direct, nil, 0))
	require.NoError(t, ui.Upload(copyPool, f.direct, &UIDrawData{DisplaySize: [2]float32{10, 10}}, 0))
	assert.Len(t, f.dev.Submissions, submissions)

	bad := &UIDrawData{DisplaySize: [2]float32{10, 10}, Lists: []UIDrawList{{
		Vertices: []shader.SUIVertex{{}}, Indices: []uint32{0}, Commands: []UIDrawCommand{{ElemCount: 4}},
	}}}
	assert.Error(t, ui.Upload(copyPool, f.direct, bad, 0))

	n, err := ui.Render(f.recordingList(), f.textures, nil, 0, 10, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
