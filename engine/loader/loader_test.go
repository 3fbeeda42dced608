package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gpuFixture struct {
	dev         *gputest.FakeDevice
	direct      *gpu.CommandQueue
	copyQueue   *gpu.CommandQueue
	descriptors *gpu.DescriptorAllocator
}

func newGPUFixture() *gpuFixture {
	dev := gputest.NewFakeDevice()
	return &gpuFixture{
		dev:         dev,
		direct:      gpu.NewCommandQueue(dev, gpu.CommandListTypeDirect),
		copyQueue:   gpu.NewCommandQueue(dev, gpu.CommandListTypeCopy),
		descriptors: gpu.NewDescriptorAllocator(gpu.DescriptorHeapCBVSRVUAV, 64),
	}
}

func quad() *model.MeshData {
	return &model.MeshData{
		Name:          "quad",
		Positions:     [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Normals:       [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:           [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Indices:       []uint32{0, 1, 2, 0, 2, 3},
		MaterialIndex: -1,
	}
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

func TestMeshLoaderUploadsStreams(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := ml.GetOrCreateMesh(ctx, "quad.gltf", quad())
	require.NoError(t, err)
	mesh, err := ml.Get(h)
	require.NoError(t, err)

	assert.Equal(t, uint32(4), mesh.VertexCount)
	assert.Equal(t, uint32(6), mesh.IndexCount)
	assert.Equal(t, common.SliceToBytes(quad().Positions), gputest.BufferBytes(mesh.Positions.Resource))
	assert.Equal(t, common.SliceToBytes(quad().Indices), gputest.BufferBytes(mesh.Indices.Resource))
	assert.Equal(t, meshStreamState, mesh.Positions.Resource.State())
	assert.Equal(t, meshStreamState, mesh.Normals.Resource.State())
	assert.Equal(t, meshIndexState, mesh.Indices.Resource.State())
	assert.Equal(t, 1, f.direct.GPUWaits(), "the direct queue waits for the copy")
	assert.Equal(t, uint32(2), f.descriptors.Used())
	assert.False(t, mesh.Skinned())
	assert.InDelta(t, 1.41421356, mesh.BoundingRadius, 1e-5)

	submissions := len(f.dev.Submissions)
	again, err := ml.GetOrCreateMesh(ctx, "quad.gltf", quad())
	require.NoError(t, err)
	assert.Equal(t, h, again, "same content returns the cached mesh")
	assert.Len(t, f.dev.Submissions, submissions)
	found, ok := ml.Find(mesh.UID)
	assert.True(t, ok)
	assert.Equal(t, h, found)

	other, err := ml.GetOrCreateMesh(ctx, "other.gltf", quad())
	require.NoError(t, err)
	assert.NotEqual(t, h, other, "the source path is part of the identity")
	assert.Equal(t, 2, ml.Count())
	require.NoError(t, ml.Shutdown(ctx))
}

func TestMeshLoaderRejectsInvalidData(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)
	ctx := context.Background()

	bad := quad()
	bad.Indices = append(bad.Indices, 9, 9, 9)
	_, err = ml.GetOrCreateMesh(ctx, "bad", bad)
	assert.ErrorIs(t, err, model.ErrInvalidMesh)

	skinned := quad()
	skinned.Joints = make([][4]uint32, 4)
	skinned.Weights = [][4]float32{{1}, {1}, {1}, {1}}
	_, err = ml.GetOrCreateMesh(ctx, "skinned", skinned)
	assert.ErrorIs(t, err, model.ErrInvalidMesh, "joint influences need the skinned entry point")

	skinned.Joints[2] = [4]uint32{7}
	_, err = ml.GetOrCreateMeshSkinned(ctx, "skinned", skinned, twoJointSkeleton())
	assert.ErrorIs(t, err, model.ErrInvalidMesh)
	assert.Zero(t, ml.Count())
}

func TestMeshLoaderSkinnedPanicsOnBadHierarchy(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)

	skel := twoJointSkeleton()
	skel.Joints[1].Parent = model.NoParent
	data := quad()
	data.Joints = make([][4]uint32, 4)
	data.Weights = [][4]float32{{1}, {1}, {1}, {1}}
	assert.Panics(t, func() {
		_, _ = ml.GetOrCreateMeshSkinned(context.Background(), "two roots", data, skel)
	})
}

func TestMeshLoaderSkinnedUploadsWeights(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)

	data := quad()
	data.Joints = [][4]uint32{{0}, {0}, {1}, {1}}
	data.Weights = [][4]float32{{1}, {1}, {1}, {1}}
	h, err := ml.GetOrCreateMeshSkinned(context.Background(), "skinned.gltf", data, twoJointSkeleton())
	require.NoError(t, err)
	mesh, err := ml.Get(h)
	require.NoError(t, err)
	require.True(t, mesh.Skinned())
	assert.Equal(t, uint32(4), mesh.Skin.Weights.Count)
	assert.Equal(t, meshSkinState, mesh.Skin.Weights.Resource.State())
}

func TestMeshLoaderReleaseDefersToFence(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)

	h, err := ml.GetOrCreateMesh(context.Background(), "quad.gltf", quad())
	require.NoError(t, err)
	mesh, err := ml.Get(h)
	require.NoError(t, err)
	positions := mesh.Positions.Resource.Buffer().(*gputest.Buffer)

	ml.Release(h, 5)
	_, err = ml.Get(h)
	assert.ErrorIs(t, err, handle.ErrStaleHandle)
	assert.Equal(t, uint32(2), f.descriptors.Used(), "descriptors wait for the signal")

	assert.Zero(t, ml.Collect(4))
	assert.False(t, positions.Released)
	assert.Equal(t, 1, ml.Collect(5))
	assert.True(t, positions.Released)

	f.descriptors.Signal(5)
	assert.Zero(t, f.descriptors.Used())
}

func assertAllReleased(t *testing.T, buffers []*gputest.Buffer) {
	t.Helper()
	require.NotEmpty(t, buffers)
	for _, b := range buffers {
		assert.True(t, b.Released, "%s is released", b.Label())
	}
}

func TestMeshLoaderFailedUploadReleasesStreams(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)

	// positions and their intermediate succeed, the normals' intermediate fails
	first := len(f.dev.Created)
	f.dev.FailBufferAfter = f.dev.Buffers + 3
	_, err = ml.GetOrCreateMesh(context.Background(), "quad.gltf", quad())
	require.ErrorIs(t, err, gpu.ErrNativeAPI)
	require.Len(t, f.dev.Created[first:], 3)
	assertAllReleased(t, f.dev.Created[first:])
	assert.Zero(t, ml.Count())
	assert.Zero(t, f.descriptors.Used())

	f.dev.FailBufferAfter = 0
	_, err = ml.GetOrCreateMesh(context.Background(), "quad.gltf", quad())
	require.NoError(t, err, "the pools are intact")
}

func TestUploadReleasesTargetsWhenDirectPoolIsBusy(t *testing.T) {
	f := newGPUFixture()
	up, err := newUploader(f.dev, f.direct, f.copyQueue, 1)
	require.NoError(t, err)
	ctx := context.Background()
	record := func(list *gpu.CommandList, s *staged) error {
		buf, upload, err := gpu.NewSRVBufferResource(f.dev, list, "weights", []float32{1, 2, 3})
		if err != nil {
			return err
		}
		s.add(buf.Resource, upload, gpu.ResourceStateAllShaderResource)
		return nil
	}

	held, err := up.directPool.AllocList()
	require.NoError(t, err)
	first := len(f.dev.Created)
	err = up.upload(ctx, record)
	require.ErrorIs(t, err, gpu.ErrNoResourceAvailable)
	assertAllReleased(t, f.dev.Created[first:])
	assert.Equal(t, 1, up.copyPool.FreeListCount())
	up.copyPool.FreeAllocators()
	assert.Equal(t, 1, up.copyPool.FreeAllocatorCount(), "the copy retired")

	require.NoError(t, up.directPool.FreeList(held))
	first = len(f.dev.Created)
	require.NoError(t, up.upload(ctx, record))
	for _, b := range f.dev.Created[first:] {
		if b.Heap() == gpu.HeapTypeDefault {
			assert.False(t, b.Released, "a successful upload keeps its target")
		} else {
			assert.True(t, b.Released, "intermediates go once the copy completes")
		}
	}
	require.NoError(t, up.release(ctx))
}

func encodePNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTextureLoaderFallbackAndDedupe(t *testing.T) {
	f := newGPUFixture()
	ctx := context.Background()
	tl, err := NewTextureLoader(ctx, f.dev, f.direct, f.copyQueue, f.descriptors, WithDecodeWorkers(2))
	require.NoError(t, err)

	fb, err := tl.Get(tl.Fallback())
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 255, 255, 255}, gputest.TextureLayer(fb.Resource, 0)[:4])
	assert.Equal(t, gpu.ResourceStatePixelShaderResource, fb.Resource.State())

	red := encodePNG(t, color.RGBA{R: 255, A: 255})
	blue := encodePNG(t, color.RGBA{B: 255, A: 255})
	srcs := []*common.TextureSource{
		{Name: "red", Data: red},
		nil,
		{Name: "blue", Data: blue},
		{Name: "red again", Data: red},
	}
	hs, err := tl.LoadTextures(ctx, srcs)
	require.NoError(t, err)
	require.Len(t, hs, 4)
	assert.Equal(t, tl.Fallback(), hs[1])
	assert.Equal(t, hs[0], hs[3], "identical pixels share a texture")
	assert.NotEqual(t, hs[0], hs[2])
	assert.Equal(t, 3, tl.Count())

	tex, err := tl.Get(hs[2])
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tex.Width)
	assert.Equal(t, []byte{0, 0, 255, 255}, gputest.TextureLayer(tex.Resource, 0)[:4])

	_, err = tl.LoadTextures(ctx, []*common.TextureSource{{Name: "junk", Data: []byte("not an image")}})
	assert.Error(t, err)

	tl.Clear()
	assert.Equal(t, 1, tl.Count(), "the fallback survives Clear")
	require.NoError(t, tl.Shutdown(ctx))
}

// gltfBuilder assembles a single-buffer glTF document with an embedded data uri.
type gltfBuilder struct {
	bin bytes.Buffer
	doc map[string]any

	views     []map[string]any
	accessors []map[string]any
}

func newGLTFBuilder() *gltfBuilder {
	return &gltfBuilder{doc: map[string]any{"asset": map[string]any{"version": "2.0"}}}
}

// add appends data as a new buffer view and accessor and returns the accessor index.
func (b *gltfBuilder) add(data []byte, componentType int, typ string, count int, normalized bool) int {
	for b.bin.Len()%4 != 0 {
		b.bin.WriteByte(0)
	}
	b.views = append(b.views, map[string]any{"buffer": 0, "byteOffset": b.bin.Len(), "byteLength": len(data)})
	b.bin.Write(data)
	acc := map[string]any{"bufferView": len(b.views) - 1, "componentType": componentType, "type": typ, "count": count}
	if normalized {
		acc["normalized"] = true
	}
	b.accessors = append(b.accessors, acc)
	return len(b.accessors) - 1
}

func (b *gltfBuilder) json(t *testing.T) string {
	t.Helper()
	b.doc["buffers"] = []any{map[string]any{
		"byteLength": b.bin.Len(),
		"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b.bin.Bytes()),
	}}
	b.doc["bufferViews"] = b.views
	b.doc["accessors"] = b.accessors
	out, err := json.Marshal(b.doc)
	require.NoError(t, err)
	return string(out)
}

// skinnedTriangle builds a triangle skinned to two sibling root joints with one animation
// moving the first joint, and no normals or uvs.
func skinnedTriangle(t *testing.T) string {
	b := newGLTFBuilder()
	pos := b.add(common.SliceToBytes([][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}), gltfFloat, "VEC3", 3, false)
	idx := b.add(common.SliceToBytes([]uint16{0, 1, 2}), gltfUnsignedShort, "SCALAR", 3, false)
	joints := b.add([]byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0}, gltfUnsignedByte, "VEC4", 3, false)
	// 255/255, then 128/255 + 128/255 renormalized to 0.5 each
	weights := b.add([]byte{255, 0, 0, 0, 255, 0, 0, 0, 128, 128, 0, 0}, gltfUnsignedByte, "VEC4", 3, true)
	times := b.add(common.SliceToBytes([]float32{0, 1.5}), gltfFloat, "SCALAR", 2, false)
	moves := b.add(common.SliceToBytes([][3]float32{{0, 0, 0}, {0, 3, 0}}), gltfFloat, "VEC3", 2, false)

	b.doc["meshes"] = []any{map[string]any{
		"name": "tri",
		"primitives": []any{map[string]any{
			"attributes": map[string]int{"POSITION": pos, "JOINTS_0": joints, "WEIGHTS_0": weights},
			"indices":    idx,
			"material":   0,
		}},
	}}
	b.doc["materials"] = []any{map[string]any{
		"name":                 "paint",
		"pbrMetallicRoughness": map[string]any{"baseColorFactor": []float32{1, 0.5, 0.25, 1}},
	}}
	b.doc["nodes"] = []any{
		map[string]any{"name": "body", "mesh": 0, "skin": 0},
		map[string]any{"name": "left", "translation": []float32{-1, 0, 0}},
		map[string]any{"name": "right", "translation": []float32{1, 0, 0}},
	}
	b.doc["scenes"] = []any{map[string]any{"name": "rig", "nodes": []int{0, 1, 2}}}
	b.doc["scene"] = 0
	b.doc["skins"] = []any{map[string]any{"joints": []int{1, 2}}}
	b.doc["animations"] = []any{map[string]any{
		"name":     "lift",
		"samplers": []any{map[string]any{"input": times, "output": moves}},
		"channels": []any{map[string]any{"sampler": 0, "target": map[string]any{"node": 1, "path": "translation"}}},
	}}
	return b.json(t)
}

func TestGLTFImportSkinnedModel(t *testing.T) {
	p, err := parseGLTFReader(strings.NewReader(skinnedTriangle(t)), false)
	require.NoError(t, err)
	m, err := p.importModel("rig", true)
	require.NoError(t, err)

	require.NotNil(t, m.Skeleton)
	require.NoError(t, m.Skeleton.Validate())
	require.Len(t, m.Skeleton.Joints, 3, "two roots get a synthetic parent")
	assert.Equal(t, syntheticRootName, m.Skeleton.Joints[0].Name)
	assert.Equal(t, int32(1), m.Skeleton.JointNameToIndex["left"])
	assert.Equal(t, int32(0), m.Skeleton.Joints[2].Parent)
	assert.Equal(t, [3]float32{1, 0, 0}, m.Skeleton.Joints[2].Local.Translation)

	require.Len(t, m.Meshes, 1)
	mesh := m.Meshes[0]
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
	assert.Equal(t, [][4]uint32{{1, 0, 0, 0}, {2, 0, 0, 0}, {1, 2, 0, 0}}, mesh.Joints, "joints follow the synthetic root shift")
	assert.InDelta(t, 0.5, mesh.Weights[2][0], 1e-6)
	assert.InDelta(t, 0.5, mesh.Weights[2][1], 1e-6)
	assert.Equal(t, [2]float32{}, mesh.UVs[0], "missing uvs are zero")
	for _, n := range mesh.Normals {
		assert.InDelta(t, 1, n[2], 1e-6, "generated normals face +z")
	}
	assert.Equal(t, 0, mesh.MaterialIndex)
	assert.Equal(t, [4]float32{1, 0.5, 0.25, 1}, m.Materials[0].BaseColor)

	require.Len(t, m.Animations, 1)
	clip := m.Animations[0]
	assert.Equal(t, "lift", clip.Name)
	assert.Equal(t, float32(1.5), clip.Duration)
	require.Len(t, clip.Channels, 1)
	assert.Equal(t, int32(1), clip.Channels[0].JointIndex)
	assert.Equal(t, [3]float32{0, 3, 0}, clip.Channels[0].PositionKeys[1].Value)
}

func TestGLTFImportMeshOnlyDropsSkin(t *testing.T) {
	p, err := parseGLTFReader(strings.NewReader(skinnedTriangle(t)), false)
	require.NoError(t, err)
	m, err := p.importModel("rig", false)
	require.NoError(t, err)
	assert.Nil(t, m.Skeleton)
	assert.Empty(t, m.Animations)
	assert.False(t, m.Meshes[0].Skinned())
}

func TestGLTFRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "{"},
		{"version 1", `{"asset":{"version":"1.0"}}`},
		{"required extension", `{"asset":{"version":"2.0"},"extensionsRequired":["KHR_draco_mesh_compression"]}`},
		{"buffer without data", `{"asset":{"version":"2.0"},"buffers":[{"byteLength":4}]}`},
		{"short buffer", `{"asset":{"version":"2.0"},"buffers":[{"byteLength":8,"uri":"data:application/octet-stream;base64,AAAA"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGLTFReader(strings.NewReader(tt.doc), false)
			assert.ErrorIs(t, err, ErrInvalidGLTF)
		})
	}
}

func TestGLBContainer(t *testing.T) {
	jsonChunk := []byte(`{"asset":{"version":"2.0"}} `)
	var glb bytes.Buffer
	le := func(v uint32) { glb.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}) }
	le(glbMagic)
	le(glbVersion)
	le(uint32(12 + 8 + len(jsonChunk)))
	le(uint32(len(jsonChunk)))
	le(glbChunkJSON)
	glb.Write(jsonChunk)

	p, err := parseGLTFReader(&glb, true)
	require.NoError(t, err)
	assert.Equal(t, "2.0", p.doc.Asset.Version)

	_, err = parseGLTFReader(bytes.NewReader([]byte("glTFxxxxxxxxxx")), true)
	assert.ErrorIs(t, err, ErrInvalidGLTF)
}

func TestDecomposeMatrixRoundTrip(t *testing.T) {
	in := model.Transform{
		Translation: [3]float32{1, 2, 3},
		Rotation:    [4]float32{0, 0.38268343, 0, 0.9238795},
		Scale:       [3]float32{2, 2, 2},
	}
	out := decomposeMatrix(in.Matrix())
	for i := range 3 {
		assert.InDelta(t, in.Translation[i], out.Translation[i], 1e-5)
		assert.InDelta(t, in.Scale[i], out.Scale[i], 1e-5)
	}
	for i := range 4 {
		assert.InDelta(t, in.Rotation[i], out.Rotation[i], 1e-5)
	}
}

func TestLoaderCachesByName(t *testing.T) {
	f := newGPUFixture()
	ml, err := NewMeshLoader(f.dev, f.direct, f.copyQueue, f.descriptors)
	require.NoError(t, err)
	l := NewLoader(WithMeshLoader(ml))
	ctx := context.Background()

	m, err := l.LoadReader(ctx, "rig", strings.NewReader(skinnedTriangle(t)), false)
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)
	mesh, err := ml.Get(m.Meshes[0])
	require.NoError(t, err)
	assert.True(t, mesh.Skinned())
	assert.Equal(t, [4]float32{1, 0.5, 0.25, 1}, m.BaseColors[0])
	assert.True(t, m.Textures[0].IsZero(), "an untextured material leaves the handle empty")

	again, err := l.LoadReader(ctx, "rig", strings.NewReader("ignored"), false)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Same(t, m, l.Get("rig"))
	assert.Len(t, l.Models(), 1)

	var next uint64
	insts := m.Instances(func() uint64 { next++; return next }, model.WithCastsShadow(false))
	require.Len(t, insts, 1)
	assert.Equal(t, uint64(1), insts[0].ID)
	assert.False(t, insts[0].CastsShadow)

	_, err = l.Load(ctx, "model.fbx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
