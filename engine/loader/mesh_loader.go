package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/memory"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// Read states of uploaded mesh streams. Positions and normals feed both the input assembler
// and the skinning shader.
const (
	meshStreamState = gpu.ResourceStateVertexAndConstantBuffer | gpu.ResourceStateNonPixelShaderResource
	meshUVState     = gpu.ResourceStateVertexAndConstantBuffer
	meshIndexState  = gpu.ResourceStateIndexBuffer
	meshSkinState   = gpu.ResourceStateNonPixelShaderResource
)

// Skin is the skinning data of a mesh.
type Skin struct {
	// Weights holds the four joint influences of every vertex.
	Weights *gpu.SRVBufferResource[shader.SVertexSkinningData]

	// Skeleton is the validated joint hierarchy the joint indices refer to.
	Skeleton *model.Skeleton
}

// Mesh is geometry resident on the GPU. Each attribute lives in its own buffer.
type Mesh struct {
	// UID is the content hash the loader deduplicates by.
	UID  uint64
	Name string

	Positions *gpu.SRVBufferResource[[3]float32]
	Normals   *gpu.SRVBufferResource[[3]float32]
	UVs       *gpu.VertexBufferResource[[2]float32]
	Indices   *gpu.IndexBufferResource

	VertexCount uint32
	IndexCount  uint32

	// Descriptors holds shader resource views of Positions (0) and Normals (1), the table the
	// skinning pass reads bind-pose vertices through.
	Descriptors *gpu.DescriptorAllocation

	// Skin is nil for static meshes.
	Skin *Skin

	BoundingRadius float32
	BoundingMin    [3]float32
	BoundingMax    [3]float32
}

// Skinned reports whether the mesh carries skinning data.
func (m *Mesh) Skinned() bool {
	return m.Skin != nil
}

// VertexViews returns the bind-pose position, normal and uv streams.
func (m *Mesh) VertexViews() [3]gpu.VertexBufferView {
	return [3]gpu.VertexBufferView{
		{Resource: m.Positions.Resource, Size: m.Positions.ByteSize(), Stride: m.Positions.Stride()},
		{Resource: m.Normals.Resource, Size: m.Normals.ByteSize(), Stride: m.Normals.Stride()},
		m.UVs.View(),
	}
}

func (m *Mesh) release() {
	if m.Descriptors != nil {
		m.Descriptors.Free()
	}
	for _, r := range []*gpu.Resource{m.Positions.Resource, m.Normals.Resource, m.UVs.Resource, m.Indices.Resource} {
		r.Release()
	}
	if m.Skin != nil {
		m.Skin.Weights.Release()
	}
}

// retiredMesh is a released mesh whose buffers may still be read by submitted work.
type retiredMesh struct {
	mesh  Mesh
	value uint64
}

// meshLoader is the implementation of the MeshLoader interface.
type meshLoader struct {
	mu sync.Mutex

	device      gpu.Device
	up          *uploader
	descriptors *gpu.DescriptorAllocator
	meshes      *handle.StoragePool[Mesh]
	retired     []retiredMesh

	capacity int
	lists    int
}

// MeshLoader uploads mesh geometry once and hands out handles to it. Meshes are deduplicated
// by a hash of their name and contents.
type MeshLoader interface {
	// GetOrCreateMesh returns the mesh with the same content, uploading it on a miss.
	//
	// Parameters:
	//   - ctx: bounds the upload wait
	//   - path: the source the mesh came from, part of its identity
	//   - data: the geometry, which must not carry joint influences
	//
	// Returns:
	//   - handle.Handle: the mesh handle
	//   - error: ErrInvalidMesh, ErrFull, or an upload error
	GetOrCreateMesh(ctx context.Context, path string, data *model.MeshData) (handle.Handle, error)

	// GetOrCreateMeshSkinned is GetOrCreateMesh for geometry with joint influences. It panics if
	// skel does not have exactly one root at index 0 with every parent preceding its children.
	//
	// Parameters:
	//   - ctx: bounds the upload wait
	//   - path: the source the mesh came from
	//   - data: the geometry with Joints and Weights
	//   - skel: the joint hierarchy
	//
	// Returns:
	//   - handle.Handle: the mesh handle
	//   - error: ErrInvalidMesh, ErrFull, or an upload error
	GetOrCreateMeshSkinned(ctx context.Context, path string, data *model.MeshData, skel *model.Skeleton) (handle.Handle, error)

	// Get returns the mesh behind h.
	Get(h handle.Handle) (*Mesh, error)

	// Find returns the handle of the mesh with the given uid.
	Find(uid uint64) (handle.Handle, bool)

	// Count returns the number of resident meshes.
	Count() int

	// Release frees one mesh handle. Its descriptors are returned once the descriptor allocator
	// is signalled past fenceValue and its buffers once Collect sees fenceValue completed.
	Release(h handle.Handle, fenceValue uint64)

	// Collect releases the buffers of every released mesh whose fence value has completed.
	//
	// Parameters:
	//   - completed: the completed value of the fence passed to Release
	//
	// Returns:
	//   - int: the number of meshes whose buffers were released
	Collect(completed uint64) int

	// Clear releases every mesh immediately. The GPU must be idle.
	Clear()

	// Shutdown clears the loader and releases its command-list pools.
	Shutdown(ctx context.Context) error
}

var _ MeshLoader = &meshLoader{}

// NewMeshLoader creates a MeshLoader that records uploads on its own pools over the given
// queues.
//
// Parameters:
//   - device: the device
//   - direct: the direct queue
//   - copyQueue: the copy queue
//   - descriptors: the shader-visible CBV/SRV/UAV allocator shared with the renderer
//   - options: a variadic list of MeshLoaderBuilderOption functions
//
// Returns:
//   - MeshLoader: the loader
//   - error: a pool creation error
func NewMeshLoader(device gpu.Device, direct, copyQueue *gpu.CommandQueue, descriptors *gpu.DescriptorAllocator, options ...MeshLoaderBuilderOption) (MeshLoader, error) {
	l := &meshLoader{
		device:      device,
		descriptors: descriptors,
		capacity:    256,
		lists:       2,
	}
	for _, opt := range options {
		opt(l)
	}
	meshes, err := handle.NewStoragePool[Mesh](memory.NewSystemAllocator(0), l.capacity)
	if err != nil {
		return nil, err
	}
	l.meshes = meshes
	l.up, err = newUploader(device, direct, copyQueue, l.lists)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// meshUID hashes the identity of a mesh: its source path, name and every stream.
func meshUID(path string, data *model.MeshData) uint64 {
	return common.ContentHash(
		[]byte(path),
		[]byte(data.Name),
		common.SliceToBytes(data.Positions),
		common.SliceToBytes(data.Normals),
		common.SliceToBytes(data.UVs),
		common.SliceToBytes(data.Indices),
		common.SliceToBytes(data.Joints),
		common.SliceToBytes(data.Weights),
	)
}

func (l *meshLoader) find(uid uint64) (handle.Handle, bool) {
	var found handle.Handle
	l.meshes.Each(func(h handle.Handle, m *Mesh) bool {
		if m.UID == uid {
			found = h
			return false
		}
		return true
	})
	return found, !found.IsZero()
}

func (l *meshLoader) Find(uid uint64) (handle.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.find(uid)
}

func (l *meshLoader) GetOrCreateMesh(ctx context.Context, path string, data *model.MeshData) (handle.Handle, error) {
	if data.Skinned() {
		return handle.Handle{}, fmt.Errorf("mesh %q carries joint influences, load it skinned: %w", data.Name, model.ErrInvalidMesh)
	}
	return l.getOrCreate(ctx, path, data, nil)
}

func (l *meshLoader) GetOrCreateMeshSkinned(ctx context.Context, path string, data *model.MeshData, skel *model.Skeleton) (handle.Handle, error) {
	if err := skel.Validate(); err != nil {
		panic(fmt.Sprintf("loader: mesh %q joint hierarchy: %v", data.Name, err))
	}
	if !data.Skinned() {
		return handle.Handle{}, fmt.Errorf("mesh %q has no joint influences: %w", data.Name, model.ErrInvalidMesh)
	}
	for v, joints := range data.Joints {
		for _, j := range joints {
			if int(j) >= len(skel.Joints) {
				return handle.Handle{}, fmt.Errorf("mesh %q vertex %d references joint %d of %d: %w", data.Name, v, j, len(skel.Joints), model.ErrInvalidMesh)
			}
		}
	}
	return l.getOrCreate(ctx, path, data, skel)
}

func (l *meshLoader) getOrCreate(ctx context.Context, path string, data *model.MeshData, skel *model.Skeleton) (handle.Handle, error) {
	if err := data.Validate(); err != nil {
		return handle.Handle{}, err
	}
	uid := meshUID(path, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.find(uid); ok {
		return h, nil
	}

	h, err := l.meshes.Alloc()
	if err != nil {
		return handle.Handle{}, fmt.Errorf("mesh %q: %w", data.Name, err)
	}
	mesh, err := l.upload(ctx, data, skel)
	if err != nil {
		l.meshes.Free(h)
		return handle.Handle{}, err
	}
	mesh.UID = uid
	if err := l.meshes.InsertVal(h, *mesh); err != nil {
		mesh.release()
		l.meshes.Free(h)
		return handle.Handle{}, err
	}
	common.Logger().Info("mesh loaded", "mesh", data.Name, "path", path, "vertices", mesh.VertexCount, "indices", mesh.IndexCount, "skinned", skel != nil)
	return h, nil
}

// upload records every stream of data on the copy queue and builds the stream descriptors.
func (l *meshLoader) upload(ctx context.Context, data *model.MeshData, skel *model.Skeleton) (*Mesh, error) {
	mesh := &Mesh{
		Name:           data.Name,
		VertexCount:    uint32(len(data.Positions)),
		IndexCount:     uint32(len(data.Indices)),
		BoundingRadius: data.BoundingRadius(),
		BoundingMin:    data.BoundingMin,
		BoundingMax:    data.BoundingMax,
	}
	err := l.up.upload(ctx, func(list *gpu.CommandList, s *staged) error {
		var up *gpu.Resource
		var err error
		if mesh.Positions, up, err = gpu.NewSRVBufferResource(l.device, list, data.Name+" positions", data.Positions); err != nil {
			return err
		}
		s.add(mesh.Positions.Resource, up, meshStreamState)
		if mesh.Normals, up, err = gpu.NewSRVBufferResource(l.device, list, data.Name+" normals", data.Normals); err != nil {
			return err
		}
		s.add(mesh.Normals.Resource, up, meshStreamState)
		if mesh.UVs, up, err = gpu.NewVertexBufferResource(l.device, list, data.Name+" uvs", data.UVs); err != nil {
			return err
		}
		s.add(mesh.UVs.Resource, up, meshUVState)
		if mesh.Indices, up, err = gpu.NewIndexBufferResource(l.device, list, data.Name+" indices", data.Indices); err != nil {
			return err
		}
		s.add(mesh.Indices.Resource, up, meshIndexState)
		if skel == nil {
			return nil
		}
		skinning := make([]shader.SVertexSkinningData, len(data.Joints))
		for i := range skinning {
			skinning[i] = shader.SVertexSkinningData{Joints: data.Joints[i], Weights: data.Weights[i]}
		}
		weights, up, err := gpu.NewSRVBufferResource(l.device, list, data.Name+" skin", skinning)
		if err != nil {
			return err
		}
		s.add(weights.Resource, up, meshSkinState)
		mesh.Skin = &Skin{Weights: weights, Skeleton: skel}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload mesh %q: %w", data.Name, err)
	}

	mesh.Descriptors, err = l.descriptors.Alloc(2)
	if err != nil {
		mesh.Descriptors = nil
		mesh.release()
		return nil, fmt.Errorf("mesh %q descriptors: %w", data.Name, err)
	}
	heap := l.descriptors.Heap()
	heap.CreateShaderResourceView(mesh.Positions.Resource, mesh.Positions.ViewDesc(), mesh.Descriptors.CPUHandle(0))
	heap.CreateShaderResourceView(mesh.Normals.Resource, mesh.Normals.ViewDesc(), mesh.Descriptors.CPUHandle(1))
	return mesh, nil
}

func (l *meshLoader) Get(h handle.Handle) (*Mesh, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meshes.Get(h)
}

func (l *meshLoader) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meshes.Used()
}

func (l *meshLoader) Release(h handle.Handle, fenceValue uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mesh, err := l.meshes.Take(h)
	if err != nil {
		return
	}
	l.meshes.Free(h)
	if mesh.Descriptors != nil {
		mesh.Descriptors.FreeOnSignal(fenceValue)
		mesh.Descriptors = nil
	}
	l.retired = append(l.retired, retiredMesh{mesh: mesh, value: fenceValue})
}

func (l *meshLoader) Collect(completed uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.retired[:0]
	n := 0
	for _, r := range l.retired {
		if r.value <= completed {
			r.mesh.release()
			n++
			continue
		}
		kept = append(kept, r)
	}
	clear(l.retired[len(kept):])
	l.retired = kept
	if n > 0 {
		common.Logger().Debug("meshes retired", "count", n, "completed", completed)
	}
	return n
}

func (l *meshLoader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meshes.Each(func(_ handle.Handle, m *Mesh) bool {
		m.release()
		return true
	})
	l.meshes.Clear()
	for _, r := range l.retired {
		r.mesh.release()
	}
	l.retired = nil
}

func (l *meshLoader) Shutdown(ctx context.Context) error {
	l.Clear()
	return l.up.release(ctx)
}
