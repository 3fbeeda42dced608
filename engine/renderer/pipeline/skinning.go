package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// SkinningGroupSize is the workgroup width of the skinning shader.
const SkinningGroupSize = 64

// skinnedOutput holds the skinned streams of one instance.
type skinnedOutput struct {
	mesh      handle.Handle
	positions *gpu.UAVBufferResource[[3]float32]
	normals   *gpu.UAVBufferResource[[3]float32]
	// frame is the last frame the instance was skinned in
	frame uint64
}

func (o *skinnedOutput) release() {
	o.positions.Release()
	o.normals.Release()
}

// jointRing is the joint matrix storage of one back buffer.
type jointRing struct {
	buffer *gpu.BindlessBufferResource[common.Mat4]
	slices []gpu.BindlessSlice
}

// computeSkinningPipeline is the implementation of the ComputeSkinningPipeline interface.
type computeSkinningPipeline struct {
	mu sync.Mutex

	device   gpu.Device
	pipeline Pipeline
	heap     *gpu.DescriptorHeap

	rings   []jointRing
	outputs map[uint64]*skinnedOutput
	retired []*skinnedOutput
	frame   uint64
	scratch []common.Mat4

	backBuffers int
	maxJoints   uint32
	retireAfter uint64
}

// ComputeSkinningPipeline skins animated instances on the GPU. Every instance gets its own
// position and normal streams, keyed by model.Instance.ID, which the shadow and world passes
// bind in place of the bind-pose streams.
type ComputeSkinningPipeline interface {
	SkinnedStreams

	// Compute records the skinning of every instance of every animator. For each instance the
	// bind-to-current joint matrices are composed on the CPU and staged into the back buffer's
	// joint buffer, one dispatch of ceil(vertices/64) groups writes the skinned streams, and
	// the streams are left readable as vertex buffers.
	//
	// Parameters:
	//   - list: a recording direct command list
	//   - meshes: resolves the models' mesh handles
	//   - animations: the animators; their instances index into models
	//   - models: the frame's model instances
	//   - backBuffer: the back buffer the frame renders into; its previous frame must have completed
	//
	// Returns:
	//   - error: an unresolvable mesh, a static mesh or joint count mismatch, or a full joint buffer
	Compute(list *gpu.CommandList, meshes MeshSource, animations []animator.Animator, models []model.Instance, backBuffer int) error

	// InstanceCount returns the number of instances holding skinned streams.
	InstanceCount() int

	// Pipeline returns the compute pipeline.
	Pipeline() Pipeline

	// Release frees every skinned stream, the joint buffers and the pipeline. The GPU must be
	// idle.
	Release()
}

var _ ComputeSkinningPipeline = &computeSkinningPipeline{}

// NewComputeSkinningPipeline builds the skinning pipeline and one joint buffer per back buffer.
//
// Parameters:
//   - dev: the device
//   - lib: the shader library
//   - heap: the shader visible heap holding the meshes' position and normal views
//   - options: a variadic list of SkinningBuilderOption functions
//
// Returns:
//   - ComputeSkinningPipeline: the pipeline
//   - error: a shader or creation failure
func NewComputeSkinningPipeline(dev gpu.Device, lib shader.Library, heap *gpu.DescriptorHeap, options ...SkinningBuilderOption) (ComputeSkinningPipeline, error) {
	p := &computeSkinningPipeline{
		device:      dev,
		heap:        heap,
		outputs:     make(map[uint64]*skinnedOutput),
		backBuffers: 2,
		maxJoints:   8192,
		retireAfter: 3,
	}
	for _, opt := range options {
		opt(p)
	}

	prog, err := lib.Get(shader.ProgramSkinning)
	if err != nil {
		return nil, err
	}
	if ws := prog.WorkgroupSize(); ws[0] != SkinningGroupSize {
		return nil, fmt.Errorf("skinning: workgroup size %d, want %d", ws[0], SkinningGroupSize)
	}
	p.pipeline = NewPipeline("skinning", PipelineTypeCompute, shader.SkinningRootSignature(), WithComputeShader(prog))
	if err := p.pipeline.Build(dev); err != nil {
		return nil, err
	}

	for i := 0; i < p.backBuffers; i++ {
		buf, err := gpu.NewBindlessBufferResource[common.Mat4](dev, fmt.Sprintf("joints %d", i), p.maxJoints, p.maxJoints, gpu.ResourceStateNonPixelShaderResource)
		if err != nil {
			p.Release()
			return nil, err
		}
		p.rings = append(p.rings, jointRing{buffer: buf})
	}
	return p, nil
}

// output returns the skinned streams of an instance, creating them when the instance is new
// or its mesh changed.
func (p *computeSkinningPipeline) output(inst *model.Instance, vertexCount uint32) (*skinnedOutput, error) {
	if o, ok := p.outputs[inst.ID]; ok {
		if o.mesh == inst.Mesh && o.positions.Count == vertexCount {
			return o, nil
		}
		// earlier frames may still read the old streams
		p.retired = append(p.retired, o)
		delete(p.outputs, inst.ID)
	}
	pos, err := gpu.NewUAVBufferResource[[3]float32](p.device, fmt.Sprintf("skinned positions %d", inst.ID), vertexCount)
	if err != nil {
		return nil, err
	}
	nrm, err := gpu.NewUAVBufferResource[[3]float32](p.device, fmt.Sprintf("skinned normals %d", inst.ID), vertexCount)
	if err != nil {
		pos.Release()
		return nil, err
	}
	o := &skinnedOutput{mesh: inst.Mesh, positions: pos, normals: nrm}
	p.outputs[inst.ID] = o
	return o, nil
}

func (p *computeSkinningPipeline) Compute(list *gpu.CommandList, meshes MeshSource, animations []animator.Animator, models []model.Instance, backBuffer int) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frame++
	ring := &p.rings[backBuffer%len(p.rings)]
	for _, s := range ring.slices {
		ring.buffer.Free(s)
	}
	ring.slices = ring.slices[:0]
	defer func() {
		if err == nil {
			return
		}
		// nothing of a failed frame reaches the GPU
		ring.buffer.DiscardStaged()
		for _, s := range ring.slices {
			ring.buffer.Free(s)
		}
		ring.slices = ring.slices[:0]
	}()

	type resolved struct {
		out         *skinnedOutput
		weights     gpu.BufferView
		table       gpu.GPUDescriptorHandle
		vertexCount uint32
		jointCount  uint32
		joints      gpu.BindlessSlice
	}
	var jobs []resolved
	for _, a := range animations {
		n := a.InstanceCount()
		for i := uint32(0); i < n; i++ {
			mi := a.ModelIndex(i)
			if mi < 0 || mi >= len(models) || models[mi].Hidden {
				continue
			}
			inst := &models[mi]
			mesh, err := meshes.Get(inst.Mesh)
			if err != nil {
				return fmt.Errorf("skinning instance %d: %w", inst.ID, err)
			}
			if !mesh.Skinned() {
				return fmt.Errorf("skinning instance %d: mesh %q has no skin", inst.ID, mesh.Name)
			}
			jc := mesh.Skin.Skeleton.JointCount()
			if jc != a.JointCount() {
				return fmt.Errorf("skinning instance %d: animator has %d joints, mesh %q has %d", inst.ID, a.JointCount(), mesh.Name, jc)
			}
			if cap(p.scratch) < jc {
				p.scratch = make([]common.Mat4, jc)
			}
			mats := p.scratch[:jc]
			a.JointMatrices(i, mats)

			slice, err := ring.buffer.Alloc(uint32(jc))
			if err != nil {
				return fmt.Errorf("skinning instance %d: %w", inst.ID, err)
			}
			ring.slices = append(ring.slices, slice)
			ring.buffer.CopyToUpload(slice, mats)

			out, err := p.output(inst, mesh.VertexCount)
			if err != nil {
				return err
			}
			out.frame = p.frame
			jobs = append(jobs, resolved{
				out:         out,
				weights:     mesh.Skin.Weights.RootView(),
				table:       mesh.Descriptors.GPUHandle(0),
				vertexCount: mesh.VertexCount,
				jointCount:  uint32(jc),
				joints:      slice,
			})
		}
	}
	p.retire()
	if len(jobs) == 0 {
		return nil
	}

	ring.buffer.FlushUploadToDefault(list)

	var toUAV, toVertex []gpu.Barrier
	for _, j := range jobs {
		for _, r := range []*gpu.Resource{j.out.positions.Resource, j.out.normals.Resource} {
			if r.State() != gpu.ResourceStateUnorderedAccess {
				toUAV = append(toUAV, gpu.Barrier{Resource: r, Before: r.State(), After: gpu.ResourceStateUnorderedAccess})
			}
			toVertex = append(toVertex, gpu.Barrier{Resource: r, Before: gpu.ResourceStateUnorderedAccess, After: gpu.ResourceStateVertexAndConstantBuffer})
		}
	}
	list.ResourceBarrier(toUAV...)

	p.pipeline.Bind(list)
	list.SetDescriptorHeaps(p.heap)
	stride := uint64(ring.buffer.Stride())
	for _, j := range jobs {
		consts := shader.SSkinningConstants{VertexCount: j.vertexCount, JointCount: j.jointCount}
		list.SetComputeRoot32BitConstants(shader.SkinningParamConstants, consts.Marshal(), 0)
		list.SetComputeRootDescriptorTable(shader.SkinningParamMesh, j.table)
		list.SetComputeRootShaderResourceView(shader.SkinningParamWeights, j.weights)
		list.SetComputeRootShaderResourceView(shader.SkinningParamJoints, gpu.BufferView{
			Resource: ring.buffer.Resource(),
			Offset:   uint64(j.joints.Offset()) * stride,
			Size:     uint64(j.joints.Count()) * stride,
		})
		list.SetComputeRootUnorderedAccessView(shader.SkinningParamOutPositions, j.out.positions.RootView())
		list.SetComputeRootUnorderedAccessView(shader.SkinningParamOutNormals, j.out.normals.RootView())
		list.Dispatch(common.DivCeil(j.vertexCount, SkinningGroupSize), 1, 1)
	}

	list.ResourceBarrier(toVertex...)
	common.Logger().Debug("skinning recorded", "instances", len(jobs), "backBuffer", backBuffer)
	return nil
}

// retire releases the streams of instances that were not skinned for retireAfter frames,
// and replaced streams once they are as old. Frames that old have completed on the GPU.
func (p *computeSkinningPipeline) retire() {
	for id, o := range p.outputs {
		if p.frame-o.frame >= p.retireAfter {
			o.release()
			delete(p.outputs, id)
			common.Logger().Debug("skinned streams retired", "instance", id)
		}
	}
	kept := p.retired[:0]
	for _, o := range p.retired {
		if p.frame-o.frame >= p.retireAfter {
			o.release()
			continue
		}
		kept = append(kept, o)
	}
	p.retired = kept
}

func (p *computeSkinningPipeline) Streams(instanceID uint64) ([2]gpu.VertexBufferView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.outputs[instanceID]
	if !ok || o.frame != p.frame {
		return [2]gpu.VertexBufferView{}, false
	}
	return [2]gpu.VertexBufferView{o.positions.VertexView(), o.normals.VertexView()}, true
}

func (p *computeSkinningPipeline) InstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outputs)
}

func (p *computeSkinningPipeline) Pipeline() Pipeline {
	return p.pipeline
}

func (p *computeSkinningPipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.outputs {
		o.release()
		delete(p.outputs, id)
	}
	for _, o := range p.retired {
		o.release()
	}
	p.retired = nil
	for i := range p.rings {
		for _, s := range p.rings[i].slices {
			p.rings[i].buffer.Free(s)
		}
		p.rings[i].buffer.Release()
	}
	p.rings = nil
	if p.pipeline != nil {
		p.pipeline.Release()
	}
}
