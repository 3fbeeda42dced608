package gpu

import (
	"container/heap"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/srender/common"
)

// DescriptorHeapType is the kind of views a descriptor heap holds.
type DescriptorHeapType int

const (
	DescriptorHeapCBVSRVUAV DescriptorHeapType = iota
	DescriptorHeapSampler
	DescriptorHeapRTV
	DescriptorHeapDSV
)

func (t DescriptorHeapType) String() string {
	return [...]string{"CBV_SRV_UAV", "SAMPLER", "RTV", "DSV"}[t]
}

// DescriptorSize returns the handle stride of a heap type.
func (t DescriptorHeapType) DescriptorSize() uint64 {
	switch t {
	case DescriptorHeapCBVSRVUAV:
		return 32
	case DescriptorHeapSampler:
		return 16
	case DescriptorHeapRTV:
		return 32
	default:
		return 8
	}
}

// ShaderVisible reports whether heaps of this type can be referenced by descriptor tables.
func (t DescriptorHeapType) ShaderVisible() bool {
	return t == DescriptorHeapCBVSRVUAV || t == DescriptorHeapSampler
}

// CPUDescriptorHandle addresses a descriptor for writing.
type CPUDescriptorHandle struct{ Ptr uint64 }

// GPUDescriptorHandle addresses a descriptor from a descriptor table.
type GPUDescriptorHandle struct{ Ptr uint64 }

// Offset returns h advanced by n descriptors of the given stride.
func (h CPUDescriptorHandle) Offset(n, stride uint64) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + n*stride}
}

// Offset returns h advanced by n descriptors of the given stride.
func (h GPUDescriptorHandle) Offset(n, stride uint64) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + n*stride}
}

// DescriptorKind is the kind of view a descriptor slot holds.
type DescriptorKind int

const (
	DescriptorNone DescriptorKind = iota
	DescriptorSRV
	DescriptorUAV
	DescriptorCBV
	DescriptorSampler
	DescriptorRTV
	DescriptorDSV
)

// ViewDesc describes the part of a resource a view covers.
type ViewDesc struct {
	Dimension ViewDimension
	Format    Format
	// FirstElement / NumElements / StructureByteStride describe structured buffer views.
	FirstElement        uint64
	NumElements         uint64
	StructureByteStride uint64
	// BaseArrayLayer / ArrayLayers select texture layers (cube faces for render targets).
	BaseArrayLayer uint32
	ArrayLayers    uint32
}

// ByteRange returns the byte offset and size of a buffer view over a buffer of total bytes.
func (v ViewDesc) ByteRange(total uint64) (uint64, uint64) {
	if v.StructureByteStride == 0 {
		return 0, total
	}
	off := v.FirstElement * v.StructureByteStride
	size := v.NumElements * v.StructureByteStride
	if size == 0 {
		size = total - off
	}
	return off, size
}

// Descriptor is the content of one descriptor heap slot.
type Descriptor struct {
	Kind     DescriptorKind
	Resource *Resource
	View     ViewDesc
	Sampler  SamplerDesc
	// Version increases every time the slot is rewritten so backends can invalidate caches.
	Version uint64
}

var (
	heapIDs            atomic.Uint64
	descriptorVersions atomic.Uint64
	// liveHeaps maps heap ids (the top bits of every handle) to live heaps.
	liveHeaps          sync.Map
)

// DescriptorHeap is a fixed-capacity table of descriptors. Handles are the heap base plus
// index times the type's descriptor size.
type DescriptorHeap struct {
	typ     DescriptorHeapType
	slots   []Descriptor
	stride  uint64
	cpuBase uint64
	gpuBase uint64
}

// NewDescriptorHeap creates a heap.
//
// Parameters:
//   - typ: the heap type
//   - capacity: the number of descriptors
//
// Returns:
//   - *DescriptorHeap: the heap
func NewDescriptorHeap(typ DescriptorHeapType, capacity uint32) *DescriptorHeap {
	id := heapIDs.Add(1)
	h := &DescriptorHeap{
		typ:     typ,
		slots:   make([]Descriptor, capacity),
		stride:  typ.DescriptorSize(),
		cpuBase: id << 40,
	}
	if typ.ShaderVisible() {
		h.gpuBase = id<<40 | 1<<39
	}
	liveHeaps.Store(id, h)
	return h
}

// Release unregisters the heap. Handles into it no longer resolve.
func (h *DescriptorHeap) Release() {
	liveHeaps.Delete(h.cpuBase >> 40)
}

// ResolveCPUDescriptor finds the descriptor a CPU handle of any live heap points at.
//
// Returns:
//   - *Descriptor: the slot content
//   - *DescriptorHeap: the heap the handle belongs to
//   - error: ErrInvalidHandle when no live heap contains the handle
func ResolveCPUDescriptor(handle CPUDescriptorHandle) (*Descriptor, *DescriptorHeap, error) {
	v, ok := liveHeaps.Load(handle.Ptr >> 40)
	if !ok {
		return nil, nil, fmt.Errorf("cpu handle %#x: no live heap: %w", handle.Ptr, ErrInvalidHandle)
	}
	h := v.(*DescriptorHeap)
	d, err := h.DescriptorAtCPU(handle)
	return d, h, err
}

// Type returns the heap type.
func (h *DescriptorHeap) Type() DescriptorHeapType { return h.typ }

// Capacity returns the number of descriptors the heap holds.
func (h *DescriptorHeap) Capacity() uint32 { return uint32(len(h.slots)) }

// DescriptorSize returns the handle stride.
func (h *DescriptorHeap) DescriptorSize() uint64 { return h.stride }

// CPUStart returns the handle of descriptor 0.
func (h *DescriptorHeap) CPUStart() CPUDescriptorHandle { return CPUDescriptorHandle{Ptr: h.cpuBase} }

// GPUStart returns the shader-visible handle of descriptor 0. Panics for non shader-visible heaps.
func (h *DescriptorHeap) GPUStart() GPUDescriptorHandle {
	if !h.typ.ShaderVisible() {
		panic(fmt.Sprintf("gpu: %v heap is not shader visible", h.typ))
	}
	return GPUDescriptorHandle{Ptr: h.gpuBase}
}

// CPUIndex resolves a CPU handle to a slot index.
func (h *DescriptorHeap) CPUIndex(handle CPUDescriptorHandle) (uint32, bool) {
	return h.index(handle.Ptr, h.cpuBase)
}

// GPUIndex resolves a GPU handle to a slot index.
func (h *DescriptorHeap) GPUIndex(handle GPUDescriptorHandle) (uint32, bool) {
	if !h.typ.ShaderVisible() {
		return 0, false
	}
	return h.index(handle.Ptr, h.gpuBase)
}

func (h *DescriptorHeap) index(ptr, base uint64) (uint32, bool) {
	if ptr < base || (ptr-base)%h.stride != 0 {
		return 0, false
	}
	i := (ptr - base) / h.stride
	if i >= uint64(len(h.slots)) {
		return 0, false
	}
	return uint32(i), true
}

// Descriptor returns the content of the slot at index.
func (h *DescriptorHeap) Descriptor(index uint32) *Descriptor {
	return &h.slots[index]
}

// DescriptorAtGPU returns the descriptor a GPU handle points at.
func (h *DescriptorHeap) DescriptorAtGPU(handle GPUDescriptorHandle) (*Descriptor, error) {
	i, ok := h.GPUIndex(handle)
	if !ok {
		return nil, fmt.Errorf("gpu handle %#x outside %v heap: %w", handle.Ptr, h.typ, ErrInvalidHandle)
	}
	return &h.slots[i], nil
}

// DescriptorAtCPU returns the descriptor a CPU handle points at.
func (h *DescriptorHeap) DescriptorAtCPU(handle CPUDescriptorHandle) (*Descriptor, error) {
	i, ok := h.CPUIndex(handle)
	if !ok {
		return nil, fmt.Errorf("cpu handle %#x outside %v heap: %w", handle.Ptr, h.typ, ErrInvalidHandle)
	}
	return &h.slots[i], nil
}

func (h *DescriptorHeap) write(handle CPUDescriptorHandle, want DescriptorHeapType, d Descriptor) {
	if h.typ != want {
		panic(fmt.Sprintf("gpu: writing a %v descriptor into a %v heap", want, h.typ))
	}
	i, ok := h.CPUIndex(handle)
	if !ok {
		panic(fmt.Sprintf("gpu: cpu handle %#x outside %v heap", handle.Ptr, h.typ))
	}
	d.Version = descriptorVersions.Add(1)
	h.slots[i] = d
}

// CreateShaderResourceView writes a read-only view of res.
func (h *DescriptorHeap) CreateShaderResourceView(res *Resource, view ViewDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapCBVSRVUAV, Descriptor{Kind: DescriptorSRV, Resource: res, View: view})
}

// CreateUnorderedAccessView writes a read-write view of res.
func (h *DescriptorHeap) CreateUnorderedAccessView(res *Resource, view ViewDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapCBVSRVUAV, Descriptor{Kind: DescriptorUAV, Resource: res, View: view})
}

// CreateConstantBufferView writes a constant buffer view of res.
func (h *DescriptorHeap) CreateConstantBufferView(res *Resource, view ViewDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapCBVSRVUAV, Descriptor{Kind: DescriptorCBV, Resource: res, View: view})
}

// CreateSampler writes a sampler.
func (h *DescriptorHeap) CreateSampler(desc SamplerDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapSampler, Descriptor{Kind: DescriptorSampler, Sampler: desc})
}

// CreateRenderTargetView writes a render-target view of a texture.
func (h *DescriptorHeap) CreateRenderTargetView(res *Resource, view ViewDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapRTV, Descriptor{Kind: DescriptorRTV, Resource: res, View: view})
}

// CreateDepthStencilView writes a depth-stencil view of a texture.
func (h *DescriptorHeap) CreateDepthStencilView(res *Resource, view ViewDesc, handle CPUDescriptorHandle) {
	h.write(handle, DescriptorHeapDSV, Descriptor{Kind: DescriptorDSV, Resource: res, View: view})
}

// CopyDescriptor copies the slot at src into dst (both in h).
func (h *DescriptorHeap) CopyDescriptor(dst, src CPUDescriptorHandle) {
	d, err := h.DescriptorAtCPU(src)
	if err != nil {
		panic(err.Error())
	}
	h.write(dst, h.typ, *d)
}

// DescriptorAllocation is a contiguous range of descriptors from a DescriptorAllocator.
type DescriptorAllocation struct {
	cpuBase CPUDescriptorHandle
	gpuBase GPUDescriptorHandle
	stride  uint64
	count   uint32
	owner   *DescriptorAllocator
	alloc   *Allocation
}

// Count returns the number of descriptors in the range.
func (d *DescriptorAllocation) Count() uint32 { return d.count }

// DescriptorSize returns the handle stride.
func (d *DescriptorAllocation) DescriptorSize() uint64 { return d.stride }

// Index returns the heap index of the first descriptor.
func (d *DescriptorAllocation) Index() uint32 { return uint32(d.alloc.Offset()) }

// Heap returns the heap the range lives in.
func (d *DescriptorAllocation) Heap() *DescriptorHeap { return d.owner.heap }

// CPUHandle returns the CPU handle of descriptor i of the range.
func (d *DescriptorAllocation) CPUHandle(i uint32) CPUDescriptorHandle {
	d.check(i)
	return d.cpuBase.Offset(uint64(i), d.stride)
}

// GPUHandle returns the GPU handle of descriptor i of the range.
func (d *DescriptorAllocation) GPUHandle(i uint32) GPUDescriptorHandle {
	d.check(i)
	if !d.owner.heap.typ.ShaderVisible() {
		panic(fmt.Sprintf("gpu: %v descriptors have no gpu handle", d.owner.heap.typ))
	}
	return d.gpuBase.Offset(uint64(i), d.stride)
}

// Free returns the range immediately. The caller guarantees no in-flight GPU work uses it.
func (d *DescriptorAllocation) Free() {
	d.owner.free(d)
}

// FreeOnSignal returns the range once the allocator has been signalled with value or later.
func (d *DescriptorAllocation) FreeOnSignal(value uint64) {
	d.owner.FreeOnSignal(d, value)
}

func (d *DescriptorAllocation) check(i uint32) {
	if d.alloc.Freed() {
		panic("gpu: use of a freed descriptor allocation")
	}
	if i >= d.count {
		panic(fmt.Sprintf("gpu: descriptor %d out of range [0, %d)", i, d.count))
	}
}

type pendingFree struct {
	value uint64
	alloc *DescriptorAllocation
}

// pendingFrees is a min-heap of deferred frees keyed by signal value.
type pendingFrees []pendingFree

func (p pendingFrees) Len() int           { return len(p) }
func (p pendingFrees) Less(i, j int) bool { return p[i].value < p[j].value }
func (p pendingFrees) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p *pendingFrees) Push(x any)        { *p = append(*p, x.(pendingFree)) }
func (p *pendingFrees) Pop() any {
	old := *p
	n := len(old)
	x := old[n-1]
	old[n-1] = pendingFree{}
	*p = old[:n-1]
	return x
}

// DescriptorAllocator sub-allocates one descriptor heap through a FreeListAllocator over
// descriptor indices, with frees optionally deferred until a signal value is reached.
type DescriptorAllocator struct {
	heap       *DescriptorHeap
	list       *FreeListAllocator
	lastSignal uint64
	pending    pendingFrees
}

// NewDescriptorAllocator creates a heap of the given type and capacity and an allocator over it.
//
// Parameters:
//   - typ: the heap type
//   - capacity: the number of descriptors
//
// Returns:
//   - *DescriptorAllocator: the allocator
func NewDescriptorAllocator(typ DescriptorHeapType, capacity uint32) *DescriptorAllocator {
	return &DescriptorAllocator{
		heap: NewDescriptorHeap(typ, capacity),
		list: NewFreeListAllocator(uint64(capacity)),
	}
}

// Heap returns the underlying descriptor heap.
func (a *DescriptorAllocator) Heap() *DescriptorHeap { return a.heap }

// Alloc reserves n contiguous descriptors.
//
// Parameters:
//   - n: the number of descriptors
//
// Returns:
//   - *DescriptorAllocation: the range
//   - error: ErrOutOfSpace when the heap cannot hold the range, ErrInvalidArgument for an empty
//     range
func (a *DescriptorAllocator) Alloc(n uint32) (*DescriptorAllocation, error) {
	if n == 0 {
		return nil, fmt.Errorf("%v descriptor alloc of 0: %w", a.heap.typ, ErrInvalidArgument)
	}
	fa, err := a.list.Alloc(uint64(n), 1)
	if err != nil {
		return nil, fmt.Errorf("%v descriptor alloc of %d: %w", a.heap.typ, n, err)
	}
	d := &DescriptorAllocation{
		cpuBase: a.heap.CPUStart().Offset(fa.Offset(), a.heap.stride),
		stride:  a.heap.stride,
		count:   n,
		owner:   a,
		alloc:   fa,
	}
	if a.heap.typ.ShaderVisible() {
		d.gpuBase = a.heap.GPUStart().Offset(fa.Offset(), a.heap.stride)
	}
	return d, nil
}

func (a *DescriptorAllocator) free(d *DescriptorAllocation) {
	if d.owner != a {
		panic("gpu: descriptor allocation freed into another allocator")
	}
	start := uint32(d.alloc.Offset())
	a.list.Free(d.alloc)
	for i := uint32(0); i < d.count; i++ {
		a.heap.slots[start+i] = Descriptor{}
	}
}

// FreeOnSignal frees d now when value has already been signalled, otherwise once Signal
// reaches value.
func (a *DescriptorAllocator) FreeOnSignal(d *DescriptorAllocation, value uint64) {
	if value <= a.lastSignal {
		a.free(d)
		return
	}
	heap.Push(&a.pending, pendingFree{value: value, alloc: d})
}

// Signal records that value has been reached and frees every deferred allocation whose value
// is at most value. Values must not decrease.
//
// Parameters:
//   - value: the reached signal value
//
// Returns:
//   - int: the number of allocations freed
func (a *DescriptorAllocator) Signal(value uint64) int {
	if value < a.lastSignal {
		panic(fmt.Sprintf("gpu: descriptor allocator signal went backwards (%d < %d)", value, a.lastSignal))
	}
	a.lastSignal = value
	freed := 0
	for a.pending.Len() > 0 && a.pending[0].value <= value {
		p := heap.Pop(&a.pending).(pendingFree)
		a.free(p.alloc)
		freed++
	}
	if freed > 0 {
		common.Logger().Debug("descriptor frees drained", "heap", a.heap.typ.String(), "count", freed, "signal", value)
	}
	return freed
}

// LastSignal returns the last signalled value.
func (a *DescriptorAllocator) LastSignal() uint64 { return a.lastSignal }

// Pending returns the number of deferred frees.
func (a *DescriptorAllocator) Pending() int { return a.pending.Len() }

// Used returns the number of descriptors in use, including deferred frees.
func (a *DescriptorAllocator) Used() uint32 {
	return uint32(a.list.Total() - a.list.FreeSpace())
}

// Capacity returns the number of descriptors the heap holds.
func (a *DescriptorAllocator) Capacity() uint32 { return a.heap.Capacity() }

// Release drains every deferred free and asserts that no allocation is outstanding.
func (a *DescriptorAllocator) Release() {
	a.Signal(math.MaxUint64)
	a.list.Release()
	a.heap.Release()
}
