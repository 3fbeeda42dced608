package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
)

// BindlessSlice is a range of elements inside a BindlessBufferResource.
type BindlessSlice struct {
	alloc *Allocation
}

// Offset returns the index of the first element.
func (s BindlessSlice) Offset() uint32 { return uint32(s.alloc.Offset()) }

// Count returns the number of elements.
func (s BindlessSlice) Count() uint32 { return uint32(s.alloc.Size()) }

// Valid reports whether the slice is allocated.
func (s BindlessSlice) Valid() bool { return s.alloc != nil && !s.alloc.Freed() }

// StagedUpload is a pending copy from the upload ring into the default buffer, in elements.
type StagedUpload struct {
	UploadOffset  uint64
	DefaultOffset uint64
	Count         uint64
}

// BindlessBufferResource is one large default-heap buffer sub-allocated into slices of T.
// Writes are staged into an upload ring and copied in one batch by FlushUploadToDefault.
type BindlessBufferResource[T any] struct {
	label      string
	stride     uint64
	steady     ResourceState
	buffer     *Resource
	upload     *Resource
	slots      *FreeListAllocator
	uploadCap  uint64
	nextUpload uint64
	staged     []StagedUpload
}

// NewBindlessBufferResource creates the default buffer and its upload ring.
//
// Parameters:
//   - dev: the device
//   - label: debug label
//   - capacity: elements in the default buffer
//   - uploadCapacity: elements that can be staged between flushes
//   - steady: the state the buffer rests in between flushes
//
// Returns:
//   - *BindlessBufferResource[T]: the buffer
//   - error: a creation failure
func NewBindlessBufferResource[T any](dev Device, label string, capacity, uploadCapacity uint32, steady ResourceState) (*BindlessBufferResource[T], error) {
	stride := common.SizeOf[T]()
	buf, err := CreateCommittedBuffer(dev, BufferDesc{Label: label, Size: uint64(capacity) * stride, Heap: HeapTypeDefault}, steady)
	if err != nil {
		return nil, err
	}
	up, err := CreateCommittedBuffer(dev, BufferDesc{Label: label + " upload", Size: uint64(uploadCapacity) * stride, Heap: HeapTypeUpload}, ResourceStateGenericRead)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return &BindlessBufferResource[T]{
		label:     label,
		stride:    stride,
		steady:    steady,
		buffer:    buf,
		upload:    up,
		slots:     NewFreeListAllocator(uint64(capacity)),
		uploadCap: uint64(uploadCapacity),
	}, nil
}

// Resource returns the default-heap buffer.
func (b *BindlessBufferResource[T]) Resource() *Resource { return b.buffer }

// Stride returns the element size in bytes.
func (b *BindlessBufferResource[T]) Stride() uint32 { return uint32(b.stride) }

// Alloc reserves count elements.
//
// Returns:
//   - BindlessSlice: the reserved elements
//   - error: ErrOutOfSpace when the buffer is full
func (b *BindlessBufferResource[T]) Alloc(count uint32) (BindlessSlice, error) {
	a, err := b.slots.Alloc(uint64(count), 1)
	if err != nil {
		return BindlessSlice{}, fmt.Errorf("bindless %q: %w", b.label, err)
	}
	return BindlessSlice{alloc: a}, nil
}

// Free returns a slice. Staged uploads into it are still performed by the next flush.
func (b *BindlessBufferResource[T]) Free(s BindlessSlice) {
	b.slots.Free(s.alloc)
}

// CopyToUpload stages data for s at the next free upload offset. Staging more elements than
// the upload ring holds before a flush panics.
func (b *BindlessBufferResource[T]) CopyToUpload(s BindlessSlice, data []T) {
	n := uint64(len(data))
	if n == 0 {
		return
	}
	if n > uint64(s.Count()) {
		panic(fmt.Sprintf("gpu: bindless %q: %d elements staged into a slice of %d", b.label, n, s.Count()))
	}
	if b.nextUpload+n > b.uploadCap {
		panic(fmt.Sprintf("gpu: bindless %q: upload ring overflow (%d + %d > %d)", b.label, b.nextUpload, n, b.uploadCap))
	}
	copy(b.upload.Mapped()[b.nextUpload*b.stride:], common.SliceToBytes(data))
	b.staged = append(b.staged, StagedUpload{UploadOffset: b.nextUpload, DefaultOffset: s.alloc.Offset(), Count: n})
	b.nextUpload += n
}

// Staged returns the uploads waiting for the next flush.
func (b *BindlessBufferResource[T]) Staged() []StagedUpload { return b.staged }

// FlushUploadToDefault records every staged copy on list between a transition into CopyDest
// and back, then rewinds the upload ring.
//
// Returns:
//   - int: the number of copies recorded
func (b *BindlessBufferResource[T]) FlushUploadToDefault(list *CommandList) int {
	if len(b.staged) == 0 {
		return 0
	}
	list.Transition(b.buffer, b.steady, ResourceStateCopyDest)
	for _, s := range b.staged {
		list.CopyBufferRegion(b.buffer, s.DefaultOffset*b.stride, b.upload, s.UploadOffset*b.stride, s.Count*b.stride)
	}
	list.Transition(b.buffer, ResourceStateCopyDest, b.steady)
	n := len(b.staged)
	b.staged = b.staged[:0]
	b.nextUpload = 0
	return n
}

// DiscardStaged drops every staged upload and rewinds the upload ring without recording
// anything.
func (b *BindlessBufferResource[T]) DiscardStaged() {
	b.staged = b.staged[:0]
	b.nextUpload = 0
}

// VertexView returns s as a vertex buffer view.
func (b *BindlessBufferResource[T]) VertexView(s BindlessSlice) VertexBufferView {
	return VertexBufferView{Resource: b.buffer, Offset: uint64(s.Offset()) * b.stride, Size: uint64(s.Count()) * b.stride, Stride: uint32(b.stride)}
}

// Release releases both buffers. Every slice must have been freed.
func (b *BindlessBufferResource[T]) Release() {
	b.slots.Release()
	b.buffer.Release()
	b.upload.Release()
}
