package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
)

// CreateCommittedBufferResourceForData creates a default-heap buffer holding data. The bytes are
// written into an upload-heap intermediate, and a copy plus a transition to finalState are
// recorded on list. The intermediate must stay alive until the list has executed.
//
// On a copy list the destination ends in ResourceStateCommon, since copy queues cannot hold
// read states; it is promoted on first use by the direct queue.
//
// Parameters:
//   - dev: the device
//   - list: a recording command list
//   - label: debug label
//   - flags: extra usages of the destination
//   - finalState: the state the destination is left in
//   - data: the elements to upload
//
// Returns:
//   - *Resource: the destination buffer
//   - *Resource: the upload intermediate
//   - error: a creation failure
func CreateCommittedBufferResourceForData[T any](dev Device, list *CommandList, label string, flags ResourceFlags, finalState ResourceState, data []T) (*Resource, *Resource, error) {
	raw := common.SliceToBytes(data)
	size := uint64(len(raw))
	if size == 0 {
		size = 4
	}
	dst, err := CreateCommittedBuffer(dev, BufferDesc{Label: label, Size: size, Heap: HeapTypeDefault, Flags: flags}, ResourceStateCopyDest)
	if err != nil {
		return nil, nil, err
	}
	up, err := CreateCommittedBuffer(dev, BufferDesc{Label: label + " upload", Size: size, Heap: HeapTypeUpload}, ResourceStateGenericRead)
	if err != nil {
		dst.Release()
		return nil, nil, err
	}
	copy(up.Mapped(), raw)
	list.CopyBufferRegion(dst, 0, up, 0, uint64(len(raw)))
	if list.Type() == CommandListTypeCopy {
		finalState = ResourceStateCommon
	}
	list.Transition(dst, ResourceStateCopyDest, finalState)
	return dst, up, nil
}

// CreateCommittedTextureForData creates a default-heap texture and records the upload of its
// layers. pixels holds each layer back to back with tightly packed rows.
//
// Parameters:
//   - dev: the device
//   - list: a recording command list
//   - desc: the texture description, one mip level
//   - pixels: the texel data of every layer
//   - finalState: the state the texture is left in
//
// Returns:
//   - *Resource: the texture
//   - *Resource: the upload intermediate
//   - error: a creation failure
func CreateCommittedTextureForData(dev Device, list *CommandList, desc TextureDesc, pixels []byte, finalState ResourceState) (*Resource, *Resource, error) {
	layers := desc.Layers()
	footprint, layerSize := TextureFootprint(desc.Format, desc.Width, desc.Height)
	tight := uint64(desc.Width) * uint64(desc.Format.BytesPerTexel())
	if uint64(len(pixels)) != tight*uint64(desc.Height)*uint64(layers) {
		return nil, nil, fmt.Errorf("texture %q: %d bytes of pixels for %dx%dx%d: %w",
			desc.Label, len(pixels), desc.Width, desc.Height, layers, ErrOutOfSpace)
	}
	tex, err := CreateCommittedTexture(dev, desc, ResourceStateCopyDest)
	if err != nil {
		return nil, nil, err
	}
	up, err := CreateCommittedBuffer(dev, BufferDesc{Label: desc.Label + " upload", Size: layerSize * uint64(layers), Heap: HeapTypeUpload}, ResourceStateGenericRead)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}
	mapped := up.Mapped()
	for layer := uint32(0); layer < layers; layer++ {
		base := uint64(layer) * layerSize
		for y := uint64(0); y < uint64(desc.Height); y++ {
			src := pixels[(uint64(layer)*uint64(desc.Height)+y)*tight:][:tight]
			copy(mapped[base+y*uint64(footprint.RowPitch):], src)
		}
		fp := footprint
		fp.Offset = base
		list.CopyBufferToTexture(tex, layer, up, fp)
	}
	if list.Type() == CommandListTypeCopy {
		finalState = ResourceStateCommon
	}
	list.Transition(tex, ResourceStateCopyDest, finalState)
	return tex, up, nil
}

// BufferResource is a default-heap buffer of Count elements of T.
type BufferResource[T any] struct {
	Resource *Resource
	Count    uint32
}

// Stride returns the element size.
func (b BufferResource[T]) Stride() uint32 { return uint32(common.SizeOf[T]()) }

// ByteSize returns the size of the elements in bytes.
func (b BufferResource[T]) ByteSize() uint64 { return uint64(b.Count) * uint64(b.Stride()) }

// Release releases the buffer.
func (b *BufferResource[T]) Release() {
	b.Resource.Release()
	b.Resource = nil
}

// VertexBufferResource is a buffer of vertices bound to the input assembler.
type VertexBufferResource[T any] struct {
	BufferResource[T]
}

// NewVertexBufferResource uploads vertices through list.
//
// Returns:
//   - *VertexBufferResource[T]: the vertex buffer
//   - *Resource: the upload intermediate to release after the list completes
//   - error: a creation failure
func NewVertexBufferResource[T any](dev Device, list *CommandList, label string, data []T) (*VertexBufferResource[T], *Resource, error) {
	res, up, err := CreateCommittedBufferResourceForData(dev, list, label, ResourceFlagNone, ResourceStateVertexAndConstantBuffer, data)
	if err != nil {
		return nil, nil, err
	}
	return &VertexBufferResource[T]{BufferResource[T]{Resource: res, Count: uint32(len(data))}}, up, nil
}

// View returns a view of the whole buffer.
func (v *VertexBufferResource[T]) View() VertexBufferView {
	return VertexBufferView{Resource: v.Resource, Size: v.ByteSize(), Stride: v.Stride()}
}

// IndexBufferResource is a buffer of 32-bit indices.
type IndexBufferResource struct {
	BufferResource[uint32]
}

// NewIndexBufferResource uploads indices through list.
func NewIndexBufferResource(dev Device, list *CommandList, label string, indices []uint32) (*IndexBufferResource, *Resource, error) {
	res, up, err := CreateCommittedBufferResourceForData(dev, list, label, ResourceFlagNone, ResourceStateIndexBuffer, indices)
	if err != nil {
		return nil, nil, err
	}
	return &IndexBufferResource{BufferResource[uint32]{Resource: res, Count: uint32(len(indices))}}, up, nil
}

// View returns a view of the whole buffer.
func (ib *IndexBufferResource) View() IndexBufferView {
	return IndexBufferView{Resource: ib.Resource, Size: ib.ByteSize(), Format: FormatR32Uint}
}

// SRVBufferResource is a structured buffer read by shaders.
type SRVBufferResource[T any] struct {
	BufferResource[T]
}

// NewSRVBufferResource uploads elements through list and leaves the buffer shader readable.
func NewSRVBufferResource[T any](dev Device, list *CommandList, label string, data []T) (*SRVBufferResource[T], *Resource, error) {
	res, up, err := CreateCommittedBufferResourceForData(dev, list, label, ResourceFlagNone, ResourceStateAllShaderResource, data)
	if err != nil {
		return nil, nil, err
	}
	return &SRVBufferResource[T]{BufferResource[T]{Resource: res, Count: uint32(len(data))}}, up, nil
}

// ViewDesc returns the structured view over every element.
func (s *SRVBufferResource[T]) ViewDesc() ViewDesc {
	return ViewDesc{Dimension: ViewDimensionBuffer, NumElements: uint64(s.Count), StructureByteStride: uint64(s.Stride())}
}

// RootView returns an inline view of the whole buffer.
func (s *SRVBufferResource[T]) RootView() BufferView {
	return BufferView{Resource: s.Resource, Size: s.ByteSize()}
}

// UAVBufferResource is a structured buffer written by compute shaders.
type UAVBufferResource[T any] struct {
	BufferResource[T]
}

// NewUAVBufferResource creates an uninitialized buffer of count elements in the
// UnorderedAccess state.
func NewUAVBufferResource[T any](dev Device, label string, count uint32) (*UAVBufferResource[T], error) {
	size := uint64(count) * common.SizeOf[T]()
	res, err := CreateCommittedBuffer(dev, BufferDesc{Label: label, Size: max(size, 4), Heap: HeapTypeDefault, Flags: ResourceFlagAllowUnorderedAccess}, ResourceStateUnorderedAccess)
	if err != nil {
		return nil, err
	}
	return &UAVBufferResource[T]{BufferResource[T]{Resource: res, Count: count}}, nil
}

// ViewDesc returns the structured view over every element.
func (u *UAVBufferResource[T]) ViewDesc() ViewDesc {
	return ViewDesc{Dimension: ViewDimensionBuffer, NumElements: uint64(u.Count), StructureByteStride: uint64(u.Stride())}
}

// RootView returns an inline view of the whole buffer.
func (u *UAVBufferResource[T]) RootView() BufferView {
	return BufferView{Resource: u.Resource, Size: u.ByteSize()}
}

// VertexView returns the buffer as a vertex buffer view. The resource must be transitioned to
// ResourceStateVertexAndConstantBuffer before drawing with it.
func (u *UAVBufferResource[T]) VertexView() VertexBufferView {
	return VertexBufferView{Resource: u.Resource, Size: u.ByteSize(), Stride: u.Stride()}
}
