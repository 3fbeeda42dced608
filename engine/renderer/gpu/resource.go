package gpu

import (
	"fmt"
	"sync/atomic"
)

var resourceIDs atomic.Uint64

// Resource is a committed buffer or texture together with its tracked state.
// The state changes only through CommandList.ResourceBarrier, which validates every transition
// against the tracked state.
type Resource struct {
	id      uint64
	label   string
	buffer  Buffer
	texture Texture
	state   ResourceState
	heap    HeapType
	// external resources (swap-chain images) are owned by their producer.
	external bool
}

// CreateCommittedBuffer creates a buffer resource.
//
// Parameters:
//   - dev: the device
//   - desc: the buffer description
//   - initialState: the tracked state the resource starts in (forced to GenericRead for upload heaps)
//
// Returns:
//   - *Resource: the resource
//   - error: the device error
func CreateCommittedBuffer(dev Device, desc BufferDesc, initialState ResourceState) (*Resource, error) {
	b, err := dev.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	if desc.Heap == HeapTypeUpload {
		initialState = ResourceStateGenericRead
	} else if desc.Heap == HeapTypeReadback {
		initialState = ResourceStateCopyDest
	}
	return &Resource{id: resourceIDs.Add(1), label: desc.Label, buffer: b, state: initialState, heap: desc.Heap}, nil
}

// CreateCommittedTexture creates a texture resource in the default heap.
//
// Parameters:
//   - dev: the device
//   - desc: the texture description
//   - initialState: the tracked state the resource starts in
//
// Returns:
//   - *Resource: the resource
//   - error: the device error
func CreateCommittedTexture(dev Device, desc TextureDesc, initialState ResourceState) (*Resource, error) {
	t, err := dev.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	return &Resource{id: resourceIDs.Add(1), label: desc.Label, texture: t, state: initialState, heap: HeapTypeDefault}, nil
}

// WrapExternalTexture wraps a texture owned elsewhere (a swap-chain image). Releasing the
// resource does not release the texture.
func WrapExternalTexture(t Texture, state ResourceState) *Resource {
	return &Resource{id: resourceIDs.Add(1), label: t.Label(), texture: t, state: state, external: true}
}

// ID returns a process-unique identifier for the resource.
func (r *Resource) ID() uint64 { return r.id }

// Label returns the debug label.
func (r *Resource) Label() string { return r.label }

// State returns the tracked state.
func (r *Resource) State() ResourceState { return r.state }

// Heap returns the heap the resource lives in.
func (r *Resource) Heap() HeapType { return r.heap }

// Buffer returns the native buffer, nil for textures.
func (r *Resource) Buffer() Buffer { return r.buffer }

// Texture returns the native texture, nil for buffers.
func (r *Resource) Texture() Texture { return r.texture }

// IsBuffer reports whether the resource is a buffer.
func (r *Resource) IsBuffer() bool { return r.buffer != nil }

// Size returns the byte size of a buffer resource, 0 for textures.
func (r *Resource) Size() uint64 {
	if r.buffer == nil {
		return 0
	}
	return r.buffer.Size()
}

// Mapped returns the persistently mapped bytes of an upload or readback buffer.
func (r *Resource) Mapped() []byte {
	if r.buffer == nil {
		return nil
	}
	return r.buffer.Mapped()
}

// Release destroys the native object. The caller guarantees the GPU no longer uses it.
func (r *Resource) Release() {
	if r == nil || r.external {
		return
	}
	if r.buffer != nil {
		r.buffer.Release()
		r.buffer = nil
	}
	if r.texture != nil {
		r.texture.Release()
		r.texture = nil
	}
}

func (r *Resource) String() string {
	return fmt.Sprintf("resource %q (%v)", r.label, r.state)
}

// transition validates before against the tracked state and moves the resource to after.
func (r *Resource) transition(before, after ResourceState) {
	if r.heap == HeapTypeUpload || r.heap == HeapTypeReadback {
		panic(fmt.Sprintf("gpu: %v lives in a CPU-visible heap and cannot transition", r))
	}
	if r.state != before {
		panic(fmt.Sprintf("gpu: barrier on %q expects state %v but tracked state is %v", r.label, before, r.state))
	}
	r.state = after
}
