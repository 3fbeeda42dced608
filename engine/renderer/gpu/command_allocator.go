package gpu

import (
	"fmt"
)

// CommandAllocator owns the memory command lists record into: the op arena, the root-constant
// arena and the descriptor-handle arena. Its memory may only be reused once every list it
// backed has finished executing on the GPU.
type CommandAllocator struct {
	typ       CommandListType
	device    Device
	ops       []Op
	constants []byte
	handles   []CPUDescriptorHandle
	recording *CommandList
	inFlight  bool
	backend   any
}

// NewCommandAllocator creates an allocator for lists of the given type.
func NewCommandAllocator(device Device, typ CommandListType) *CommandAllocator {
	return &CommandAllocator{
		typ:       typ,
		device:    device,
		ops:       make([]Op, 0, 256),
		constants: make([]byte, 0, 4096),
	}
}

// Type returns the list type the allocator serves.
func (a *CommandAllocator) Type() CommandListType { return a.typ }

// InFlight reports whether the allocator's recorded work may still be executing.
func (a *CommandAllocator) InFlight() bool { return a.inFlight }

// SetInFlight marks or clears the in-flight state. Command-list pools set it on submission and
// clear it once the pool's fence passes the submission.
func (a *CommandAllocator) SetInFlight(v bool) { a.inFlight = v }

// Reset recycles the allocator's memory. Panics when the allocator is still in flight or a
// list is recording into it.
func (a *CommandAllocator) Reset() {
	if a.inFlight {
		panic("gpu: command allocator reset while its work is still in flight")
	}
	if a.recording != nil {
		panic("gpu: command allocator reset while a command list is recording into it")
	}
	clear(a.ops)
	a.ops = a.ops[:0]
	a.constants = a.constants[:0]
	a.handles = a.handles[:0]
	if a.device != nil {
		a.device.ResetAllocator(a)
	}
}

// OpCount returns the number of ops recorded since the last Reset.
func (a *CommandAllocator) OpCount() int { return len(a.ops) }

// BackendState returns the state the device attached to this allocator.
func (a *CommandAllocator) BackendState() any { return a.backend }

// SetBackendState attaches device state to the allocator.
func (a *CommandAllocator) SetBackendState(v any) { a.backend = v }

func (a *CommandAllocator) push(op Op) {
	a.ops = append(a.ops, op)
}

func (a *CommandAllocator) storeConstants(data []byte) []byte {
	if len(data)%4 != 0 {
		panic(fmt.Sprintf("gpu: root constants must be a multiple of 4 bytes, got %d", len(data)))
	}
	start := len(a.constants)
	a.constants = append(a.constants, data...)
	return a.constants[start:len(a.constants):len(a.constants)]
}

func (a *CommandAllocator) storeHandles(h []CPUDescriptorHandle) []CPUDescriptorHandle {
	start := len(a.handles)
	a.handles = append(a.handles, h...)
	return a.handles[start:len(a.handles):len(a.handles)]
}
