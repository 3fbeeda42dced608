package gpu

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/memory"
)

// ListHandle identifies a command list checked out of a CommandListPool.
type ListHandle struct {
	handle.Handle
}

type listSlot struct {
	allocator handle.Handle
}

type activeAllocator struct {
	allocator handle.Handle
	value     uint64
}

// CommandListPool recycles a fixed set of command lists and command allocators for one queue.
// Lists return to the pool as soon as they are submitted. Allocators return only once the
// pool's internal fence shows the GPU has finished the work recorded into them.
type CommandListPool struct {
	device Device
	queue  *CommandQueue
	fence  *Fence

	allocatorSlots *handle.Pool[struct{}]
	listSlots      *handle.Pool[listSlot]
	allocators     []*CommandAllocator
	lists          []*CommandList

	active []activeAllocator
}

// NewCommandListPool creates a pool of numLists command lists and numAllocators allocators that
// submit to queue.
//
// Parameters:
//   - device: the device allocators record for
//   - queue: the queue lists are executed on
//   - numLists: the number of command list slots
//   - numAllocators: the number of command allocator slots
//   - opts: options for the pool's internal fence
//
// Returns:
//   - *CommandListPool: the pool
//   - error: a pool construction failure
func NewCommandListPool(device Device, queue *CommandQueue, numLists, numAllocators int, opts ...FenceOption) (*CommandListPool, error) {
	sys := memory.NewSystemAllocator(0)
	aSlots, err := handle.NewPool[struct{}](sys, numAllocators)
	if err != nil {
		return nil, fmt.Errorf("command allocator pool: %w", err)
	}
	lSlots, err := handle.NewPool[listSlot](sys, numLists)
	if err != nil {
		return nil, fmt.Errorf("command list pool: %w", err)
	}
	p := &CommandListPool{
		device:         device,
		queue:          queue,
		fence:          NewFence(queue.Type().String()+" list pool", device, opts...),
		allocatorSlots: aSlots,
		listSlots:      lSlots,
		allocators:     make([]*CommandAllocator, numAllocators),
		lists:          make([]*CommandList, numLists),
	}
	for i := range p.allocators {
		p.allocators[i] = NewCommandAllocator(device, queue.Type())
	}
	for i := range p.lists {
		p.lists[i] = NewCommandList(queue.Type(), fmt.Sprintf("%v list %d", queue.Type(), i))
	}
	return p, nil
}

// Queue returns the queue the pool submits to.
func (p *CommandListPool) Queue() *CommandQueue { return p.queue }

// InternalFence returns the fence signalled after every execution.
func (p *CommandListPool) InternalFence() *Fence { return p.fence }

// AllocList reclaims finished allocators, then checks out an allocator and a list and starts
// the list recording.
//
// Returns:
//   - ListHandle: the list handle, valid until ExecuteAndFreeList
//   - error: ErrNoResourceAvailable when no list or allocator is free
func (p *CommandListPool) AllocList() (ListHandle, error) {
	p.FreeAllocators()

	ah, err := p.allocatorSlots.Alloc()
	if err != nil {
		return ListHandle{}, fmt.Errorf("%v command allocator: %w", p.queue.Type(), ErrNoResourceAvailable)
	}
	lh, err := p.listSlots.Alloc()
	if err != nil {
		p.allocatorSlots.Free(ah)
		return ListHandle{}, fmt.Errorf("%v command list: %w", p.queue.Type(), ErrNoResourceAvailable)
	}
	alloc := p.allocators[ah.Index]
	alloc.Reset()
	p.listSlots.MustGet(lh).allocator = ah
	p.lists[lh.Index].Reset(alloc)
	return ListHandle{lh}, nil
}

// List returns the command list behind h.
//
// Returns:
//   - *CommandList: the recording list
//   - error: ErrInvalidHandle when h is not checked out
func (p *CommandListPool) List(h ListHandle) (*CommandList, error) {
	if !p.listSlots.Valid(h.Handle) {
		return nil, fmt.Errorf("command list %v: %w", h.Handle, ErrInvalidHandle)
	}
	return p.lists[h.Index], nil
}

// MustList is List for handles the caller just allocated.
func (p *CommandListPool) MustList(h ListHandle) *CommandList {
	l, err := p.List(h)
	if err != nil {
		panic(err)
	}
	return l
}

// ExecuteAndFreeList closes the list if it is still recording, submits it, returns the list slot
// to the pool and queues its allocator for reclamation once the returned value completes.
//
// Parameters:
//   - h: the list handle
//
// Returns:
//   - uint64: the internal fence value that marks completion of the list
//   - error: ErrInvalidHandle or the submission error
func (p *CommandListPool) ExecuteAndFreeList(h ListHandle) (uint64, error) {
	list, err := p.List(h)
	if err != nil {
		return 0, err
	}
	slot := p.listSlots.MustGet(h.Handle)
	ah := slot.allocator
	if list.Recording() {
		list.Close()
	}
	execErr := p.queue.Execute(list)
	list.markFree()
	p.listSlots.Free(h.Handle)

	v := p.queue.Signal(p.fence)
	p.allocators[ah.Index].SetInFlight(true)
	p.active = append(p.active, activeAllocator{allocator: ah, value: v})
	return v, execErr
}

// FreeList returns a checked out list and its allocator to the pool without submitting
// anything. The recorded commands are dropped.
//
// Returns:
//   - error: ErrInvalidHandle when h is not checked out
func (p *CommandListPool) FreeList(h ListHandle) error {
	list, err := p.List(h)
	if err != nil {
		return err
	}
	ah := p.listSlots.MustGet(h.Handle).allocator
	list.markFree()
	p.listSlots.Free(h.Handle)
	p.allocators[ah.Index].Reset()
	p.allocatorSlots.Free(ah)
	return nil
}

// FreeAllocators returns every allocator whose recorded fence value has completed to the free
// pool, oldest submission first.
//
// Returns:
//   - int: the number of allocators reclaimed
func (p *CommandListPool) FreeAllocators() int {
	p.device.Poll(false)
	completed := p.fence.CompletedValue()
	n := 0
	for n < len(p.active) && p.active[n].value <= completed {
		a := p.active[n]
		p.allocators[a.allocator.Index].SetInFlight(false)
		p.allocatorSlots.Free(a.allocator)
		n++
	}
	if n > 0 {
		p.active = append(p.active[:0], p.active[n:]...)
		common.Logger().Debug("command allocators reclaimed", "queue", p.queue.Type().String(), "count", n, "completed", completed)
	}
	return n
}

// WaitForInternalFenceValue blocks until the pool's fence reaches value.
func (p *CommandListPool) WaitForInternalFenceValue(ctx context.Context, value uint64) error {
	if err := p.fence.Wait(ctx, value); err != nil {
		return fmt.Errorf("%v list pool wait for %d: %w", p.queue.Type(), value, err)
	}
	return nil
}

// FreeAllocatorCount returns the number of allocators available for AllocList.
func (p *CommandListPool) FreeAllocatorCount() int { return p.allocatorSlots.FreeCount() }

// FreeListCount returns the number of lists available for AllocList.
func (p *CommandListPool) FreeListCount() int { return p.listSlots.FreeCount() }

// ActiveAllocators returns the number of allocators waiting on the GPU.
func (p *CommandListPool) ActiveAllocators() int { return len(p.active) }

// Release waits for all submitted work and reclaims every allocator.
func (p *CommandListPool) Release(ctx context.Context) error {
	if last := p.fence.LastSignaled(); last > 0 {
		if err := p.WaitForInternalFenceValue(ctx, last); err != nil {
			return err
		}
	}
	p.FreeAllocators()
	if p.listSlots.Used() != 0 {
		return fmt.Errorf("%v list pool released with %d lists checked out: %w", p.queue.Type(), p.listSlots.Used(), ErrInvalidHandle)
	}
	return nil
}
