package gpu

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
)

// CommandQueue submits closed command lists of one type and signals fences.
type CommandQueue struct {
	typ    CommandListType
	device Device
	fence  *Fence
	waits  int
}

// NewCommandQueue creates a queue of the given type.
//
// Parameters:
//   - device: the device lists are replayed on
//   - typ: the queue type
//   - opts: options applied to the queue's own flush fence
//
// Returns:
//   - *CommandQueue: the queue
func NewCommandQueue(device Device, typ CommandListType, opts ...FenceOption) *CommandQueue {
	return &CommandQueue{
		typ:    typ,
		device: device,
		fence:  NewFence(typ.String()+" queue", device, opts...),
	}
}

// Type returns the queue type.
func (q *CommandQueue) Type() CommandListType { return q.typ }

// Device returns the queue's device.
func (q *CommandQueue) Device() Device { return q.device }

// Fence returns the queue's own fence used by Flush.
func (q *CommandQueue) Fence() *Fence { return q.fence }

// Execute submits a closed list. Submitting a list of a different type panics.
//
// Parameters:
//   - list: the closed command list
//
// Returns:
//   - error: the device error
func (q *CommandQueue) Execute(list *CommandList) error {
	if list.Type() != q.typ {
		panic(fmt.Sprintf("gpu: %v command list executed on a %v queue", list.Type(), q.typ))
	}
	if list.state != listClosed {
		panic(fmt.Sprintf("gpu: executing command list in state %v", list.state))
	}
	if err := q.device.ExecuteCommandList(q.typ, list); err != nil {
		return fmt.Errorf("execute %v list: %w", q.typ, err)
	}
	list.state = listSubmitted
	return nil
}

// Signal reserves the next value of f and completes it once all work submitted so far on this
// queue has executed.
//
// Returns:
//   - uint64: the signalled value
func (q *CommandQueue) Signal(f *Fence) uint64 {
	v := f.NextValue()
	q.device.SignalFence(q.typ, f, v)
	return v
}

// GPUWait makes later submissions on this queue wait for f to reach value. Both queues share
// one native queue, so submission order already provides the ordering; the wait is validated
// and recorded.
//
// Returns:
//   - error: ErrFenceNeverSignaled when value has not been signalled on any queue
func (q *CommandQueue) GPUWait(f *Fence, value uint64) error {
	if value > f.LastSignaled() {
		return fmt.Errorf("%v queue gpu wait on %q for %d: %w", q.typ, f.Name(), value, ErrFenceNeverSignaled)
	}
	q.waits++
	return nil
}

// GPUWaits returns how many cross-queue waits have been recorded.
func (q *CommandQueue) GPUWaits() int { return q.waits }

// Flush signals the queue's own fence and blocks until it is reached.
func (q *CommandQueue) Flush(ctx context.Context) error {
	v := q.Signal(q.fence)
	if err := q.fence.Wait(ctx, v); err != nil {
		return fmt.Errorf("flush %v queue: %w", q.typ, err)
	}
	common.Logger().Debug("queue flushed", "queue", q.typ.String(), "value", v)
	return nil
}
