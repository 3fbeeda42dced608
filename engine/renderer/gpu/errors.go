// Package gpu is the backend-agnostic GPU resource and command-submission layer.
//
// It models an explicit graphics API: command allocators and command lists recorded on one
// thread, command queues signalling fences, descriptor heaps sub-allocated through a free list,
// root signatures and pipeline states, and resources whose state is tracked and validated on
// every transition. A Device backend replays recorded command lists onto a concrete API.
package gpu

import (
	"errors"
)

var (
	// ErrOutOfSpace is returned when a free-list, descriptor heap or fixed pool is exhausted.
	ErrOutOfSpace = errors.New("gpu: out of space")
	// ErrNoResourceAvailable is returned when a command-list pool has no free list or allocator.
	// Callers may retry on a later frame.
	ErrNoResourceAvailable = errors.New("gpu: no resource available")
	// ErrInvalidHandle is returned for a command-list or descriptor handle that is not live.
	ErrInvalidHandle = errors.New("gpu: invalid handle")
	// ErrNativeAPI wraps failures reported by the device backend.
	ErrNativeAPI = errors.New("gpu: native api failure")
	// ErrDeviceLost is returned once the backend reports the device as lost.
	ErrDeviceLost = errors.New("gpu: device lost")
	// ErrFenceNeverSignaled is returned when waiting for a fence value no queue has signalled.
	ErrFenceNeverSignaled = errors.New("gpu: fence value never signaled")
	// ErrWaitTimeout is returned when a fence wait exceeds its deadline.
	ErrWaitTimeout = errors.New("gpu: fence wait timed out")
	// ErrInvalidArgument is returned for requests no resource can satisfy, such as an empty range.
	ErrInvalidArgument = errors.New("gpu: invalid argument")
)
