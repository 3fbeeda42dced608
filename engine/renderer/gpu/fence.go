package gpu

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Poller processes device completion callbacks.
type Poller interface {
	Poll(wait bool)
}

// FenceOption configures a Fence.
type FenceOption func(*Fence)

// WithWaitTimeout bounds every Wait on the fence. Zero means wait until the context ends.
func WithWaitTimeout(d time.Duration) FenceOption {
	return func(f *Fence) {
		f.timeout = d
	}
}

// WithPollInterval sets how long Wait sleeps between polls.
func WithPollInterval(d time.Duration) FenceOption {
	return func(f *Fence) {
		f.pollInterval = d
	}
}

// Fence is a monotonically increasing counter. Queues hand out values with Signal and the
// device completes them once the GPU has executed all work submitted before the signal.
type Fence struct {
	mu           sync.Mutex
	name         string
	poller       Poller
	signaled     uint64
	completed    uint64
	changed      chan struct{}
	timeout      time.Duration
	pollInterval time.Duration
}

// NewFence creates a fence at value 0.
//
// Parameters:
//   - name: debug name
//   - poller: the device used to drive completion callbacks while waiting
//   - opts: optional FenceOption values
//
// Returns:
//   - *Fence: the fence
func NewFence(name string, poller Poller, opts ...FenceOption) *Fence {
	f := &Fence{
		name:         name,
		poller:       poller,
		changed:      make(chan struct{}),
		pollInterval: 200 * time.Microsecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the debug name.
func (f *Fence) Name() string { return f.name }

// NextValue reserves the next signal value.
func (f *Fence) NextValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled++
	return f.signaled
}

// LastSignaled returns the highest value handed out by NextValue.
func (f *Fence) LastSignaled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// CompletedValue returns the highest completed value.
func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Complete marks value as reached. Lower values than the current completed value are ignored.
func (f *Fence) Complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.completed {
		return
	}
	f.completed = value
	close(f.changed)
	f.changed = make(chan struct{})
}

// Wait blocks until value is completed, the context ends, or the fence's wait timeout elapses.
//
// Parameters:
//   - ctx: bounds the wait
//   - value: the value to wait for
//
// Returns:
//   - error: ErrFenceNeverSignaled, or ErrWaitTimeout wrapping the context error
func (f *Fence) Wait(ctx context.Context, value uint64) error {
	f.mu.Lock()
	if f.completed >= value {
		f.mu.Unlock()
		return nil
	}
	if value > f.signaled {
		f.mu.Unlock()
		return fmt.Errorf("fence %q wait for %d (last signaled %d): %w", f.name, value, f.signaled, ErrFenceNeverSignaled)
	}
	f.mu.Unlock()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	for {
		if f.poller != nil {
			f.poller.Poll(false)
		}
		f.mu.Lock()
		done := f.completed >= value
		changed := f.changed
		f.mu.Unlock()
		if done {
			return nil
		}

		timer := time.NewTimer(f.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("fence %q wait for %d (completed %d): %w: %w", f.name, value, f.CompletedValue(), ErrWaitTimeout, ctx.Err())
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}
