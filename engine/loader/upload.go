package loader

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// uploader records synchronous resource uploads. Copies run on the copy queue; the direct queue
// then waits for them on the GPU and moves the new resources from Common into their read
// states. The CPU blocks until the direct list completes so the upload intermediates can be
// released.
type uploader struct {
	device     gpu.Device
	copyPool   *gpu.CommandListPool
	directPool *gpu.CommandListPool
}

// newUploader creates the command-list pools an uploader records on.
//
// Parameters:
//   - device: the device
//   - direct: the direct queue
//   - copyQueue: the copy queue
//   - lists: the number of lists and allocators of each pool
//
// Returns:
//   - *uploader: the uploader
//   - error: a pool creation error
func newUploader(device gpu.Device, direct, copyQueue *gpu.CommandQueue, lists int) (*uploader, error) {
	cp, err := gpu.NewCommandListPool(device, copyQueue, lists, lists)
	if err != nil {
		return nil, fmt.Errorf("loader copy pool: %w", err)
	}
	dp, err := gpu.NewCommandListPool(device, direct, lists, lists)
	if err != nil {
		_ = cp.Release(context.Background())
		return nil, fmt.Errorf("loader direct pool: %w", err)
	}
	return &uploader{device: device, copyPool: cp, directPool: dp}, nil
}

// staged is what a record function hands back: the intermediates to release and the
// destination resources with the read state each must end in.
type staged struct {
	uploads []*gpu.Resource
	targets []stagedTarget
}

type stagedTarget struct {
	res   *gpu.Resource
	state gpu.ResourceState
}

func (s *staged) add(dst, upload *gpu.Resource, state gpu.ResourceState) {
	s.uploads = append(s.uploads, upload)
	s.targets = append(s.targets, stagedTarget{res: dst, state: state})
}

func (s *staged) release() {
	for _, u := range s.uploads {
		if u != nil {
			u.Release()
		}
	}
	s.uploads = nil
}

// releaseTargets releases the destination resources of a failed upload.
func (s *staged) releaseTargets() {
	for _, t := range s.targets {
		t.res.Release()
	}
	s.targets = nil
}

// upload runs record on a copy list and blocks until the recorded resources are readable on the
// direct queue. On any error every staged target is released, so the caller owns nothing.
//
// Parameters:
//   - ctx: bounds the CPU wait
//   - record: records copies and returns what it staged
//
// Returns:
//   - error: ErrNoResourceAvailable when a pool is exhausted, or a record, submission or wait
//     error
func (u *uploader) upload(ctx context.Context, record func(list *gpu.CommandList, s *staged) error) (err error) {
	ch, err := u.copyPool.AllocList()
	if err != nil {
		return err
	}
	var s staged
	defer func() {
		if err != nil {
			s.releaseTargets()
		}
		s.release()
	}()

	recErr := record(u.copyPool.MustList(ch), &s)
	copyValue, execErr := u.copyPool.ExecuteAndFreeList(ch)
	// the copy list has to retire before its intermediates go
	retire := func(cause error) error {
		if werr := u.copyPool.WaitForInternalFenceValue(ctx, copyValue); werr != nil {
			return fmt.Errorf("%w (after %w)", cause, werr)
		}
		return cause
	}
	if recErr != nil {
		if execErr != nil {
			return fmt.Errorf("%w (after %w)", recErr, execErr)
		}
		return retire(recErr)
	}
	if execErr != nil {
		return execErr
	}

	dh, err := u.directPool.AllocList()
	if err != nil {
		return retire(err)
	}
	if err := u.directPool.Queue().GPUWait(u.copyPool.InternalFence(), copyValue); err != nil {
		if ferr := u.directPool.FreeList(dh); ferr != nil {
			return fmt.Errorf("%w (after %w)", err, ferr)
		}
		return retire(err)
	}
	list := u.directPool.MustList(dh)
	for _, t := range s.targets {
		list.Transition(t.res, gpu.ResourceStateCommon, t.state)
	}
	v, err := u.directPool.ExecuteAndFreeList(dh)
	if err != nil {
		return retire(err)
	}
	return u.directPool.WaitForInternalFenceValue(ctx, v)
}

// release drains and releases both pools.
func (u *uploader) release(ctx context.Context) error {
	errC := u.copyPool.Release(ctx)
	errD := u.directPool.Release(ctx)
	if errC != nil {
		return errC
	}
	return errD
}
