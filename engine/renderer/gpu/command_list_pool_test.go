package gpu_test

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, dev *gputest.FakeDevice, typ gpu.CommandListType, lists, allocators int) *gpu.CommandListPool {
	t.Helper()
	q := gpu.NewCommandQueue(dev, typ)
	p, err := gpu.NewCommandListPool(dev, q, lists, allocators, gpu.WithWaitTimeout(50*time.Millisecond))
	require.NoError(t, err)
	return p
}

func TestCommandListPoolReclaimsInFenceOrder(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.AutoComplete = false
	p := newPool(t, dev, gpu.CommandListTypeDirect, 2, 3)

	var values []uint64
	for i := 0; i < 3; i++ {
		h, err := p.AllocList()
		require.NoError(t, err)
		v, err := p.ExecuteAndFreeList(h)
		require.NoError(t, err)
		values = append(values, v)
		assert.Equal(t, 2, p.FreeListCount(), "lists return on submission")
	}
	assert.Equal(t, []uint64{1, 2, 3}, values)
	assert.Zero(t, p.FreeAllocatorCount())

	_, err := p.AllocList()
	assert.ErrorIs(t, err, gpu.ErrNoResourceAvailable)
	assert.Equal(t, 2, p.FreeListCount(), "a failed alloc gives the list slot back")

	reclaimed := 0
	for step := 1; step <= 3; step++ {
		dev.Complete(1)
		assert.Equal(t, uint64(step), p.InternalFence().CompletedValue())
		p.FreeAllocators()
		assert.GreaterOrEqual(t, p.FreeAllocatorCount(), reclaimed)
		reclaimed = p.FreeAllocatorCount()
		assert.Equal(t, step, reclaimed)
		assert.Equal(t, 3-step, p.ActiveAllocators())
	}
}

func TestCommandListPoolAllocatorNotReusedBeforeCompletion(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.AutoComplete = false
	p := newPool(t, dev, gpu.CommandListTypeCopy, 1, 1)

	h, err := p.AllocList()
	require.NoError(t, err)
	first := p.MustList(h).Allocator()
	v, err := p.ExecuteAndFreeList(h)
	require.NoError(t, err)
	assert.True(t, first.InFlight())

	_, err = p.AllocList()
	require.ErrorIs(t, err, gpu.ErrNoResourceAvailable)

	dev.Complete(-1)
	require.NoError(t, p.WaitForInternalFenceValue(context.Background(), v))

	h, err = p.AllocList()
	require.NoError(t, err)
	assert.Same(t, first, p.MustList(h).Allocator())
	assert.False(t, first.InFlight())

	_, err = p.ExecuteAndFreeList(h)
	require.NoError(t, err)
	dev.Complete(-1)
	require.NoError(t, p.Release(context.Background()))
}

func TestCommandListPoolStaleHandle(t *testing.T) {
	dev := gputest.NewFakeDevice()
	p := newPool(t, dev, gpu.CommandListTypeDirect, 2, 2)

	h, err := p.AllocList()
	require.NoError(t, err)
	_, err = p.ExecuteAndFreeList(h)
	require.NoError(t, err)

	_, err = p.List(h)
	assert.ErrorIs(t, err, gpu.ErrInvalidHandle)
	_, err = p.ExecuteAndFreeList(h)
	assert.ErrorIs(t, err, gpu.ErrInvalidHandle)
}

func TestCommandQueueRejectsMismatchedList(t *testing.T) {
	dev := gputest.NewFakeDevice()
	direct := gpu.NewCommandQueue(dev, gpu.CommandListTypeDirect)

	alloc := gpu.NewCommandAllocator(dev, gpu.CommandListTypeCopy)
	list := gpu.NewCommandList(gpu.CommandListTypeCopy, "copy")
	list.Reset(alloc)
	list.Close()
	assert.Panics(t, func() { _ = direct.Execute(list) })

	open := gpu.NewCommandList(gpu.CommandListTypeDirect, "open")
	open.Reset(gpu.NewCommandAllocator(dev, gpu.CommandListTypeDirect))
	assert.Panics(t, func() { _ = direct.Execute(open) }, "lists must be closed")
}

func TestCommandQueueGPUWait(t *testing.T) {
	dev := gputest.NewFakeDevice()
	direct := gpu.NewCommandQueue(dev, gpu.CommandListTypeDirect)
	copyQ := gpu.NewCommandQueue(dev, gpu.CommandListTypeCopy)
	f := gpu.NewFence("upload", dev)

	assert.ErrorIs(t, direct.GPUWait(f, 1), gpu.ErrFenceNeverSignaled)
	v := copyQ.Signal(f)
	require.NoError(t, direct.GPUWait(f, v))
	assert.Equal(t, 1, direct.GPUWaits())
	require.NoError(t, direct.Flush(context.Background()))
}

func TestFenceWaitTimeout(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.AutoComplete = false
	q := gpu.NewCommandQueue(dev, gpu.CommandListTypeDirect)
	f := gpu.NewFence("frame", dev, gpu.WithWaitTimeout(20*time.Millisecond))

	v := q.Signal(f)
	err := f.Wait(context.Background(), v)
	assert.ErrorIs(t, err, gpu.ErrWaitTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, f.Wait(context.Background(), v+1), gpu.ErrFenceNeverSignaled)

	dev.Complete(-1)
	assert.NoError(t, f.Wait(context.Background(), v))
	assert.NoError(t, f.Wait(context.Background(), 0))
}

func TestFenceWaitWakesOnCompletion(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.AutoComplete = false
	q := gpu.NewCommandQueue(dev, gpu.CommandListTypeDirect)
	f := gpu.NewFence("frame", dev)
	v := q.Signal(f)

	go func() {
		time.Sleep(5 * time.Millisecond)
		dev.Complete(-1)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, f.Wait(ctx, v))
	assert.Equal(t, v, f.CompletedValue())
}

func TestCommandListPoolFreeListSubmitsNothing(t *testing.T) {
	dev := gputest.NewFakeDevice()
	dev.AutoComplete = false
	p := newPool(t, dev, gpu.CommandListTypeDirect, 1, 1)

	h, err := p.AllocList()
	require.NoError(t, err)
	p.MustList(h).ClearDepthStencilView(gpu.CPUDescriptorHandle{}, 1)
	require.NoError(t, p.FreeList(h))
	assert.Empty(t, dev.Submissions)
	assert.Equal(t, 1, p.FreeListCount())
	assert.Equal(t, 1, p.FreeAllocatorCount(), "the allocator returns at once")
	assert.Zero(t, p.ActiveAllocators())
	assert.ErrorIs(t, p.FreeList(h), gpu.ErrInvalidHandle)

	h, err = p.AllocList()
	require.NoError(t, err, "the slots are reusable")
	assert.Empty(t, p.MustList(h).Ops())
	require.NoError(t, p.FreeList(h))
	require.NoError(t, p.Release(context.Background()))
}
