package gpu_test

import (
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeListSingleByteRoundTrip(t *testing.T) {
	f := gpu.NewFreeListAllocator(100)

	a, err := f.Alloc(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), a.Offset())
	assert.Equal(t, uint64(1), a.Size())

	f.Free(a)
	assert.Equal(t, []gpu.Chunk{{Offset: 0, Size: 100}}, f.Chunks())
	assert.Equal(t, uint64(100), f.FreeSpace())
	assert.NotPanics(t, f.Release)
}

func TestFreeListMergeAllFreeOrders(t *testing.T) {
	orders := [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, order := range orders {
		f := gpu.NewFreeListAllocator(30)
		var allocs [3]*gpu.Allocation
		for i := range allocs {
			a, err := f.Alloc(10, 1)
			require.NoError(t, err)
			allocs[i] = a
		}
		assert.Empty(t, f.Chunks())

		for _, i := range order {
			f.Free(allocs[i])
			chunks := f.Chunks()
			for j := 1; j < len(chunks); j++ {
				assert.Less(t, chunks[j-1].End(), chunks[j].Offset, "order %v left adjacent chunks %v", order, chunks)
			}
		}
		assert.Equal(t, []gpu.Chunk{{Offset: 0, Size: 30}}, f.Chunks(), "order %v", order)
	}
}

func TestFreeListAlignmentNoOverlap(t *testing.T) {
	for _, align := range []uint64{1, 4, 8, 16} {
		f := gpu.NewFreeListAllocator(64)
		var live []*gpu.Allocation
		for _, size := range []uint64{1, 3, 4, 7, 8, 17} {
			a, err := f.Alloc(size, align)
			if err != nil {
				assert.ErrorIs(t, err, gpu.ErrOutOfSpace)
				continue
			}
			assert.Zero(t, a.Offset()%align, "align %d size %d", align, size)
			for _, other := range live {
				overlap := a.Offset() < other.End() && other.Offset() < a.End()
				assert.False(t, overlap, "[%d,%d) overlaps [%d,%d)", a.Offset(), a.End(), other.Offset(), other.End())
			}
			live = append(live, a)
		}
		for _, a := range live {
			f.Free(a)
		}
		assert.Equal(t, []gpu.Chunk{{Offset: 0, Size: 64}}, f.Chunks())
	}
}

func TestFreeListCoverageInvariant(t *testing.T) {
	const total = 256
	f := gpu.NewFreeListAllocator(total)
	rng := rand.New(rand.NewSource(7))
	var live []*gpu.Allocation

	check := func() {
		var used uint64
		for _, a := range live {
			used += a.Size()
		}
		require.Equal(t, uint64(total), used+f.FreeSpace())
	}

	for step := 0; step < 500; step++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			i := rng.Intn(len(live))
			f.Free(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			a, err := f.Alloc(uint64(rng.Intn(24)+1), uint64(1)<<rng.Intn(4))
			if err == nil {
				live = append(live, a)
			}
		}
		check()
	}
	for _, a := range live {
		f.Free(a)
	}
	live = nil
	check()
	assert.Len(t, f.Chunks(), 1)
}

func TestFreeListFirstFit(t *testing.T) {
	f := gpu.NewFreeListAllocator(40)
	a, _ := f.Alloc(10, 1)
	b, _ := f.Alloc(10, 1)
	_, _ = f.Alloc(10, 1)
	f.Free(a)
	f.Free(b)

	c, err := f.Alloc(5, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Offset())
}

func TestFreeListMisuse(t *testing.T) {
	f := gpu.NewFreeListAllocator(16)
	a, err := f.Alloc(4, 1)
	require.NoError(t, err)

	_, err = f.Alloc(32, 1)
	assert.ErrorIs(t, err, gpu.ErrOutOfSpace)

	assert.Panics(t, func() { f.Release() })
	f.Free(a)
	assert.True(t, a.Freed())
	assert.Panics(t, func() { f.Free(a) })
	assert.Panics(t, func() { _, _ = f.Alloc(0, 1) })

	other := gpu.NewFreeListAllocator(16)
	b, err := other.Alloc(1, 1)
	require.NoError(t, err)
	assert.Panics(t, func() { f.Free(b) })
}
