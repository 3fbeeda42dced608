package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearAllocatorAlignmentAndExhaustion(t *testing.T) {
	l := NewLinearAllocator(64)

	a, err := l.Alloc(3, 1, "a")
	require.NoError(t, err)
	b, err := l.Alloc(8, 16, "b")
	require.NoError(t, err)
	assert.Zero(t, uintptr(unsafe.Pointer(&b.Bytes()[0]))%16)
	assert.GreaterOrEqual(t, b.Offset, a.Offset+a.Size)

	_, err = l.Alloc(64, 1, "too-big")
	assert.ErrorIs(t, err, ErrOutOfMemory)

	assert.Equal(t, 2, l.Held())
	l.Free(a)
	l.Free(b)
	l.Reset()
	assert.Zero(t, l.Used())
}

func TestLinearAllocatorResetWithHeldBlocksPanics(t *testing.T) {
	l := NewLinearAllocator(32)
	_, err := l.Alloc(4, 4, "held")
	require.NoError(t, err)
	assert.Panics(t, func() { l.Reset() })
}

func TestLinearAllocatorTagValidation(t *testing.T) {
	l := NewLinearAllocator(32)
	other := NewLinearAllocator(32)

	b, err := l.Alloc(4, 4, "mesh")
	require.NoError(t, err)

	assert.Panics(t, func() { other.Free(b) })

	renamed := b
	renamed.Tag = "texture"
	assert.Panics(t, func() { l.Free(renamed) })

	l.Free(b)
	assert.Panics(t, func() { l.Free(b) })
}

func TestLinearAllocatorScopedReset(t *testing.T) {
	l := NewLinearAllocator(64)
	_, err := l.Alloc(8, 8, "persistent")
	require.NoError(t, err)

	m := l.Mark()
	tmp, err := l.Alloc(16, 8, "scratch")
	require.NoError(t, err)
	assert.Panics(t, func() { l.ResetTo(m) })

	l.Free(tmp)
	l.ResetTo(m)
	assert.Equal(t, uint64(8), l.Used())
	assert.Equal(t, 1, l.Held())
}

func TestStackAllocatorEnforcesLIFO(t *testing.T) {
	s := NewStackAllocator(64)
	a, err := s.Alloc(8, 8, "a")
	require.NoError(t, err)
	b, err := s.Alloc(8, 8, "b")
	require.NoError(t, err)

	assert.Panics(t, func() { s.Free(a) })

	s.Free(b)
	s.Free(a)
	assert.Zero(t, s.Used())
	assert.Zero(t, s.Depth())
}

func TestSystemAllocatorLimit(t *testing.T) {
	s := NewSystemAllocator(16)
	b, err := s.Alloc(12, 4, "a")
	require.NoError(t, err)
	_, err = s.Alloc(8, 4, "b")
	assert.ErrorIs(t, err, ErrOutOfMemory)
	s.Free(b)
	assert.Zero(t, s.Used())
	assert.Panics(t, func() { s.Free(b) })
}

func TestNewSliceCarvesPointerFreeTypes(t *testing.T) {
	l := NewLinearAllocator(256)
	type vertex struct{ X, Y, Z float32 }

	verts, _, err := NewSlice[vertex](l, 4, "verts")
	require.NoError(t, err)
	assert.Len(t, verts, 4)
	assert.Equal(t, uint64(48), l.Used())

	names, _, err := NewSlice[string](l, 2, "names")
	require.NoError(t, err)
	names[0] = "ok"
	assert.Equal(t, "ok", names[0])
}

func TestVecFixedCapacity(t *testing.T) {
	v, err := NewVec[int](NewSystemAllocator(0), 3)
	require.NoError(t, err)

	for _, x := range []int{1, 2, 3} {
		require.NoError(t, v.Push(x))
	}
	assert.ErrorIs(t, v.Push(4), ErrFull)

	assert.Equal(t, 1, v.SwapRemove(0))
	assert.Equal(t, []int{3, 2}, v.Slice())

	require.NoError(t, v.Insert(1, 9))
	assert.Equal(t, []int{3, 9, 2}, v.Slice())

	assert.Equal(t, 9, v.Remove(1))
	assert.Equal(t, []int{3, 2}, v.Slice())

	last, ok := v.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, last)

	v.Clear()
	assert.Zero(t, v.Len())
	_, ok = v.Pop()
	assert.False(t, ok)
}

func TestVecGrow(t *testing.T) {
	l := NewLinearAllocator(1024)
	v, err := NewVec[uint32](l, 2, WithGrow(), WithTag("grow"))
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		require.NoError(t, v.Push(i))
	}
	assert.Equal(t, 10, v.Len())
	assert.GreaterOrEqual(t, v.Cap(), 10)
	assert.Equal(t, uint32(7), v.At(7))
	assert.Equal(t, 1, l.Held())

	v.Release()
	assert.Zero(t, l.Held())
}

func TestQueueWraparoundPreservesFIFO(t *testing.T) {
	q, err := NewQueue[int](NewLinearAllocator(64), 3, "ring")
	require.NoError(t, err)

	require.NoError(t, q.Push(33))
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 33, v)

	for _, x := range []int{21, 9, 18} {
		require.NoError(t, q.Push(x))
	}
	assert.Equal(t, 3, q.Len())
	assert.ErrorIs(t, q.Push(1), ErrFull)

	for _, want := range []int{21, 9, 18} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	require.NoError(t, q.Push(29))
	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 29, head)
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 29, v)

	assert.Zero(t, q.Len())
	_, ok = q.Pop()
	assert.False(t, ok)
}
