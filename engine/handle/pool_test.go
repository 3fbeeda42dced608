package handle

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, capacity int) *Pool[string] {
	t.Helper()
	p, err := NewPool[string](memory.NewSystemAllocator(0), capacity)
	require.NoError(t, err)
	return p
}

func TestPoolHandleIsolation(t *testing.T) {
	p := newTestPool(t, 4)

	a, err := p.Alloc()
	require.NoError(t, err)
	*p.MustGet(a) = "a"
	b, err := p.Alloc()
	require.NoError(t, err)
	*p.MustGet(b) = "b"

	require.True(t, p.Free(b))

	got, err := p.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "a", *got)

	_, err = p.Get(b)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestPoolReuseBumpsGeneration(t *testing.T) {
	p := newTestPool(t, 1)

	first, err := p.Alloc()
	require.NoError(t, err)
	p.Free(first)

	second, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, first.Index, second.Index)
	assert.NotEqual(t, first.Generation, second.Generation)

	_, err = p.Get(first)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.False(t, p.Free(first), "stale free must be a no-op")
	assert.True(t, p.Valid(second))
}

func TestPoolFullAndInvariant(t *testing.T) {
	p := newTestPool(t, 3)
	var hs []Handle
	for i := 0; i < 3; i++ {
		h, err := p.Alloc()
		require.NoError(t, err)
		hs = append(hs, h)
		assert.Equal(t, p.Capacity(), p.Used()+p.FreeCount())
	}
	_, err := p.Alloc()
	assert.ErrorIs(t, err, ErrFull)

	p.Free(hs[1])
	p.Free(hs[1])
	assert.Equal(t, 2, p.Used())
	assert.Equal(t, 1, p.FreeCount())
}

func TestPoolFreeQueueIsFIFO(t *testing.T) {
	p := newTestPool(t, 3)
	a, _ := p.Alloc()
	b, _ := p.Alloc()
	c, _ := p.Alloc()
	p.Free(c)
	p.Free(a)
	p.Free(b)

	for _, want := range []uint32{c.Index, a.Index, b.Index} {
		h, err := p.Alloc()
		require.NoError(t, err)
		assert.Equal(t, want, h.Index)
	}
}

func TestZeroHandleIsInvalid(t *testing.T) {
	p := newTestPool(t, 2)
	_, err := p.Get(Handle{})
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = p.Get(Handle{Index: 9, Generation: 1})
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.True(t, Handle{}.IsZero())
}

func TestPoolEach(t *testing.T) {
	p := newTestPool(t, 3)
	a, _ := p.Alloc()
	b, _ := p.Alloc()
	*p.MustGet(a) = "a"
	*p.MustGet(b) = "b"
	p.Free(a)

	var seen []string
	p.Each(func(_ Handle, v *string) bool {
		seen = append(seen, *v)
		return true
	})
	assert.Equal(t, []string{"b"}, seen)
}

func TestStoragePool(t *testing.T) {
	s, err := NewStoragePool[int](memory.NewSystemAllocator(0), 2)
	require.NoError(t, err)

	h, err := s.Alloc()
	require.NoError(t, err)
	_, err = s.Get(h)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, s.InsertVal(h, 7))
	v, err := s.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 7, *v)

	taken, err := s.Take(h)
	require.NoError(t, err)
	assert.Equal(t, 7, taken)
	_, err = s.Get(h)
	assert.ErrorIs(t, err, ErrEmpty)

	h2, err := s.AllocVal(3)
	require.NoError(t, err)
	s.Clear()
	assert.Zero(t, s.Used())
	_, err = s.Get(h2)
	assert.ErrorIs(t, err, ErrStaleHandle)
}
