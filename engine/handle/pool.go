package handle

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/srender/engine/memory"
)

// Pool is a fixed-capacity dense array of T addressed by generational handles.
// Freed indices are recycled in FIFO order. Used() + FreeCount() == Capacity() always holds.
type Pool[T any] struct {
	items       []T
	generations []uint32
	live        []bool
	free        *memory.Queue[uint32]
}

// NewPool creates a pool with capacity slots. Storage is charged to a.
//
// Parameters:
//   - a: the allocator backing the slot arrays
//   - capacity: number of slots
//
// Returns:
//   - *Pool[T]: the pool
//   - error: memory.ErrOutOfMemory from the allocator
func NewPool[T any](a memory.Allocator, capacity int) (*Pool[T], error) {
	items, _, err := memory.NewSlice[T](a, capacity, "pool.items")
	if err != nil {
		return nil, err
	}
	gens, _, err := memory.NewSlice[uint32](a, capacity, "pool.generations")
	if err != nil {
		return nil, err
	}
	live, _, err := memory.NewSlice[bool](a, capacity, "pool.live")
	if err != nil {
		return nil, err
	}
	free, err := memory.NewQueue[uint32](a, capacity, "pool.free")
	if err != nil {
		return nil, err
	}
	for i := range gens {
		gens[i] = 1
		_ = free.Push(uint32(i))
	}
	return &Pool[T]{items: items, generations: gens, live: live, free: free}, nil
}

// Alloc claims a free slot. The slot holds the zero value of T.
//
// Returns:
//   - Handle: the handle to the slot
//   - error: ErrFull when no slot is free
func (p *Pool[T]) Alloc() (Handle, error) {
	idx, ok := p.free.Pop()
	if !ok {
		return Handle{}, fmt.Errorf("alloc from pool of %d: %w", len(p.items), ErrFull)
	}
	p.live[idx] = true
	return Handle{Index: idx, Generation: p.generations[idx]}, nil
}

// Free releases the slot h refers to and bumps its generation. Freeing a stale or zero handle
// is a no-op.
//
// Parameters:
//   - h: the handle to release
//
// Returns:
//   - bool: true when a slot was released
func (p *Pool[T]) Free(h Handle) bool {
	if p.check(h) != nil {
		return false
	}
	if p.generations[h.Index] == math.MaxUint32 {
		panic(fmt.Sprintf("handle: generation space exhausted for slot %d", h.Index))
	}
	p.generations[h.Index]++
	p.live[h.Index] = false
	var zero T
	p.items[h.Index] = zero
	_ = p.free.Push(h.Index)
	return true
}

// Get returns a pointer to the slot's value.
//
// Returns:
//   - *T: pointer into the pool's storage
//   - error: ErrInvalidHandle or ErrStaleHandle
func (p *Pool[T]) Get(h Handle) (*T, error) {
	if err := p.check(h); err != nil {
		return nil, err
	}
	return &p.items[h.Index], nil
}

// MustGet is Get for call sites where the handle's validity is an invariant. Panics on error.
func (p *Pool[T]) MustGet(h Handle) *T {
	v, err := p.Get(h)
	if err != nil {
		panic(fmt.Sprintf("handle: %v: %v", h, err))
	}
	return v
}

// GetUnchecked returns the value at index without generation checks, for hot loops where
// validity is established by the loop bounds.
func (p *Pool[T]) GetUnchecked(index uint32) *T {
	return &p.items[index]
}

// Valid reports whether h refers to a live slot.
func (p *Pool[T]) Valid(h Handle) bool {
	return p.check(h) == nil
}

// Used returns the number of allocated slots.
func (p *Pool[T]) Used() int { return len(p.items) - p.free.Len() }

// FreeCount returns the number of free slots.
func (p *Pool[T]) FreeCount() int { return p.free.Len() }

// Capacity returns the number of slots.
func (p *Pool[T]) Capacity() int { return len(p.items) }

// Each calls fn for every live slot in index order until fn returns false.
func (p *Pool[T]) Each(fn func(h Handle, v *T) bool) {
	for i := range p.items {
		if !p.live[i] {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: p.generations[i]}, &p.items[i]) {
			return
		}
	}
}

func (p *Pool[T]) check(h Handle) error {
	if h.IsZero() || int(h.Index) >= len(p.items) {
		return fmt.Errorf("%v: %w", h, ErrInvalidHandle)
	}
	if p.generations[h.Index] != h.Generation || !p.live[h.Index] {
		return fmt.Errorf("%v (slot generation %d): %w", h, p.generations[h.Index], ErrStaleHandle)
	}
	return nil
}
