package handle

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/memory"
)

type storageSlot[T any] struct {
	val T
	ok  bool
}

// StoragePool is a Pool whose slots may be logically empty between allocation and population.
type StoragePool[T any] struct {
	pool *Pool[storageSlot[T]]
}

// NewStoragePool creates a storage pool with capacity slots.
func NewStoragePool[T any](a memory.Allocator, capacity int) (*StoragePool[T], error) {
	p, err := NewPool[storageSlot[T]](a, capacity)
	if err != nil {
		return nil, err
	}
	return &StoragePool[T]{pool: p}, nil
}

// Alloc claims an empty slot. Populate it with InsertVal.
func (s *StoragePool[T]) Alloc() (Handle, error) {
	h, err := s.pool.Alloc()
	if err != nil {
		return Handle{}, err
	}
	*s.pool.GetUnchecked(h.Index) = storageSlot[T]{}
	return h, nil
}

// AllocVal claims a slot and populates it with v.
func (s *StoragePool[T]) AllocVal(v T) (Handle, error) {
	h, err := s.Alloc()
	if err != nil {
		return Handle{}, err
	}
	return h, s.InsertVal(h, v)
}

// InsertVal populates (or overwrites) the slot h refers to.
func (s *StoragePool[T]) InsertVal(h Handle, v T) error {
	slot, err := s.pool.Get(h)
	if err != nil {
		return err
	}
	slot.val, slot.ok = v, true
	return nil
}

// Get returns a pointer to the slot's value.
//
// Returns:
//   - *T: pointer into the pool's storage
//   - error: ErrInvalidHandle, ErrStaleHandle, or ErrEmpty for an unpopulated slot
func (s *StoragePool[T]) Get(h Handle) (*T, error) {
	slot, err := s.pool.Get(h)
	if err != nil {
		return nil, err
	}
	if !slot.ok {
		return nil, fmt.Errorf("%v: %w", h, ErrEmpty)
	}
	return &slot.val, nil
}

// Take removes the value from the slot, leaving it allocated but empty.
func (s *StoragePool[T]) Take(h Handle) (T, error) {
	var zero T
	slot, err := s.pool.Get(h)
	if err != nil {
		return zero, err
	}
	if !slot.ok {
		return zero, fmt.Errorf("%v: %w", h, ErrEmpty)
	}
	v := slot.val
	*slot = storageSlot[T]{}
	return v, nil
}

// Free releases the slot. Stale handles are ignored.
func (s *StoragePool[T]) Free(h Handle) bool {
	return s.pool.Free(h)
}

// Clear frees every live slot.
func (s *StoragePool[T]) Clear() {
	var live []Handle
	s.pool.Each(func(h Handle, _ *storageSlot[T]) bool {
		live = append(live, h)
		return true
	})
	for _, h := range live {
		s.pool.Free(h)
	}
}

// Each calls fn for every populated slot until fn returns false.
func (s *StoragePool[T]) Each(fn func(h Handle, v *T) bool) {
	s.pool.Each(func(h Handle, slot *storageSlot[T]) bool {
		if !slot.ok {
			return true
		}
		return fn(h, &slot.val)
	})
}

// Used returns the number of allocated slots, populated or not.
func (s *StoragePool[T]) Used() int { return s.pool.Used() }

// FreeCount returns the number of free slots.
func (s *StoragePool[T]) FreeCount() int { return s.pool.FreeCount() }

// Capacity returns the number of slots.
func (s *StoragePool[T]) Capacity() int { return s.pool.Capacity() }
