package memory

import (
	"fmt"
	"math"
	"sync"
)

// SystemAllocator hands out blocks from the Go heap. It is unbounded unless a limit is given.
type SystemAllocator struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
	live  map[uint64]uint64
}

// NewSystemAllocator creates a system allocator.
//
// Parameters:
//   - limit: the maximum number of live bytes, 0 for unbounded
//
// Returns:
//   - *SystemAllocator: the allocator
func NewSystemAllocator(limit uint64) *SystemAllocator {
	if limit == 0 {
		limit = math.MaxUint64
	}
	return &SystemAllocator{limit: limit, live: make(map[uint64]uint64)}
}

// Alloc implements Allocator.
func (s *SystemAllocator) Alloc(size, align uint64, tag string) (Block, error) {
	align = checkAlign(align)
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > s.limit-s.used {
		return Block{}, fmt.Errorf("system alloc %q of %d bytes: %w", tag, size, ErrOutOfMemory)
	}
	// Go heap allocations of 8+ bytes are 8-aligned; over-allocate for larger alignments.
	buf := alignedBytes(size, align)
	b := newBlock(s, 0, size, tag, buf)
	s.used += size
	s.live[b.id] = size
	return b, nil
}

// Free implements Allocator.
func (s *SystemAllocator) Free(b Block) {
	checkOwner(s, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.live[b.id]
	if !ok {
		panic(fmt.Sprintf("memory: double free of system block %q", b.Tag))
	}
	delete(s.live, b.id)
	s.used -= size
}

// Reset implements Allocator.
func (s *SystemAllocator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.live)
	s.used = 0
}

// Used implements Allocator.
func (s *SystemAllocator) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Capacity implements Allocator.
func (s *SystemAllocator) Capacity() uint64 {
	return s.limit
}
