package memory

import (
	"fmt"
)

type stackFrame struct {
	id     uint64
	prev   uint64
	offset uint64
}

// StackAllocator hands out blocks in LIFO order. Freeing any block but the most recent one panics.
type StackAllocator struct {
	arena  arena
	offset uint64
	frames []stackFrame
}

// NewStackAllocator creates a stack allocator over an arena of the given capacity.
//
// Parameters:
//   - capacity: arena size in bytes
//
// Returns:
//   - *StackAllocator: the allocator
func NewStackAllocator(capacity uint64) *StackAllocator {
	return &StackAllocator{arena: newArena(capacity)}
}

// Alloc implements Allocator.
func (s *StackAllocator) Alloc(size, align uint64, tag string) (Block, error) {
	align = checkAlign(align)
	start, ok := s.arena.place(s.offset, size, align)
	if !ok {
		return Block{}, fmt.Errorf("stack alloc %q of %d bytes: %w", tag, size, ErrOutOfMemory)
	}
	b := newBlock(s, start, size, tag, s.arena.slice(start, size))
	s.frames = append(s.frames, stackFrame{id: b.id, prev: s.offset, offset: start})
	s.offset = start + size
	return b, nil
}

// Free implements Allocator. Panics unless b is the top of the stack.
func (s *StackAllocator) Free(b Block) {
	checkOwner(s, b)
	if len(s.frames) == 0 {
		panic(fmt.Sprintf("memory: stack free of %q on an empty stack", b.Tag))
	}
	top := s.frames[len(s.frames)-1]
	if top.id != b.id {
		panic(fmt.Sprintf("memory: stack free of %q which is not the top block", b.Tag))
	}
	s.frames = s.frames[:len(s.frames)-1]
	clear(s.arena.buf[top.offset:s.offset])
	s.offset = top.prev
}

// Depth returns the number of live blocks.
func (s *StackAllocator) Depth() int {
	return len(s.frames)
}

// Reset implements Allocator.
func (s *StackAllocator) Reset() {
	clear(s.arena.buf[:s.offset])
	s.frames = s.frames[:0]
	s.offset = 0
}

// Used implements Allocator.
func (s *StackAllocator) Used() uint64 {
	return s.offset
}

// Capacity implements Allocator.
func (s *StackAllocator) Capacity() uint64 {
	return uint64(len(s.arena.buf))
}
