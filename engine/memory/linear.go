package memory

import (
	"fmt"
)

// Marker captures the state of a LinearAllocator for a scoped reset with ResetTo.
type Marker struct {
	offset uint64
	held   int
}

// LinearAllocator is an append-only bump allocator over one byte arena.
// Free only decrements the held-allocation count; memory comes back through Reset or ResetTo.
// Every live block's tag is recorded and validated on free.
type LinearAllocator struct {
	arena  arena
	offset uint64
	held   int
	tags   map[uint64]string
}

// NewLinearAllocator creates a linear allocator over an arena of the given capacity.
//
// Parameters:
//   - capacity: arena size in bytes
//
// Returns:
//   - *LinearAllocator: the allocator
func NewLinearAllocator(capacity uint64) *LinearAllocator {
	return &LinearAllocator{
		arena: newArena(capacity),
		tags:  make(map[uint64]string),
	}
}

// Alloc implements Allocator.
func (l *LinearAllocator) Alloc(size, align uint64, tag string) (Block, error) {
	align = checkAlign(align)
	start, ok := l.arena.place(l.offset, size, align)
	if !ok {
		return Block{}, fmt.Errorf("linear alloc %q of %d bytes (used %d of %d): %w",
			tag, size, l.offset, l.Capacity(), ErrOutOfMemory)
	}
	l.offset = start + size
	l.held++
	b := newBlock(l, start, size, tag, l.arena.slice(start, size))
	l.tags[b.id] = tag
	return b, nil
}

// Free implements Allocator. The bytes are not reclaimed until Reset or ResetTo.
// Panics when the block belongs to another allocator, was already freed or its tag does not
// match the tag recorded at allocation.
func (l *LinearAllocator) Free(b Block) {
	checkOwner(l, b)
	tag, ok := l.tags[b.id]
	if !ok {
		panic(fmt.Sprintf("memory: linear block %q freed twice or after reset", b.Tag))
	}
	if tag != b.Tag {
		panic(fmt.Sprintf("memory: linear block tag mismatch: freed as %q, allocated as %q", b.Tag, tag))
	}
	delete(l.tags, b.id)
	l.held--
}

// Held returns the number of live blocks.
func (l *LinearAllocator) Held() int {
	return l.held
}

// Mark returns a marker for the current arena position.
func (l *LinearAllocator) Mark() Marker {
	return Marker{offset: l.offset, held: l.held}
}

// ResetTo rewinds the arena to a marker. Every block allocated after the marker must already
// be freed, otherwise ResetTo panics.
//
// Parameters:
//   - m: a marker previously returned by Mark
func (l *LinearAllocator) ResetTo(m Marker) {
	if m.offset > l.offset {
		panic("memory: ResetTo marker is ahead of the arena cursor")
	}
	if l.held != m.held {
		panic(fmt.Sprintf("memory: ResetTo with %d blocks still held past the marker", l.held-m.held))
	}
	clear(l.arena.buf[m.offset:l.offset])
	l.offset = m.offset
}

// Reset implements Allocator. Panics when any block is still held.
func (l *LinearAllocator) Reset() {
	if l.held != 0 {
		panic(fmt.Sprintf("memory: linear allocator reset with %d blocks still held", l.held))
	}
	clear(l.arena.buf[:l.offset])
	l.offset = 0
	clear(l.tags)
}

// Used implements Allocator.
func (l *LinearAllocator) Used() uint64 {
	return l.offset
}

// Capacity implements Allocator.
func (l *LinearAllocator) Capacity() uint64 {
	return uint64(len(l.arena.buf))
}
