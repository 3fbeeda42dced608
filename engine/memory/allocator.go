// Package memory provides the allocator capability and the fixed-capacity containers built on it.
//
// Every container takes its backing storage from an Allocator. Three allocators are provided:
// a system allocator over the Go heap, a linear (arena) allocator with scoped reset and a
// stack allocator enforcing LIFO frees.
package memory

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrOutOfMemory is returned when an allocator cannot satisfy a request.
	ErrOutOfMemory = errors.New("memory: out of memory")
	// ErrFull is returned when a fixed-capacity container has no room left.
	ErrFull = errors.New("memory: container full")
)

var blockIDs atomic.Uint64

// Block is a region handed out by an Allocator.
type Block struct {
	// Offset is the start of the block inside the allocator's address space.
	Offset uint64
	// Size is the requested size in bytes.
	Size uint64
	// Tag is the debug tag given at allocation time.
	Tag string

	id    uint64
	owner Allocator
	data  []byte
}

// Bytes returns the memory backing the block. Empty for zero-sized blocks.
func (b Block) Bytes() []byte {
	return b.data
}

// Valid reports whether the block came from an allocator.
func (b Block) Valid() bool {
	return b.owner != nil
}

// Allocator is the generic alloc/free/reset capability with alignment used by every container.
type Allocator interface {
	// Alloc reserves size bytes aligned to align.
	//
	// Parameters:
	//   - size: number of bytes
	//   - align: required alignment, a power of two (0 and 1 mean unaligned)
	//   - tag: debug tag recorded with the block
	//
	// Returns:
	//   - Block: the reserved block
	//   - error: ErrOutOfMemory when the request does not fit
	Alloc(size, align uint64, tag string) (Block, error)

	// Free returns a block to the allocator. Freeing a block that belongs to a different
	// allocator panics.
	//
	// Parameters:
	//   - b: the block to free
	Free(b Block)

	// Reset releases every block at once.
	Reset()

	// Used returns the number of bytes currently reserved.
	Used() uint64

	// Capacity returns the total number of bytes the allocator can hand out.
	Capacity() uint64
}

func newBlock(owner Allocator, offset, size uint64, tag string, data []byte) Block {
	return Block{
		Offset: offset,
		Size:   size,
		Tag:    tag,
		id:     blockIDs.Add(1),
		owner:  owner,
		data:   data,
	}
}

func checkAlign(align uint64) uint64 {
	if align == 0 {
		return 1
	}
	if align&(align-1) != 0 {
		panic(fmt.Sprintf("memory: alignment %d is not a power of two", align))
	}
	return align
}

func checkOwner(a Allocator, b Block) {
	if b.owner != a {
		panic(fmt.Sprintf("memory: block %q (id %d) freed into an allocator that does not own it", b.Tag, b.id))
	}
}
