package gpu

import (
	"fmt"
	"sort"
)

// Allocation is a byte (or element) range handed out by a FreeListAllocator.
// It must be freed exactly once.
type Allocation struct {
	offset uint64
	size   uint64
	owner  *FreeListAllocator
	freed  bool
}

// Offset returns the start of the range.
func (a *Allocation) Offset() uint64 { return a.offset }

// Size returns the length of the range.
func (a *Allocation) Size() uint64 { return a.size }

// End returns the first offset past the range.
func (a *Allocation) End() uint64 { return a.offset + a.size }

// Freed reports whether the allocation has been returned.
func (a *Allocation) Freed() bool { return a.freed }

// Chunk is one free range of a FreeListAllocator.
type Chunk struct {
	Offset uint64
	Size   uint64
}

// End returns the first offset past the chunk.
func (c Chunk) End() uint64 { return c.Offset + c.Size }

// FreeListAllocator sub-allocates the range [0, total) with a first-fit search over an ordered
// list of free chunks. Adjacent free chunks are always merged.
type FreeListAllocator struct {
	total  uint64
	chunks []Chunk
	live   int
}

// NewFreeListAllocator creates an allocator managing [0, total).
//
// Parameters:
//   - total: the size of the managed range
//
// Returns:
//   - *FreeListAllocator: the allocator with one free chunk covering the range
func NewFreeListAllocator(total uint64) *FreeListAllocator {
	f := &FreeListAllocator{total: total}
	if total > 0 {
		f.chunks = []Chunk{{Offset: 0, Size: total}}
	}
	return f
}

// Alloc reserves size units starting at a multiple of align, from the first chunk that fits.
// The chosen chunk is split into the remainders before and after the allocation.
//
// Parameters:
//   - size: number of units, must be > 0
//   - align: required alignment of the start offset (0 and 1 mean unaligned)
//
// Returns:
//   - *Allocation: the reserved range
//   - error: ErrOutOfSpace when no chunk can hold the request
func (f *FreeListAllocator) Alloc(size, align uint64) (*Allocation, error) {
	if size == 0 {
		panic("gpu: free-list allocation of size 0")
	}
	if align == 0 {
		align = 1
	}
	for i, c := range f.chunks {
		start := (c.Offset + align - 1) / align * align
		if start < c.Offset || start+size > c.End() || start+size < start {
			continue
		}
		var repl []Chunk
		if before := start - c.Offset; before > 0 {
			repl = append(repl, Chunk{Offset: c.Offset, Size: before})
		}
		if after := c.End() - (start + size); after > 0 {
			repl = append(repl, Chunk{Offset: start + size, Size: after})
		}
		f.chunks = append(f.chunks[:i], append(repl, f.chunks[i+1:]...)...)
		f.live++
		return &Allocation{offset: start, size: size, owner: f}, nil
	}
	return nil, fmt.Errorf("free-list alloc of %d (align %d, free %d of %d): %w",
		size, align, f.FreeSpace(), f.total, ErrOutOfSpace)
}

// Free returns an allocation, merging it with the preceding and following chunks when they
// are contiguous. Freeing an allocation twice, or into another allocator, panics.
//
// Parameters:
//   - a: the allocation to return
func (f *FreeListAllocator) Free(a *Allocation) {
	if a == nil {
		panic("gpu: free of nil allocation")
	}
	if a.owner != f {
		panic("gpu: allocation freed into a free-list allocator that does not own it")
	}
	if a.freed {
		panic(fmt.Sprintf("gpu: allocation [%d, %d) freed twice", a.offset, a.End()))
	}
	a.freed = true
	f.live--

	i := sort.Search(len(f.chunks), func(i int) bool { return f.chunks[i].Offset > a.offset })
	mergePrev := i > 0 && f.chunks[i-1].End() == a.offset
	mergeNext := i < len(f.chunks) && a.End() == f.chunks[i].Offset

	switch {
	case mergePrev && mergeNext:
		f.chunks[i-1].Size += a.size + f.chunks[i].Size
		f.chunks = append(f.chunks[:i], f.chunks[i+1:]...)
	case mergePrev:
		f.chunks[i-1].Size += a.size
	case mergeNext:
		f.chunks[i].Offset = a.offset
		f.chunks[i].Size += a.size
	default:
		f.chunks = append(f.chunks, Chunk{})
		copy(f.chunks[i+1:], f.chunks[i:])
		f.chunks[i] = Chunk{Offset: a.offset, Size: a.size}
	}
}

// FreeSpace returns the sum of all free chunk sizes.
func (f *FreeListAllocator) FreeSpace() uint64 {
	var sum uint64
	for _, c := range f.chunks {
		sum += c.Size
	}
	return sum
}

// Chunks returns a copy of the free chunks ordered by offset.
func (f *FreeListAllocator) Chunks() []Chunk {
	return append([]Chunk(nil), f.chunks...)
}

// Total returns the size of the managed range.
func (f *FreeListAllocator) Total() uint64 { return f.total }

// Live returns the number of outstanding allocations.
func (f *FreeListAllocator) Live() int { return f.live }

// Release asserts that every allocation has been freed and the range is one free chunk.
func (f *FreeListAllocator) Release() {
	if f.total == 0 {
		return
	}
	if len(f.chunks) != 1 || f.chunks[0] != (Chunk{Offset: 0, Size: f.total}) {
		panic(fmt.Sprintf("gpu: free-list released with %d live allocations (chunks %v, total %d)",
			f.live, f.chunks, f.total))
	}
}
