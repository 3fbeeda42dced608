package memory

import (
	"fmt"
)

// VecOption configures a Vec.
type VecOption func(*vecConfig)

type vecConfig struct {
	grow bool
	tag  string
}

// WithGrow lets the Vec double its capacity when full instead of returning ErrFull.
func WithGrow() VecOption {
	return func(c *vecConfig) {
		c.grow = true
	}
}

// WithTag sets the debug tag used for the Vec's blocks.
func WithTag(tag string) VecOption {
	return func(c *vecConfig) {
		c.tag = tag
	}
}

// Vec is a contiguous container with a fixed capacity unless WithGrow is configured.
// Removed slots are zeroed so they do not retain references.
type Vec[T any] struct {
	alloc Allocator
	block Block
	data  []T
	n     int
	cfg   vecConfig
}

// NewVec creates a Vec with the given capacity backed by a.
//
// Parameters:
//   - a: the allocator providing storage
//   - capacity: the initial capacity
//   - opts: optional VecOption values
//
// Returns:
//   - *Vec[T]: the vector
//   - error: ErrOutOfMemory from the allocator
func NewVec[T any](a Allocator, capacity int, opts ...VecOption) (*Vec[T], error) {
	v := &Vec[T]{alloc: a, cfg: vecConfig{tag: "vec"}}
	for _, opt := range opts {
		opt(&v.cfg)
	}
	data, b, err := NewSlice[T](a, capacity, v.cfg.tag)
	if err != nil {
		return nil, err
	}
	v.data, v.block = data, b
	return v, nil
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.n }

// Cap returns the current capacity.
func (v *Vec[T]) Cap() int { return len(v.data) }

// Slice returns the live elements. The slice aliases the Vec's storage.
func (v *Vec[T]) Slice() []T { return v.data[:v.n] }

// At returns the element at i. Panics when i is out of range.
func (v *Vec[T]) At(i int) T {
	v.check(i)
	return v.data[i]
}

// Ptr returns a pointer to the element at i. Panics when i is out of range.
func (v *Vec[T]) Ptr(i int) *T {
	v.check(i)
	return &v.data[i]
}

// Set replaces the element at i. Panics when i is out of range.
func (v *Vec[T]) Set(i int, val T) {
	v.check(i)
	v.data[i] = val
}

// Push appends val.
//
// Returns:
//   - error: ErrFull when at capacity without WithGrow
func (v *Vec[T]) Push(val T) error {
	if err := v.reserve(1); err != nil {
		return err
	}
	v.data[v.n] = val
	v.n++
	return nil
}

// Pop removes and returns the last element.
func (v *Vec[T]) Pop() (T, bool) {
	var zero T
	if v.n == 0 {
		return zero, false
	}
	v.n--
	val := v.data[v.n]
	v.data[v.n] = zero
	return val, true
}

// Insert places val at index i, shifting later elements up.
func (v *Vec[T]) Insert(i int, val T) error {
	if i < 0 || i > v.n {
		panic(fmt.Sprintf("memory: Vec insert index %d out of range [0, %d]", i, v.n))
	}
	if err := v.reserve(1); err != nil {
		return err
	}
	copy(v.data[i+1:v.n+1], v.data[i:v.n])
	v.data[i] = val
	v.n++
	return nil
}

// Remove deletes the element at i preserving order and returns it.
func (v *Vec[T]) Remove(i int) T {
	v.check(i)
	val := v.data[i]
	copy(v.data[i:v.n-1], v.data[i+1:v.n])
	v.n--
	var zero T
	v.data[v.n] = zero
	return val
}

// SwapRemove deletes the element at i by moving the last element into its slot.
func (v *Vec[T]) SwapRemove(i int) T {
	v.check(i)
	val := v.data[i]
	v.n--
	v.data[i] = v.data[v.n]
	var zero T
	v.data[v.n] = zero
	return val
}

// Clear removes every element, keeping the capacity.
func (v *Vec[T]) Clear() {
	clear(v.data[:v.n])
	v.n = 0
}

// Release hands the storage back to the allocator. The Vec must not be used afterwards.
func (v *Vec[T]) Release() {
	if v.block.Valid() {
		v.alloc.Free(v.block)
	}
	v.data, v.n, v.block = nil, 0, Block{}
}

func (v *Vec[T]) check(i int) {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("memory: Vec index %d out of range [0, %d)", i, v.n))
	}
}

func (v *Vec[T]) reserve(extra int) error {
	if v.n+extra <= len(v.data) {
		return nil
	}
	if !v.cfg.grow {
		return fmt.Errorf("vec %q push at capacity %d: %w", v.cfg.tag, len(v.data), ErrFull)
	}
	newCap := max(len(v.data)*2, v.n+extra, 4)
	data, b, err := NewSlice[T](v.alloc, newCap, v.cfg.tag)
	if err != nil {
		return err
	}
	copy(data, v.data[:v.n])
	if v.block.Valid() {
		v.alloc.Free(v.block)
	}
	v.data, v.block = data, b
	return nil
}
