package memory

import (
	"reflect"
	"unsafe"
)

// NewSlice reserves backing storage for n values of T from a.
// Pointer-free element types are carved directly out of the block's bytes. Element types
// holding Go pointers live in a regular Go slice so the garbage collector can see them, but
// their size is still charged to the allocator.
//
// Parameters:
//   - a: the allocator to charge
//   - n: the element count
//   - tag: debug tag for the block
//
// Returns:
//   - []T: a zeroed slice of length n
//   - Block: the block to hand back to a.Free
//   - error: ErrOutOfMemory from the allocator
func NewSlice[T any](a Allocator, n int, tag string) ([]T, Block, error) {
	var zero T
	elem := uint64(unsafe.Sizeof(zero))
	align := uint64(unsafe.Alignof(zero))
	b, err := a.Alloc(elem*uint64(n), align, tag)
	if err != nil {
		return nil, Block{}, err
	}
	if n == 0 {
		return []T{}, b, nil
	}
	if elem == 0 || hasPointers(reflect.TypeFor[T]()) {
		return make([]T, n), b, nil
	}
	data := b.Bytes()
	clear(data)
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n), b, nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
