package memory

import (
	"unsafe"
)

// alignedBytes returns a zeroed byte slice of length size whose first byte is aligned to align.
func alignedBytes(size, align uint64) []byte {
	if size == 0 {
		return nil
	}
	words := make([]uint64, (size+align+7)/8)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	base := uintptr(unsafe.Pointer(&raw[0]))
	pad := (align - uint64(base)%align) % align
	return raw[pad : pad+size : pad+size]
}

// arena is a fixed byte region with 8-byte base alignment shared by the linear and stack allocators.
type arena struct {
	buf []byte
}

func newArena(capacity uint64) arena {
	return arena{buf: alignedBytes(capacity, 16)}
}

// place computes the aligned offset of a size-byte block placed at or after cursor.
func (a arena) place(cursor, size, align uint64) (uint64, bool) {
	base := uint64(0)
	if len(a.buf) > 0 {
		base = uint64(uintptr(unsafe.Pointer(&a.buf[0])))
	}
	addr := base + cursor
	start := cursor + (align-addr%align)%align
	if start+size > uint64(len(a.buf)) || start+size < start {
		return 0, false
	}
	return start, true
}

func (a arena) slice(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return a.buf[offset : offset+size : offset+size]
}
