// Package handle implements generational slot tables used as stable weak references into dense
// arrays: meshes, textures, entities, command lists and command allocators.
package handle

import (
	"errors"
	"fmt"
)

var (
	// ErrFull is returned by Alloc when every slot is in use.
	ErrFull = errors.New("handle: pool full")
	// ErrInvalidHandle is returned for the zero handle or an index outside the pool.
	ErrInvalidHandle = errors.New("handle: invalid handle")
	// ErrStaleHandle is returned when the slot has been freed (and possibly reused) since the
	// handle was issued.
	ErrStaleHandle = errors.New("handle: stale handle")
	// ErrEmpty is returned by StoragePool.Get for an allocated slot that holds no value yet.
	ErrEmpty = errors.New("handle: slot empty")
)

// Handle identifies a slot in a Pool. The zero Handle is never issued, so it serves as the
// "no handle" value.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero (invalid) handle.
func (h Handle) IsZero() bool {
	return h.Generation == 0
}

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(none)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index, h.Generation)
}
