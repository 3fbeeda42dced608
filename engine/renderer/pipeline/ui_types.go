package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/renderer/shader"
)

// UIDrawCommand is one indexed draw of a UIDrawList.
type UIDrawCommand struct {
	// ClipRect is min x, min y, max x, max y in display coordinates.
	ClipRect [4]float32
	// Texture is a texture loader handle; the zero handle samples the white fallback.
	Texture handle.Handle
	// ElemCount is the number of indices drawn.
	ElemCount uint32
	// IndexOffset is the first index inside the list.
	IndexOffset uint32
	// VertexOffset is added to every index inside the list.
	VertexOffset uint32
}

// UIDrawList is one layer of UI geometry with the commands drawing it.
type UIDrawList struct {
	Vertices []shader.SUIVertex
	Indices  []uint32
	Commands []UIDrawCommand
}

// UIDrawData is the UI geometry of one frame, as produced by an immediate-mode UI library.
type UIDrawData struct {
	// DisplayPos is the top left of the display in UI coordinates.
	DisplayPos [2]float32
	// DisplaySize is the size of the display in UI coordinates.
	DisplaySize [2]float32
	// FramebufferScale converts UI coordinates into framebuffer pixels.
	FramebufferScale [2]float32
	Lists            []UIDrawList
}

// Empty reports whether there is nothing to draw.
func (d *UIDrawData) Empty() bool {
	if d == nil || d.DisplaySize[0] <= 0 || d.DisplaySize[1] <= 0 {
		return true
	}
	for i := range d.Lists {
		if len(d.Lists[i].Indices) > 0 && len(d.Lists[i].Commands) > 0 {
			return false
		}
	}
	return true
}

// Totals returns the vertex and index counts over every list.
func (d *UIDrawData) Totals() (vertices, indices int) {
	for i := range d.Lists {
		vertices += len(d.Lists[i].Vertices)
		indices += len(d.Lists[i].Indices)
	}
	return vertices, indices
}

// Validate checks that every command stays inside its list's index and vertex ranges.
func (d *UIDrawData) Validate() error {
	for li := range d.Lists {
		l := &d.Lists[li]
		for ci, c := range l.Commands {
			if uint64(c.IndexOffset)+uint64(c.ElemCount) > uint64(len(l.Indices)) {
				return fmt.Errorf("ui list %d command %d: indices [%d, %d) outside %d", li, ci, c.IndexOffset, c.IndexOffset+c.ElemCount, len(l.Indices))
			}
			if c.ElemCount > 0 && int(c.VertexOffset) >= len(l.Vertices) {
				return fmt.Errorf("ui list %d command %d: vertex offset %d outside %d", li, ci, c.VertexOffset, len(l.Vertices))
			}
		}
	}
	return nil
}

// scale returns the framebuffer scale with unset components treated as 1.
func (d *UIDrawData) scale() [2]float32 {
	s := d.FramebufferScale
	for i := range s {
		if s[i] <= 0 {
			s[i] = 1
		}
	}
	return s
}
