package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/loader"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// MeshSource resolves mesh handles. loader.MeshLoader implements it.
type MeshSource interface {
	Get(h handle.Handle) (*loader.Mesh, error)
}

// TextureSource resolves texture handles. loader.TextureLoader implements it.
type TextureSource interface {
	Get(h handle.Handle) (*loader.Texture, error)
	Fallback() handle.Handle
}

// SkinnedStreams looks up the skinned position and normal streams of an instance for the
// current frame.
type SkinnedStreams interface {
	// Streams returns the skinned positions (0) and normals (1) of the instance with the given
	// id, false when the instance was not skinned this frame.
	Streams(instanceID uint64) ([2]gpu.VertexBufferView, bool)
}

// Frame is the per-frame scene input shared by the geometry passes. Models and Transforms are
// parallel slices.
type Frame struct {
	View       common.Mat4
	Projection common.Mat4

	Models     []model.Instance
	Transforms []common.Mat4

	// Skinned is nil when no instance is animated.
	Skinned SkinnedStreams
}

// Validate checks that every model has a transform.
func (f *Frame) Validate() error {
	if len(f.Models) != len(f.Transforms) {
		return fmt.Errorf("pipeline: %d models with %d transforms", len(f.Models), len(f.Transforms))
	}
	return nil
}

// drawItem is one resolved instance draw.
type drawItem struct {
	index    int
	instance *model.Instance
	mesh     *loader.Mesh
	// streams are the positions, normals and uvs bound to slots 0 to 2
	streams [3]gpu.VertexBufferView
}

// collectDraws resolves the meshes of every model accepted by keep before anything is recorded,
// so a bad handle fails the pass without leaving a half-recorded list.
//
// Parameters:
//   - meshes: the mesh source
//   - f: the frame
//   - keep: reports whether an instance takes part in the pass
//
// Returns:
//   - []drawItem: the draws in model order
//   - error: the first unresolvable mesh handle
func collectDraws(meshes MeshSource, f *Frame, keep func(*model.Instance) bool) ([]drawItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	draws := make([]drawItem, 0, len(f.Models))
	for i := range f.Models {
		inst := &f.Models[i]
		if inst.Hidden || !keep(inst) {
			continue
		}
		mesh, err := meshes.Get(inst.Mesh)
		if err != nil {
			return nil, fmt.Errorf("instance %d mesh %v: %w", inst.ID, inst.Mesh, err)
		}
		d := drawItem{index: i, instance: inst, mesh: mesh, streams: mesh.VertexViews()}
		if mesh.Skinned() && f.Skinned != nil {
			if s, ok := f.Skinned.Streams(inst.ID); ok {
				d.streams[0], d.streams[1] = s[0], s[1]
			}
		}
		draws = append(draws, d)
	}
	return draws, nil
}

// drawMesh binds the first n streams and the index buffer of d and draws it.
func drawMesh(list *gpu.CommandList, d *drawItem, n int) {
	list.SetVertexBuffers(0, d.streams[:n]...)
	list.SetIndexBuffer(d.mesh.Indices.View())
	list.DrawIndexedInstanced(d.mesh.IndexCount, 1, 0, 0, 0)
}

// fullViewport returns the viewport and scissor covering a width by height target.
func fullViewport(width, height uint32) (gpu.Viewport, gpu.Rect) {
	return gpu.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1},
		gpu.Rect{Right: int32(width), Bottom: int32(height)}
}
