package model

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/chewxy/math32"
)

// ErrInvalidMesh is returned when mesh data is inconsistent.
var ErrInvalidMesh = errors.New("model: invalid mesh data")

// --- Transform & Skeleton Types ---

// Transform represents a decomposed transform for animation interpolation.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation [4]float32

	// Scale is the scale factor along each axis.
	Scale [3]float32
}

// IdentityTransform returns a transform with no translation, no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
}

// Matrix composes the transform into a column-major matrix (T * R * S).
func (t Transform) Matrix() common.Mat4 {
	return common.ComposeTRS(t.Translation, t.Rotation, t.Scale)
}

// NoParent is the parent index of the root joint.
const NoParent int32 = -1

// Joint is one node of a skin's joint hierarchy.
type Joint struct {
	// Name is the joint's identifier (for debugging and animation targeting).
	Name string

	// Parent is the index of the parent joint, NoParent for the root. Parents always precede
	// their children.
	Parent int32

	// InverseBind transforms from model space to joint space at bind pose.
	InverseBind common.Mat4

	// Local is the joint's bind-pose transform relative to its parent. Animation channels
	// override it per frame.
	Local Transform
}

// Skeleton is a joint hierarchy ordered so that a single forward pass composes every
// joint-to-model transform.
type Skeleton struct {
	// Joints is the array of all joints, root first.
	Joints []Joint

	// JointNameToIndex maps joint names to their indices for quick lookup.
	JointNameToIndex map[string]int32
}

// Validate checks the ordering the skinning pass relies on: exactly one root, at index 0, and
// every other joint's parent precedes it.
//
// Returns:
//   - error: a description of the first violation
func (s *Skeleton) Validate() error {
	if len(s.Joints) == 0 {
		return errors.New("skeleton has no joints")
	}
	if p := s.Joints[0].Parent; p != NoParent {
		return fmt.Errorf("joint 0 (%q) must be the root, has parent %d", s.Joints[0].Name, p)
	}
	for i := 1; i < len(s.Joints); i++ {
		p := s.Joints[i].Parent
		if p == NoParent {
			return fmt.Errorf("joint %d (%q) is a second root", i, s.Joints[i].Name)
		}
		if p < 0 || int(p) >= i {
			return fmt.Errorf("joint %d (%q) has parent %d, which does not precede it", i, s.Joints[i].Name, p)
		}
	}
	return nil
}

// JointCount returns the number of joints.
func (s *Skeleton) JointCount() int {
	if s == nil {
		return 0
	}
	return len(s.Joints)
}

// BindPose returns the bind-pose local transform of every joint.
func (s *Skeleton) BindPose() []Transform {
	out := make([]Transform, len(s.Joints))
	for i, j := range s.Joints {
		out[i] = j.Local
	}
	return out
}

// --- Animation Types ---

// AnimationClip represents a single animation (walk, run, attack, etc.).
type AnimationClip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the total length of the animation in seconds.
	Duration float32

	// Channels contains animation data for each animated joint.
	Channels []AnimationChannel
}

// AnimationChannel contains keyframe data for a single joint.
type AnimationChannel struct {
	// JointIndex is the index of the joint this channel animates.
	JointIndex int32

	// PositionKeys are keyframes for translation.
	PositionKeys []VectorKeyframe

	// RotationKeys are keyframes for rotation (quaternion).
	RotationKeys []QuaternionKeyframe

	// ScaleKeys are keyframes for scale.
	ScaleKeys []VectorKeyframe
}

// VectorKeyframe stores a 3D vector value at a specific time.
type VectorKeyframe struct {
	Time  float32
	Value [3]float32
}

// QuaternionKeyframe stores a quaternion rotation (x, y, z, w) at a specific time.
type QuaternionKeyframe struct {
	Time  float32
	Value [4]float32
}

// --- Import Types ---

// MeshData is the flat geometry of one mesh as produced by an importer. Every per-vertex
// slice has the same length; Joints and Weights are empty for static meshes.
type MeshData struct {
	Name      string
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Indices   []uint32

	// Joints and Weights are the four joint influences of each vertex.
	Joints  [][4]uint32
	Weights [][4]float32

	// MaterialIndex references ImportedModel.Materials, -1 for none.
	MaterialIndex int

	BoundingMin [3]float32
	BoundingMax [3]float32
}

// Skinned reports whether the mesh carries joint influences.
func (m *MeshData) Skinned() bool {
	return len(m.Joints) > 0
}

// VertexCount returns the number of vertices.
func (m *MeshData) VertexCount() int {
	return len(m.Positions)
}

// Validate checks that every stream has one entry per vertex and every index is in range.
//
// Returns:
//   - error: an ErrInvalidMesh wrapped description of the first problem
func (m *MeshData) Validate() error {
	n := len(m.Positions)
	if n == 0 {
		return fmt.Errorf("mesh %q has no vertices: %w", m.Name, ErrInvalidMesh)
	}
	if len(m.Normals) != n || len(m.UVs) != n {
		return fmt.Errorf("mesh %q: %d positions, %d normals, %d uvs: %w", m.Name, n, len(m.Normals), len(m.UVs), ErrInvalidMesh)
	}
	if len(m.Joints) != len(m.Weights) || (len(m.Joints) != 0 && len(m.Joints) != n) {
		return fmt.Errorf("mesh %q: %d joint and %d weight entries for %d vertices: %w", m.Name, len(m.Joints), len(m.Weights), n, ErrInvalidMesh)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: %d indices is not a triangle list: %w", m.Name, len(m.Indices), ErrInvalidMesh)
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("mesh %q: index %d at %d out of range: %w", m.Name, idx, i, ErrInvalidMesh)
		}
	}
	return nil
}

// BoundingRadius returns the maximum distance of any vertex from the origin.
func (m *MeshData) BoundingRadius() float32 {
	var maxDistSq float32
	for _, p := range m.Positions {
		d := p[0]*p[0] + p[1]*p[1] + p[2]*p[2]
		if d > maxDistSq {
			maxDistSq = d
		}
	}
	return math32.Sqrt(maxDistSq)
}

// Material is the subset of an imported material the world pass shades with.
type Material struct {
	Name string

	// BaseColor multiplies the sampled texture.
	BaseColor [4]float32

	// BaseColorTexture is the diffuse texture, nil for untextured materials.
	BaseColorTexture *common.TextureSource
}

// ImportedModel represents a 3D model loaded from an external format.
// This is the universal format that importers produce.
type ImportedModel struct {
	// Name is the model identifier.
	Name string

	// Meshes contains all mesh data (may have multiple meshes/submeshes).
	Meshes []MeshData

	// Skeleton is the joint hierarchy (nil for static models).
	Skeleton *Skeleton

	// Animations are all animation clips bundled with the model.
	Animations []*AnimationClip

	// Materials are referenced by MeshData.MaterialIndex.
	Materials []Material
}

// AnimationIndex returns the index of an animation by name, or -1 if not found.
func (m *ImportedModel) AnimationIndex(name string) int {
	for i, a := range m.Animations {
		if a.Name == name {
			return i
		}
	}
	return -1
}
