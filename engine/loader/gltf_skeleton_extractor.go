package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/chewxy/math32"
)

// syntheticRootName names the joint inserted above a skin with more than one root.
const syntheticRootName = "__root"

// gltfSkeleton is an extracted skin with the mappings needed to rewrite vertex joints and
// animation targets.
type gltfSkeleton struct {
	skeleton *model.Skeleton

	// remap maps a joint index as stored in the skin to its index in skeleton.
	remap []uint32

	// nodeToJoint maps a glTF node index to its joint index in skeleton.
	nodeToJoint map[int]int32
}

// skinForMesh returns the skin of the first node instancing meshIndex, or -1.
func (p *gltfParser) skinForMesh(meshIndex int) int {
	for _, n := range p.doc.Nodes {
		if n.Mesh != nil && *n.Mesh == meshIndex && n.Skin != nil {
			return *n.Skin
		}
	}
	return -1
}

// parents returns the parent node of every node, -1 for scene roots.
func (p *gltfParser) parents() []int {
	parent := make([]int, len(p.doc.Nodes))
	for i := range parent {
		parent[i] = -1
	}
	for i, n := range p.doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(parent) {
				parent[c] = i
			}
		}
	}
	return parent
}

// extractSkeleton converts a skin into a skeleton with one root at index 0 and every parent
// before its children. Joints are ordered breadth first from the root. A skin with several
// roots gets a synthetic identity root above them. The transforms of non-joint ancestors of a
// root joint are folded into that root's local transform.
//
// Parameters:
//   - skinIndex: the skin to extract
//
// Returns:
//   - *gltfSkeleton: the skeleton and its index mappings
//   - error: a malformed skin
func (p *gltfParser) extractSkeleton(skinIndex int) (*gltfSkeleton, error) {
	if skinIndex < 0 || skinIndex >= len(p.doc.Skins) {
		return nil, fmt.Errorf("%w: skin %d", ErrInvalidGLTF, skinIndex)
	}
	skin := p.doc.Skins[skinIndex]
	if len(skin.Joints) == 0 {
		return nil, fmt.Errorf("%w: skin %d has no joints", ErrInvalidGLTF, skinIndex)
	}
	var inverseBinds [][16]float32
	if skin.InverseBindMatrices != nil {
		var err error
		if inverseBinds, err = p.mat4s(*skin.InverseBindMatrices); err != nil {
			return nil, fmt.Errorf("skin %d inverse bind matrices: %w", skinIndex, err)
		}
	}

	nodeToSkin := make(map[int]int, len(skin.Joints))
	for i, n := range skin.Joints {
		if n < 0 || n >= len(p.doc.Nodes) {
			return nil, fmt.Errorf("%w: skin %d joint %d is node %d", ErrInvalidGLTF, skinIndex, i, n)
		}
		nodeToSkin[n] = i
	}
	nodeParent := p.parents()

	// parent of each skin joint in skin order, -1 for roots; walks past non-joint nodes
	skinParent := make([]int, len(skin.Joints))
	var roots []int
	for i, n := range skin.Joints {
		skinParent[i] = -1
		for a := nodeParent[n]; a >= 0; a = nodeParent[a] {
			if j, ok := nodeToSkin[a]; ok {
				skinParent[i] = j
				break
			}
		}
		if skinParent[i] < 0 {
			roots = append(roots, i)
		}
	}
	children := make([][]int, len(skin.Joints))
	for i, par := range skinParent {
		if par >= 0 {
			children[par] = append(children[par], i)
		}
	}

	order := make([]int, 0, len(skin.Joints))
	queue := append([]int(nil), roots...)
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		order = append(order, j)
		queue = append(queue, children[j]...)
	}
	if len(order) != len(skin.Joints) {
		return nil, fmt.Errorf("%w: skin %d joint hierarchy has a cycle", ErrInvalidGLTF, skinIndex)
	}

	offset := 0
	skel := &model.Skeleton{JointNameToIndex: make(map[string]int32, len(order)+1)}
	if len(roots) > 1 {
		offset = 1
		skel.Joints = append(skel.Joints, model.Joint{
			Name:        syntheticRootName,
			Parent:      model.NoParent,
			InverseBind: common.IdentityMat4(),
			Local:       model.IdentityTransform(),
		})
		skel.JointNameToIndex[syntheticRootName] = 0
	}

	out := &gltfSkeleton{skeleton: skel, remap: make([]uint32, len(skin.Joints)), nodeToJoint: make(map[int]int32, len(order))}
	for newIdx, j := range order {
		out.remap[j] = uint32(newIdx + offset)
	}
	for _, j := range order {
		node := skin.Joints[j]
		joint := model.Joint{
			Name:        p.doc.Nodes[node].Name,
			Parent:      model.NoParent,
			InverseBind: common.IdentityMat4(),
			Local:       nodeTransform(&p.doc.Nodes[node]),
		}
		if joint.Name == "" {
			joint.Name = fmt.Sprintf("joint_%d", j)
		}
		if j < len(inverseBinds) {
			joint.InverseBind = inverseBinds[j]
		}
		switch {
		case skinParent[j] >= 0:
			joint.Parent = int32(out.remap[skinParent[j]])
		default:
			if offset == 1 {
				joint.Parent = 0
			}
			joint.Local = decomposeMatrix(p.ancestorMatrix(nodeParent, node).Mul(joint.Local.Matrix()))
		}
		idx := int32(len(skel.Joints))
		skel.Joints = append(skel.Joints, joint)
		skel.JointNameToIndex[joint.Name] = idx
		out.nodeToJoint[node] = idx
	}
	if err := skel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: skin %d: %w", ErrInvalidGLTF, skinIndex, err)
	}
	return out, nil
}

// ancestorMatrix composes the transforms of every ancestor of node, root first.
func (p *gltfParser) ancestorMatrix(parent []int, node int) common.Mat4 {
	m := common.IdentityMat4()
	for a := parent[node]; a >= 0; a = parent[a] {
		m = nodeTransform(&p.doc.Nodes[a]).Matrix().Mul(m)
	}
	return m
}

// nodeTransform returns the local transform of a node, decomposing its matrix when it has one.
func nodeTransform(n *gltfNode) model.Transform {
	if n.Matrix != nil {
		return decomposeMatrix(*n.Matrix)
	}
	t := model.IdentityTransform()
	if n.Translation != nil {
		t.Translation = *n.Translation
	}
	if n.Rotation != nil {
		t.Rotation = *n.Rotation
	}
	if n.Scale != nil {
		t.Scale = *n.Scale
	}
	return t
}

// decomposeMatrix splits a column-major matrix without shear into translation, rotation and
// scale.
func decomposeMatrix(m common.Mat4) model.Transform {
	t := model.Transform{Translation: [3]float32{m[12], m[13], m[14]}}
	for c := 0; c < 3; c++ {
		t.Scale[c] = math32.Sqrt(m[c*4]*m[c*4] + m[c*4+1]*m[c*4+1] + m[c*4+2]*m[c*4+2])
	}
	var r [3][3]float32 // r[col][row]
	for c := 0; c < 3; c++ {
		s := t.Scale[c]
		if s < 1e-6 {
			s = 1
		}
		for row := 0; row < 3; row++ {
			r[c][row] = m[c*4+row] / s
		}
	}

	var q [4]float32
	trace := r[0][0] + r[1][1] + r[2][2]
	switch {
	case trace > 0:
		s := math32.Sqrt(trace+1) * 2
		q = [4]float32{(r[1][2] - r[2][1]) / s, (r[2][0] - r[0][2]) / s, (r[0][1] - r[1][0]) / s, s / 4}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math32.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = [4]float32{s / 4, (r[1][0] + r[0][1]) / s, (r[2][0] + r[0][2]) / s, (r[1][2] - r[2][1]) / s}
	case r[1][1] > r[2][2]:
		s := math32.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = [4]float32{(r[1][0] + r[0][1]) / s, s / 4, (r[2][1] + r[1][2]) / s, (r[2][0] - r[0][2]) / s}
	default:
		s := math32.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = [4]float32{(r[2][0] + r[0][2]) / s, (r[2][1] + r[1][2]) / s, s / 4, (r[0][1] - r[1][0]) / s}
	}
	if l := math32.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3]); l > 1e-6 {
		for i := range q {
			q[i] /= l
		}
	}
	t.Rotation = q
	return t
}
