package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/chewxy/math32"
)

// extractMeshes converts every triangle primitive of every mesh into one MeshData. Joint
// influences are kept only when skel is non-nil and are rewritten into skel's joint order.
//
// Parameters:
//   - skel: the skeleton primitives are skinned against, nil for a static import
//
// Returns:
//   - []model.MeshData: one entry per primitive
//   - error: the first malformed primitive
func (p *gltfParser) extractMeshes(skel *gltfSkeleton) ([]model.MeshData, error) {
	var out []model.MeshData
	for mi, mesh := range p.doc.Meshes {
		for pi := range mesh.Primitives {
			name := mesh.Name
			if name == "" {
				name = fmt.Sprintf("mesh_%d", mi)
			}
			if pi > 0 {
				name = fmt.Sprintf("%s_prim%d", name, pi)
			}
			data, err := p.extractPrimitive(&mesh.Primitives[pi], name, skel)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, *data)
		}
	}
	return out, nil
}

func (p *gltfParser) extractPrimitive(prim *gltfPrimitive, name string, skel *gltfSkeleton) (*model.MeshData, error) {
	if prim.Mode != nil && *prim.Mode != gltfModeTriangles {
		return nil, fmt.Errorf("%w: primitive mode %d, only triangles are supported", ErrInvalidGLTF, *prim.Mode)
	}
	pos, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("%w: primitive has no POSITION", ErrInvalidGLTF)
	}
	data := &model.MeshData{Name: name, MaterialIndex: -1}
	var err error
	if data.Positions, err = p.vec3s(pos); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	n := len(data.Positions)

	if prim.Indices != nil {
		if data.Indices, err = p.indices(*prim.Indices); err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	} else {
		data.Indices = make([]uint32, n)
		for i := range data.Indices {
			data.Indices[i] = uint32(i)
		}
	}

	if acc, ok := prim.Attributes["NORMAL"]; ok {
		if data.Normals, err = p.vec3s(acc); err != nil {
			return nil, fmt.Errorf("normals: %w", err)
		}
	} else {
		data.Normals = generateNormals(data.Positions, data.Indices)
	}

	if acc, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if data.UVs, err = p.vec2s(acc); err != nil {
			return nil, fmt.Errorf("uvs: %w", err)
		}
	} else {
		data.UVs = make([][2]float32, n)
	}

	jointsAcc, hasJoints := prim.Attributes["JOINTS_0"]
	weightsAcc, hasWeights := prim.Attributes["WEIGHTS_0"]
	if skel != nil && hasJoints && hasWeights {
		if data.Joints, err = p.joints(jointsAcc); err != nil {
			return nil, fmt.Errorf("joints: %w", err)
		}
		if data.Weights, err = p.vec4s(weightsAcc); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		if err := remapInfluences(data.Joints, data.Weights, skel.remap); err != nil {
			return nil, err
		}
	}

	if prim.Material != nil {
		data.MaterialIndex = *prim.Material
	}
	data.BoundingMin, data.BoundingMax = bounds(data.Positions)
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

// remapInfluences rewrites skin-order joint indices into skeleton order and renormalizes each
// vertex's weights to sum to one. Zero-weight slots are pointed at joint 0.
func remapInfluences(joints [][4]uint32, weights [][4]float32, remap []uint32) error {
	if len(joints) != len(weights) {
		return fmt.Errorf("%w: %d joint and %d weight entries", ErrInvalidGLTF, len(joints), len(weights))
	}
	for v := range joints {
		var sum float32
		for k := 0; k < 4; k++ {
			if weights[v][k] <= 0 {
				weights[v][k] = 0
				joints[v][k] = 0
				continue
			}
			j := joints[v][k]
			if int(j) >= len(remap) {
				return fmt.Errorf("%w: vertex %d references joint %d of %d", ErrInvalidGLTF, v, j, len(remap))
			}
			joints[v][k] = remap[j]
			sum += weights[v][k]
		}
		if sum == 0 {
			// unweighted vertices follow the root
			weights[v] = [4]float32{1, 0, 0, 0}
			continue
		}
		for k := range weights[v] {
			weights[v][k] /= sum
		}
	}
	return nil
}

// generateNormals computes smooth area-weighted vertex normals from the triangles. Vertices
// no triangle touches point up.
func generateNormals(positions [][3]float32, indices []uint32) [][3]float32 {
	normals := make([][3]float32, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		if int(a) >= len(positions) || int(b) >= len(positions) || int(c) >= len(positions) {
			continue
		}
		p0, p1, p2 := positions[a], positions[b], positions[c]
		e1 := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		e2 := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		face := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for _, v := range [3]uint32{a, b, c} {
			normals[v][0] += face[0]
			normals[v][1] += face[1]
			normals[v][2] += face[2]
		}
	}
	for i, nrm := range normals {
		l := math32.Sqrt(nrm[0]*nrm[0] + nrm[1]*nrm[1] + nrm[2]*nrm[2])
		if l < 1e-6 {
			normals[i] = [3]float32{0, 1, 0}
			continue
		}
		normals[i] = [3]float32{nrm[0] / l, nrm[1] / l, nrm[2] / l}
	}
	return normals
}

func bounds(positions [][3]float32) (lo, hi [3]float32) {
	if len(positions) == 0 {
		return lo, hi
	}
	lo, hi = positions[0], positions[0]
	for _, p := range positions[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], p[k])
			hi[k] = max(hi[k], p[k])
		}
	}
	return lo, hi
}
