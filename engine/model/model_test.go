package model

import (
	"testing"

	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkeletonValidate(t *testing.T) {
	tests := []struct {
		name    string
		parents []int32
		wantErr string
	}{
		{"single root", []int32{NoParent}, ""},
		{"chain", []int32{NoParent, 0, 1, 2}, ""},
		{"fan", []int32{NoParent, 0, 0, 1, 1}, ""},
		{"empty", nil, "no joints"},
		{"root not first", []int32{1, NoParent}, "must be the root"},
		{"second root", []int32{NoParent, 0, NoParent}, "second root"},
		{"child before parent", []int32{NoParent, 2, 0}, "does not precede"},
		{"self parent", []int32{NoParent, 1}, "does not precede"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Skeleton{}
			for _, p := range tt.parents {
				s.Joints = append(s.Joints, Joint{Parent: p, Local: IdentityTransform()})
			}
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func triangle() MeshData {
	return MeshData{
		Name:      "tri",
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 2, 0}},
		Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Indices:   []uint32{0, 1, 2},
	}
}

func TestMeshDataValidate(t *testing.T) {
	m := triangle()
	require.NoError(t, m.Validate())
	assert.False(t, m.Skinned())
	assert.InDelta(t, 2, m.BoundingRadius(), 1e-6)

	bad := triangle()
	bad.Indices = []uint32{0, 1, 3}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh)

	bad = triangle()
	bad.Normals = bad.Normals[:2]
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh)

	bad = triangle()
	bad.Joints = [][4]uint32{{0}, {0}, {0}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMesh, "weights missing")

	bad.Weights = [][4]float32{{1}, {1}, {1}}
	assert.NoError(t, bad.Validate())
	assert.True(t, bad.Skinned())
}

func TestNewInstanceDefaults(t *testing.T) {
	mesh := handle.Handle{Index: 3, Generation: 1}
	inst := NewInstance(7, mesh)
	assert.Equal(t, uint64(7), inst.ID)
	assert.True(t, inst.CastsShadow)
	assert.True(t, inst.ReceivesShadow)
	assert.False(t, inst.Textured())

	inst = NewInstance(8, mesh, WithTexture(handle.Handle{Index: 1, Generation: 1}), WithCastsShadow(false), WithBaseColor([4]float32{1, 0, 0, 1}))
	assert.True(t, inst.Textured())
	assert.False(t, inst.CastsShadow)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, inst.BaseColor)
}

func TestTransformMatrix(t *testing.T) {
	tr := IdentityTransform()
	tr.Translation = [3]float32{1, 2, 3}
	m := tr.Matrix()
	assert.Equal(t, float32(1), m[12])
	assert.Equal(t, float32(2), m[13])
	assert.Equal(t, float32(3), m[14])
	assert.Equal(t, float32(1), m[0])
}

func TestPrimitivesAreValidAndFaceOutwards(t *testing.T) {
	for _, m := range []*MeshData{Cube("cube", 0.5), Plane("plane", 2), Sphere("sphere", 1, 8, 12)} {
		t.Run(m.Name, func(t *testing.T) {
			require.NoError(t, m.Validate())
			require.Zero(t, len(m.Indices)%3)
			for i := 0; i < len(m.Indices); i += 3 {
				a, b, c := m.Positions[m.Indices[i]], m.Positions[m.Indices[i+1]], m.Positions[m.Indices[i+2]]
				e1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
				e2 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
				n := [3]float32{e1[1]*e2[2] - e1[2]*e2[1], e1[2]*e2[0] - e1[0]*e2[2], e1[0]*e2[1] - e1[1]*e2[0]}
				if n[0]*n[0]+n[1]*n[1]+n[2]*n[2] < 1e-10 {
					continue // degenerate triangles at the sphere poles
				}
				var vn [3]float32
				for k := range 3 {
					nk := m.Normals[m.Indices[i+k]]
					vn = [3]float32{vn[0] + nk[0], vn[1] + nk[1], vn[2] + nk[2]}
				}
				assert.Positive(t, n[0]*vn[0]+n[1]*vn[1]+n[2]*vn[2], "triangle %d winds counter-clockwise seen from outside", i/3)
			}
		})
	}
}

func TestCubeBounds(t *testing.T) {
	m := Cube("cube", 2)
	assert.Len(t, m.Positions, 24)
	assert.Len(t, m.Indices, 36)
	assert.Equal(t, [3]float32{-2, -2, -2}, m.BoundingMin)
	assert.Equal(t, [3]float32{2, 2, 2}, m.BoundingMax)
	for _, p := range m.Positions {
		for _, v := range p {
			assert.InDelta(t, 2, max(v, -v), 1e-6)
		}
	}
}
