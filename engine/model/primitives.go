package model

import "github.com/chewxy/math32"

// Cube returns an axis-aligned cube centered on the origin with one flat-shaded quad per face.
//
// Parameters:
//   - name: the mesh name
//   - half: half the edge length
//
// Returns:
//   - *MeshData: 24 vertices and 36 indices
func Cube(name string, half float32) *MeshData {
	m := &MeshData{Name: name, MaterialIndex: -1}
	// normal, then the u and v axes of each face
	faces := [6][3][3]float32{
		{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
		{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
		{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
		{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
		{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
		{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range faces {
		n, u, v := f[0], f[1], f[2]
		base := uint32(len(m.Positions))
		for _, c := range corners {
			var p [3]float32
			for k := range 3 {
				p[k] = (n[k] + c[0]*u[k] + c[1]*v[k]) * half
			}
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, n)
			m.UVs = append(m.UVs, [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	m.BoundingMin = [3]float32{-half, -half, -half}
	m.BoundingMax = [3]float32{half, half, half}
	return m
}

// Plane returns a square in the XZ plane facing +Y, centered on the origin.
//
// Parameters:
//   - name: the mesh name
//   - half: half the edge length
//
// Returns:
//   - *MeshData: 4 vertices and 6 indices
func Plane(name string, half float32) *MeshData {
	return &MeshData{
		Name:          name,
		Positions:     [][3]float32{{-half, 0, half}, {half, 0, half}, {half, 0, -half}, {-half, 0, -half}},
		Normals:       [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		UVs:           [][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}},
		Indices:       []uint32{0, 1, 2, 0, 2, 3},
		MaterialIndex: -1,
		BoundingMin:   [3]float32{-half, 0, -half},
		BoundingMax:   [3]float32{half, 0, half},
	}
}

// Sphere returns a UV sphere centered on the origin. Rings and segments are raised to 2 and 3.
//
// Parameters:
//   - name: the mesh name
//   - radius: the sphere radius
//   - rings: the number of latitude bands
//   - segments: the number of longitude bands
//
// Returns:
//   - *MeshData: (rings+1)*(segments+1) vertices
func Sphere(name string, radius float32, rings, segments int) *MeshData {
	rings, segments = max(rings, 2), max(segments, 3)
	m := &MeshData{Name: name, MaterialIndex: -1}
	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		sinPhi, cosPhi := math32.Sincos(v * math32.Pi)
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			sinTheta, cosTheta := math32.Sincos(u * 2 * math32.Pi)
			n := [3]float32{sinPhi * cosTheta, cosPhi, sinPhi * sinTheta}
			m.Positions = append(m.Positions, [3]float32{n[0] * radius, n[1] * radius, n[2] * radius})
			m.Normals = append(m.Normals, n)
			m.UVs = append(m.UVs, [2]float32{u, v})
		}
	}
	stride := uint32(segments + 1)
	for r := range uint32(rings) {
		for s := range uint32(segments) {
			a := r*stride + s
			b := a + stride
			m.Indices = append(m.Indices, a, a+1, b, a+1, b+1, b)
		}
	}
	m.BoundingMin = [3]float32{-radius, -radius, -radius}
	m.BoundingMax = [3]float32{radius, radius, radius}
	return m
}
