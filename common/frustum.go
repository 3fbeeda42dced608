package common

import (
	"github.com/chewxy/math32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a column-major view-projection matrix using the
// Gribb/Hartmann method, adjusted for the [0, 1] clip depth range (near plane is row 2 alone).
//
// Parameters:
//   - viewProj: the combined projection * view matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj Mat4) Frustum {
	// M[row][col] is viewProj[col*4+row]
	row := func(r int) [4]float32 {
		return [4]float32{viewProj[r], viewProj[4+r], viewProj[8+r], viewProj[12+r]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	combos := [6][4]float32{}
	for i := 0; i < 4; i++ {
		combos[FrustumLeft][i] = r3[i] + r0[i]
		combos[FrustumRight][i] = r3[i] - r0[i]
		combos[FrustumBottom][i] = r3[i] + r1[i]
		combos[FrustumTop][i] = r3[i] - r1[i]
		combos[FrustumNear][i] = r2[i]
		combos[FrustumFar][i] = r3[i] - r2[i]
	}

	var f Frustum
	for i, c := range combos {
		p := Plane{Normal: Vec3{c[0], c[1], c[2]}, Distance: c[3]}
		length := math32.Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2])
		if length > 0 {
			inv := 1 / length
			p.Normal[0] *= inv
			p.Normal[1] *= inv
			p.Normal[2] *= inv
			p.Distance *= inv
		}
		f.Planes[i] = p
	}
	return f
}

// IntersectsSphere reports whether a sphere is at least partially inside the frustum.
//
// Parameters:
//   - center: sphere center in the same space the frustum was extracted in
//   - radius: sphere radius
//
// Returns:
//   - bool: false only when the sphere is entirely outside one plane
func (f *Frustum) IntersectsSphere(center Vec3, radius float32) bool {
	for _, p := range f.Planes {
		d := p.Normal[0]*center[0] + p.Normal[1]*center[1] + p.Normal[2]*center[2] + p.Distance
		if d < -radius {
			return false
		}
	}
	return true
}
