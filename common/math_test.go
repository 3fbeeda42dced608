package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMatNear(t *testing.T, want, got Mat4) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "element %d", i)
	}
}

func TestComposeTRSIdentity(t *testing.T) {
	m := ComposeTRS([3]float32{}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1})
	assertMatNear(t, IdentityMat4(), m)
}

func TestComposeTRSAppliesScaleRotateTranslate(t *testing.T) {
	// 90 degrees about Z.
	s := math32.Sin(math32.Pi / 4)
	m := ComposeTRS([3]float32{10, 0, 0}, [4]float32{0, 0, s, s}, [3]float32{2, 2, 2})

	p := m.TransformPoint(Vec3{1, 0, 0})
	assert.InDelta(t, 10, p[0], 1e-5)
	assert.InDelta(t, 2, p[1], 1e-5)
	assert.InDelta(t, 0, p[2], 1e-5)
}

func TestInvert4RoundTrip(t *testing.T) {
	var m Mat4
	BuildModelMatrix(m[:], 1, 2, 3, 0.3, 0.2, 0.1, 1, 2, 3)

	var inv Mat4
	require.True(t, Invert4(inv[:], m[:]))
	assertMatNear(t, IdentityMat4(), m.Mul(inv))

	var singular Mat4
	assert.False(t, Invert4(inv[:], singular[:]))
}

func TestLookAtMapsEyeToOrigin(t *testing.T) {
	var v Mat4
	LookAt(v[:], 0, 0, 5, 0, 0, 0, 0, 1, 0)

	p := v.TransformPoint(Vec3{0, 0, 5})
	assert.InDelta(t, 0, p[2], 1e-5)

	target := v.TransformPoint(Vec3{0, 0, 0})
	assert.InDelta(t, -5, target[2], 1e-5)
}

func TestFrustumSphere(t *testing.T) {
	var proj, view Mat4
	Perspective(proj[:], math32.Pi/2, 1, 0.1, 100)
	LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	f := ExtractFrustum(proj.Mul(view))

	assert.True(t, f.IntersectsSphere(Vec3{0, 0, -10}, 1))
	assert.False(t, f.IntersectsSphere(Vec3{0, 0, 10}, 1))
	assert.False(t, f.IntersectsSphere(Vec3{0, 0, -200}, 1))
	assert.True(t, f.IntersectsSphere(Vec3{0, 0, 0.5}, 1))
}

func TestAlignUpAndDivCeil(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 16))
	assert.Equal(t, uint64(16), AlignUp(1, 16))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(7), AlignUp(7, 1))
	assert.Equal(t, uint32(2), DivCeil(uint32(65), 64))
	assert.Equal(t, uint32(1), DivCeil(uint32(64), 64))
}
