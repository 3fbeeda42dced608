package camera

import (
	"testing"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanema/gween/ease"
)

func TestControllerPositionFromSphericalCoordinates(t *testing.T) {
	cc := NewCameraController(WithRadius(5), WithAzimuth(0), WithElevation(0), WithTarget(1, 2, 3))
	x, y, z := cc.Position()
	assert.InDelta(t, 1, x, 1e-5)
	assert.InDelta(t, 2, y, 1e-5)
	assert.InDelta(t, 8, z, 1e-5)

	cc.SetAzimuth(math32.Pi / 2)
	x, _, z = cc.Position()
	assert.InDelta(t, 6, x, 1e-5)
	assert.InDelta(t, 3, z, 1e-5)
}

func TestSetPositionDerivesOrbit(t *testing.T) {
	cc := NewCameraController(WithTarget(0, 0, 0))
	cc.SetPosition(0, 0, 4)
	assert.InDelta(t, 4, cc.Radius(), 1e-5)
	assert.InDelta(t, 0, cc.Elevation(), 1e-5)
	assert.InDelta(t, 0, cc.Azimuth(), 1e-5)
	x, y, z := cc.Position()
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 4, z, 1e-5)
}

func TestZoomEasesAndClamps(t *testing.T) {
	cc := NewCameraController(WithRadius(10), WithRadiusBounds(2, 20), WithEasing(1, ease.Linear))

	cc.Zoom(4)
	assert.True(t, cc.Moving())
	assert.InDelta(t, 10, cc.Radius(), 1e-5, "nothing moves before Update")

	cc.Update(0.5)
	assert.InDelta(t, 8, cc.Radius(), 1e-4)
	cc.Update(0.6)
	assert.InDelta(t, 6, cc.Radius(), 1e-5)
	assert.False(t, cc.Moving())

	cc.Zoom(100)
	cc.Update(2)
	assert.InDelta(t, 2, cc.Radius(), 1e-5)
}

func TestOrbitAccumulatesGoals(t *testing.T) {
	cc := NewCameraController(WithOrbitSpeed(0.1), WithElevation(0), WithEasing(1, ease.Linear))
	cc.OrbitRight()
	cc.OrbitRight()
	cc.Update(1)
	assert.InDelta(t, 0.2, cc.Azimuth(), 1e-5, "repeated steps add to the goal, not the eased value")

	lo, hi := cc.ElevationBounds()
	for range 100 {
		cc.OrbitUp()
	}
	cc.Update(1)
	assert.InDelta(t, hi, cc.Elevation(), 1e-5)
	assert.Greater(t, hi, lo)
}

func TestZeroEasingSnaps(t *testing.T) {
	cc := NewCameraController(WithRadius(10), WithEasing(0, nil))
	cc.Zoom(3)
	assert.False(t, cc.Moving())
	assert.InDelta(t, 7, cc.Radius(), 1e-5)

	cc.FocusOn(1, 1, 1)
	x, y, z := cc.Target()
	assert.Equal(t, [3]float32{1, 1, 1}, [3]float32{x, y, z})
}

func TestPanMovesTargetAndPosition(t *testing.T) {
	cc := NewCameraController(WithRadius(5), WithAzimuth(0), WithElevation(0), WithPanSpeed(2))
	cc.PanRight(1)
	x, _, z := cc.Position()
	tx, _, tz := cc.Target()
	assert.InDelta(t, 2, tx, 1e-5)
	assert.InDelta(t, 0, tz, 1e-5)
	assert.InDelta(t, 2, x, 1e-5)
	assert.InDelta(t, 5, z, 1e-5)

	cc.PanForward(1)
	_, _, tz = cc.Target()
	assert.InDelta(t, -2, tz, 1e-5)
	assert.InDelta(t, 5, cc.Radius(), 1e-5)
}

func TestCameraMatrices(t *testing.T) {
	cam := NewDebugCamera(2, WithRadius(5), WithAzimuth(0), WithElevation(0), WithEasing(0, nil))
	require.NotNil(t, cam.Controller())

	var want common.Mat4
	common.LookAt(want[:], 0, 0, 5, 0, 0, 0, 0, 1, 0)
	assert.Equal(t, want, cam.ViewMatrix())
	assert.Equal(t, cam.ProjectionMatrix().Mul(cam.ViewMatrix()), cam.ViewProjectionMatrix())

	f := cam.Frustum()
	assert.True(t, f.IntersectsSphere(common.Vec3{}, 0.5))
	assert.False(t, f.IntersectsSphere(common.Vec3{0, 0, 10}, 0.5), "behind the camera")

	cam.Controller().Zoom(1)
	cam.Update(0)
	assert.InDelta(t, -4, cam.ViewMatrix()[14], 1e-5)

	before := cam.ProjectionMatrix()
	cam.SetAspect(1)
	assert.NotEqual(t, before, cam.ProjectionMatrix())
}

func TestWithClipPlanesPanicsOnBadPlanes(t *testing.T) {
	assert.Panics(t, func() { NewCamera(WithClipPlanes(0, 10)) })
	assert.Panics(t, func() { NewCamera(WithClipPlanes(5, 1)) })
	assert.NotPanics(t, func() { NewCamera(WithClipPlanes(0.1, 10)) })
}
