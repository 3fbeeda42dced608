package camera

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// eased is a value moving towards a goal along a tween.
type eased struct {
	value float32
	goal  float32
	tween *gween.Tween
}

// to starts easing towards goal. A zero duration snaps.
func (e *eased) to(goal, duration float32, fn ease.TweenFunc) {
	e.goal = goal
	if duration <= 0 || goal == e.value {
		e.snap(goal)
		return
	}
	e.tween = gween.New(e.value, goal, duration, fn)
}

func (e *eased) snap(v float32) {
	e.value, e.goal, e.tween = v, v, nil
}

// update advances the tween and reports whether the value changed.
func (e *eased) update(dt float32) bool {
	if e.tween == nil {
		return false
	}
	v, done := e.tween.Update(dt)
	e.value = v
	if done {
		e.snap(e.goal)
	}
	return true
}

// cameraControllerImpl is the single implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	// position is derived from target and the spherical coordinates
	position [3]float32
	target   [3]eased

	radius    eased
	azimuth   eased // around +Y, 0 looks down -Z from +Z
	elevation eased // above the horizontal plane

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed       float32
	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32

	easeDuration float32
	easeFunc     ease.TweenFunc
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a controller orbiting the origin.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		minRadius:    0.5,
		maxRadius:    500,
		minElevation: -math32.Pi/2 + 0.05,
		maxElevation: math32.Pi/2 - 0.05,

		orbitSpeed:       0.05,
		mouseSensitivity: 0.005,
		zoomSpeed:        1,
		panSpeed:         1,

		easeDuration: 0.15,
		easeFunc:     ease.OutCubic,
	}
	cc.radius.snap(10)
	cc.elevation.snap(math32.Pi / 6)

	for _, option := range options {
		option(cc)
	}

	cc.radius.snap(clamp(cc.radius.value, cc.minRadius, cc.maxRadius))
	cc.elevation.snap(clamp(cc.elevation.value, cc.minElevation, cc.maxElevation))
	cc.updatePosition()
	return cc
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

// updatePosition recomputes the camera position from spherical coordinates.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	sinElev, cosElev := math32.Sincos(cc.elevation.value)
	sinAzim, cosAzim := math32.Sincos(cc.azimuth.value)
	r := cc.radius.value

	cc.position[0] = cc.target[0].value + r*cosElev*sinAzim
	cc.position[1] = cc.target[1].value + r*sinElev
	cc.position[2] = cc.target[2].value + r*cosElev*cosAzim
}

// localAxes returns right, up and forward vectors consistent with the LookAt matrix. All are
// zero when position and target coincide. Caller must hold the mutex.
func (cc *cameraControllerImpl) localAxes() (right, up, forward [3]float32) {
	var back [3]float32
	for i := range back {
		back[i] = cc.position[i] - cc.target[i].value
	}
	bLen := math32.Sqrt(back[0]*back[0] + back[1]*back[1] + back[2]*back[2])
	if bLen < 1e-8 {
		return
	}
	for i := range back {
		back[i] /= bLen
	}

	// cross(worldUp, back) with worldUp = +Y
	right = [3]float32{back[2], 0, -back[0]}
	rLen := math32.Sqrt(right[0]*right[0] + right[2]*right[2])
	if rLen < 1e-8 {
		return [3]float32{}, [3]float32{}, [3]float32{}
	}
	right[0] /= rLen
	right[2] /= rLen

	up = [3]float32{
		back[1]*right[2] - back[2]*right[1],
		back[2]*right[0] - back[0]*right[2],
		back[0]*right[1] - back[1]*right[0],
	}
	forward = [3]float32{-back[0], -back[1], -back[2]}
	return right, up, forward
}

// translate moves target and position together. Caller must hold the mutex.
func (cc *cameraControllerImpl) translate(axis [3]float32, delta float32) {
	offset := delta * cc.panSpeed
	for i := range 3 {
		cc.target[i].snap(cc.target[i].goal + axis[i]*offset)
	}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) SetPosition(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	dx, dy, dz := x-cc.target[0].value, y-cc.target[1].value, z-cc.target[2].value
	r := math32.Sqrt(dx*dx + dy*dy + dz*dz)
	if r < 1e-8 {
		return
	}
	cc.radius.snap(clamp(r, cc.minRadius, cc.maxRadius))
	cc.elevation.snap(clamp(math32.Asin(dy/r), cc.minElevation, cc.maxElevation))
	cc.azimuth.snap(math32.Atan2(dx, dz))
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target[0].value, cc.target[1].value, cc.target[2].value
}

func (cc *cameraControllerImpl) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target[0].snap(x)
	cc.target[1].snap(y)
	cc.target[2].snap(z)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) FocusOn(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for i, v := range [3]float32{x, y, z} {
		cc.target[i].to(v, cc.easeDuration, cc.easeFunc)
	}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius.to(clamp(cc.radius.goal-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius), cc.easeDuration, cc.easeFunc)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Update(dt float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	changed := false
	for _, e := range []*eased{&cc.radius, &cc.azimuth, &cc.elevation, &cc.target[0], &cc.target[1], &cc.target[2]} {
		if e.update(dt) {
			changed = true
		}
	}
	if changed {
		cc.updatePosition()
	}
}

func (cc *cameraControllerImpl) Moving() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for _, e := range []*eased{&cc.radius, &cc.azimuth, &cc.elevation, &cc.target[0], &cc.target[1], &cc.target[2]} {
		if e.tween != nil {
			return true
		}
	}
	return false
}

// orbit eases the angles by the given deltas from their goals. Caller must hold the mutex.
func (cc *cameraControllerImpl) orbit(dAzimuth, dElevation float32) {
	if dAzimuth != 0 {
		cc.azimuth.to(cc.azimuth.goal+dAzimuth, cc.easeDuration, cc.easeFunc)
	}
	if dElevation != 0 {
		cc.elevation.to(clamp(cc.elevation.goal+dElevation, cc.minElevation, cc.maxElevation), cc.easeDuration, cc.easeFunc)
	}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) OrbitLeft() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.orbit(-cc.orbitSpeed, 0)
}

func (cc *cameraControllerImpl) OrbitRight() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.orbit(cc.orbitSpeed, 0)
}

func (cc *cameraControllerImpl) OrbitUp() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.orbit(0, cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitDown() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.orbit(0, -cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitDrag(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.orbit(dx*cc.mouseSensitivity, dy*cc.mouseSensitivity)
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius.value
}

func (cc *cameraControllerImpl) SetRadius(radius float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius.snap(clamp(radius, cc.minRadius, cc.maxRadius))
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth.value
}

func (cc *cameraControllerImpl) SetAzimuth(azimuth float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth.snap(azimuth)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation.value
}

func (cc *cameraControllerImpl) SetElevation(elevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.elevation.snap(clamp(elevation, cc.minElevation, cc.maxElevation))
	cc.updatePosition()
}

func (cc *cameraControllerImpl) RadiusBounds() (float32, float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minRadius, cc.maxRadius
}

func (cc *cameraControllerImpl) ElevationBounds() (float32, float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minElevation, cc.maxElevation
}

func (cc *cameraControllerImpl) PanRight(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	right, _, _ := cc.localAxes()
	cc.translate(right, delta)
}

func (cc *cameraControllerImpl) PanUp(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, up, _ := cc.localAxes()
	cc.translate(up, delta)
}

func (cc *cameraControllerImpl) PanForward(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, _, forward := cc.localAxes()
	cc.translate(forward, delta)
}

func (cc *cameraControllerImpl) PanSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.panSpeed
}
