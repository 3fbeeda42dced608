package camera

// CameraController owns the positional state (position, target) a Camera reads its view
// matrix from. It orbits the target in spherical coordinates and pans along its local axes.
// Orbit, zoom and focus changes ease towards their goal over the configured easing duration
// as Update is called; setters and pans apply immediately.
type CameraController interface {
	orbitCameraController
	planarCameraController

	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - x, y, z: world-space camera position
	Position() (x, y, z float32)

	// Target returns the look-at point.
	//
	// Returns:
	//   - x, y, z: world-space target position
	Target() (x, y, z float32)

	// SetTarget moves the pivot point immediately, keeping the orbit angles and radius.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetTarget(x, y, z float32)

	// SetPosition places the camera at a world-space position, deriving the orbit angles and
	// radius from its offset to the target. Bounds are applied.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetPosition(x, y, z float32)

	// FocusOn eases the pivot point to a new world-space position.
	//
	// Parameters:
	//   - x, y, z: the new target
	FocusOn(x, y, z float32)

	// Zoom eases the orbit radius towards the target. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount scaled by ZoomSpeed
	Zoom(delta float32)

	// Update advances every running ease by dt seconds.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Update(dt float32)

	// Moving reports whether any ease is still running.
	Moving() bool
}

// orbitCameraController defines the spherical controls around the target.
type orbitCameraController interface {
	// OrbitLeft eases the camera left around the target by one orbit speed step.
	OrbitLeft()

	// OrbitRight eases the camera right around the target by one orbit speed step.
	OrbitRight()

	// OrbitUp eases the camera upward by one orbit speed step, clamped to max elevation.
	OrbitUp()

	// OrbitDown eases the camera downward by one orbit speed step, clamped to min elevation.
	OrbitDown()

	// OrbitDrag turns a mouse drag into an orbit, scaled by MouseSensitivity.
	//
	// Parameters:
	//   - dx, dy: cursor movement in pixels
	OrbitDrag(dx, dy float32)

	// Radius returns the current orbit radius (distance from target).
	Radius() float32

	// SetRadius sets the orbit radius immediately, clamped to min/max bounds.
	SetRadius(radius float32)

	// Azimuth returns the current horizontal angle around the Y axis in radians.
	Azimuth() float32

	// SetAzimuth sets the horizontal angle immediately.
	SetAzimuth(azimuth float32)

	// Elevation returns the current vertical angle from the horizontal plane in radians.
	Elevation() float32

	// SetElevation sets the vertical angle immediately, clamped to min/max bounds.
	SetElevation(elevation float32)

	// RadiusBounds returns the minimum and maximum orbit radius.
	//
	// Returns:
	//   - min, max: the zoom limits
	RadiusBounds() (min, max float32)

	// ElevationBounds returns the minimum and maximum elevation in radians.
	//
	// Returns:
	//   - min, max: the tilt limits
	ElevationBounds() (min, max float32)
}

// planarCameraController translates position and target together along the camera's local
// axes, preserving the orbit relationship.
type planarCameraController interface {
	// PanRight translates the camera along its local right axis.
	// Positive delta moves right, negative moves left.
	//
	// Parameters:
	//   - delta: pan amount scaled by PanSpeed
	PanRight(delta float32)

	// PanUp translates the camera along its local up axis.
	PanUp(delta float32)

	// PanForward translates the camera along its view direction (dolly).
	// Positive delta moves toward the target.
	PanForward(delta float32)

	// PanSpeed returns the pan speed multiplier.
	PanSpeed() float32
}
