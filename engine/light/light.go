package light

import "sync"

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu       *sync.Mutex
	position [3]float32
	enabled  bool
}

// Light is the point light the world is lit and shadowed from. Attached to a game object it
// follows the object's position; a scene hands the position of its first enabled light to the
// renderer each frame.
type Light interface {
	// Position returns the world-space position of the light.
	//
	// Returns:
	//   - [3]float32: position as (x, y, z)
	Position() [3]float32

	// SetPosition moves the light.
	//
	// Parameters:
	//   - x, y, z: the world-space position
	SetPosition(x, y, z float32)

	// Enabled reports whether the light contributes to the frame.
	Enabled() bool

	// SetEnabled toggles the light.
	SetEnabled(enabled bool)
}

var _ Light = &lightImpl{}

// NewLight creates an enabled point light at the origin.
//
// Parameters:
//   - opts: a variadic list of LightBuilderOption functions
//
// Returns:
//   - Light: the light
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{mu: &sync.Mutex{}, enabled: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Position() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = [3]float32{x, y, z}
}

func (l *lightImpl) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}
