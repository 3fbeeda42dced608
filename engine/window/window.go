package window

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides platform windowing and input event handling. It satisfies renderer.Surface:
// Width and Height report the framebuffer size in pixels and may be read from any goroutine.
// Callbacks run on the goroutine calling ProcessMessages.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized. A minimized
	// window reports a zero size.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up/zoom in, negative = down/zoom out)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key code, see the common.Key* constants
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseButtonCallback sets the callback for mouse button presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the button (common.MouseButton*), whether it was pressed
	//     and the cursor position
	SetMouseButtonCallback(callback func(button int, pressed bool, x, y float32))

	// SetMouseMoveCallback sets the callback for cursor movement.
	SetMouseMoveCallback(callback func(x, y float32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil after Close
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true until the window is asked to close.
	IsRunning() bool

	// RequestClose asks the message loop to stop. Safe to call from any goroutine.
	RequestClose()

	// Minimized reports whether the window is iconified.
	Minimized() bool

	// ProcessMessages runs the window message loop on the calling goroutine, which must be the
	// goroutine that created the window. Blocks until the window is closed.
	ProcessMessages()

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: the window was already closed
	Close() error

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu *sync.Mutex

	title     string
	resizable bool

	// escapeCloses makes the Escape key request a close
	escapeCloses bool

	minWidth, minHeight int
	maxWidth, maxHeight int

	// width and height are the framebuffer size, zero while minimized
	width, height int
	minimized     bool
	closing       bool

	// platform holds the GLFW window
	platform *glfwWindow

	onUpdate      func()
	onResize      func(width, height int)
	onScroll      func(delta float32)
	onKeyDown     func(keyCode uint32)
	onKeyUp       func(keyCode uint32)
	onMouseButton func(button int, pressed bool, x, y float32)
	onMouseMove   func(x, y float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine becomes the window's message
// goroutine and is locked to its OS thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: the platform could not create it
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:           &sync.Mutex{},
		title:        "srender",
		resizable:    true,
		escapeCloses: true,
		minWidth:     320,
		minHeight:    200,
		width:        1280,
		height:       720,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window: invalid size %dx%d", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	common.Logger().Info("window created", "title", w.title, "width", w.width, "height", w.height)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button int, pressed bool, x, y float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) IsRunning() bool {
	w.mu.Lock()
	closing := w.closing
	w.mu.Unlock()
	return !closing && w.platform.running()
}

func (w *engineWindow) RequestClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closing = true
}

func (w *engineWindow) Minimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		w.platform.poll()
		w.mu.Lock()
		update := w.onUpdate
		w.mu.Unlock()
		if update != nil {
			update()
		}
	}
}

func (w *engineWindow) Close() error {
	return w.platform.destroy()
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// resized records a framebuffer size change and forwards it.
func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	cb := w.onResize
	w.mu.Unlock()
	if cb != nil {
		cb(width, height)
	}
}

// iconified records a minimize or restore. A minimized window reports a zero size so the
// renderer pauses; restoring reports the framebuffer size again.
func (w *engineWindow) iconified(minimized bool, width, height int) {
	w.mu.Lock()
	w.minimized = minimized
	w.mu.Unlock()
	if minimized {
		w.resized(0, 0)
		return
	}
	w.resized(width, height)
}

func (w *engineWindow) keyDown(key uint32) {
	w.mu.Lock()
	cb := w.onKeyDown
	if key == common.KeyEsc && w.escapeCloses {
		w.closing = true
	}
	w.mu.Unlock()
	if cb != nil {
		cb(key)
	}
}

func (w *engineWindow) keyUp(key uint32) {
	w.mu.Lock()
	cb := w.onKeyUp
	w.mu.Unlock()
	if cb != nil {
		cb(key)
	}
}

func (w *engineWindow) scrolled(delta float32) {
	w.mu.Lock()
	cb := w.onScroll
	w.mu.Unlock()
	if cb != nil {
		cb(delta)
	}
}

func (w *engineWindow) mouseButton(button int, pressed bool, x, y float32) {
	w.mu.Lock()
	cb := w.onMouseButton
	w.mu.Unlock()
	if cb != nil {
		cb(button, pressed, x, y)
	}
}

func (w *engineWindow) mouseMoved(x, y float32) {
	w.mu.Lock()
	cb := w.onMouseMove
	w.mu.Unlock()
	if cb != nil {
		cb(x, y)
	}
}
