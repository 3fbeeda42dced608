package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// pollTimeout bounds how long the message loop sleeps waiting for events, in seconds.
const pollTimeout = 1.0 / 250

// glfwWindow holds the GLFW window. Every method runs on the window's message goroutine except
// surfaceDescriptor, which GLFW allows from any thread once the window exists.
type glfwWindow struct {
	window *glfw.Window
}

// newPlatformWindow creates the GLFW window without a client API and routes its callbacks to w.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("window: initialize GLFW: %w", err)
	}

	// WebGPU brings its own graphics API.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	resizable := glfw.False
	if w.resizable {
		resizable = glfw.True
	}
	glfw.WindowHint(glfw.Resizable, resizable)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("window: create %q: %w", w.title, err)
	}
	maxW, maxH := glfw.DontCare, glfw.DontCare
	if w.maxWidth > 0 {
		maxW = w.maxWidth
	}
	if w.maxHeight > 0 {
		maxH = w.maxHeight
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, maxW, maxH)

	w.platform = &glfwWindow{window: win}

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		switch action {
		case glfw.Press, glfw.Repeat:
			w.keyDown(uint32(key))
		case glfw.Release:
			w.keyUp(uint32(key))
		}
	})
	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		w.scrolled(float32(yoff))
	})
	win.SetMouseButtonCallback(func(win *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		x, y := win.GetCursorPos()
		w.mouseButton(int(button), action == glfw.Press, float32(x), float32(y))
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.mouseMoved(float32(x), float32(y))
	})

	// The framebuffer size is the pixel size the swap chain needs; on high-DPI displays it
	// differs from the window size.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(width, height)
	})
	win.SetIconifyCallback(func(win *glfw.Window, iconified bool) {
		fbw, fbh := win.GetFramebufferSize()
		w.iconified(iconified, fbw, fbh)
	})

	w.width, w.height = win.GetFramebufferSize()
	return nil
}

// surfaceDescriptor uses the wgpuglfw bridge, which picks the Win32, X11, Wayland or Metal
// surface for the platform.
func (g *glfwWindow) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	if g.window == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(g.window)
}

func (g *glfwWindow) running() bool {
	return g.window != nil && !g.window.ShouldClose()
}

func (g *glfwWindow) poll() {
	glfw.WaitEventsTimeout(pollTimeout)
}

func (g *glfwWindow) destroy() error {
	if g.window == nil {
		return errors.New("window: already closed")
	}
	g.window.Destroy()
	g.window = nil
	glfw.Terminate()
	return nil
}
