package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return fmt.Sprintf("RendererBackendType(%d)", int(t))
	}
}

// Surface is the part of a platform window the renderer needs. window.Window satisfies it.
type Surface interface {
	// SurfaceDescriptor returns the platform surface the swap chain presents to.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	// Width returns the client area width in pixels.
	Width() int
	// Height returns the client area height in pixels.
	Height() int
}

// RendererBackend is the device and swap chain a Renderer drives.
type RendererBackend struct {
	Type      RendererBackendType
	Device    gpu.Device
	SwapChain gpu.SwapChain

	// owned backends are released by the renderer on Shutdown
	owned bool
}

// NewRendererBackend wraps a device and swap chain the caller created. The caller keeps
// ownership and releases both after the renderer has shut down.
//
// Parameters:
//   - typ: the backend type the device implements
//   - dev: the device
//   - swapChain: the swap chain presenting from dev
//
// Returns:
//   - *RendererBackend: the backend
func NewRendererBackend(typ RendererBackendType, dev gpu.Device, swapChain gpu.SwapChain) *RendererBackend {
	return &RendererBackend{Type: typ, Device: dev, SwapChain: swapChain}
}

// newBackend creates the device and swap chain of the given type for a window surface.
//
// Parameters:
//   - typ: the backend to create
//   - surface: the window being rendered into
//   - r: the renderer whose pre-creation settings select the adapter, buffer count and present mode
//
// Returns:
//   - *RendererBackend: the owned backend
//   - error: an unsupported type or a device or swap chain creation failure
func newBackend(typ RendererBackendType, surface Surface, r *renderer) (*RendererBackend, error) {
	switch typ {
	case BackendTypeWGPU:
		dev, err := gpu.NewWGPUDevice(surface.SurfaceDescriptor(),
			gpu.WithDeviceLabel("srender device"),
			gpu.WithForceFallbackAdapter(r.forceFallbackAdapter),
		)
		if err != nil {
			return nil, err
		}
		sc, err := gpu.NewWGPUSwapChain(dev, r.backBufferCount, uint32(max(surface.Width(), 1)), uint32(max(surface.Height(), 1)), r.presentMode)
		if err != nil {
			dev.Release()
			return nil, err
		}
		return &RendererBackend{Type: typ, Device: dev, SwapChain: sc, owned: true}, nil
	default:
		return nil, fmt.Errorf("renderer: unsupported backend %v", typ)
	}
}

// release destroys an owned backend.
func (b *RendererBackend) release() {
	if !b.owned {
		return
	}
	b.SwapChain.Release()
	b.Device.Release()
}
