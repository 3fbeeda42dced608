package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how frames are delivered to the display.
type PresentMode int

const (
	// PresentModeVSync waits for vertical blank (Fifo).
	PresentModeVSync PresentMode = iota
	// PresentModeUncapped presents immediately.
	PresentModeUncapped
)

// WGPUSwapChain presents to a WebGPU surface. WebGPU exposes one surface image at a time, so
// the back buffers are proxy textures that resolve to the acquired surface image while a
// frame is recorded and replayed.
type WGPUSwapChain struct {
	device      *WGPUDevice
	format      wgpu.TextureFormat
	alphaMode   wgpu.CompositeAlphaMode
	presentMode wgpu.PresentMode
	width       uint32
	height      uint32
	index       int
	buffers     []*Resource
	current     *wgpu.Texture
}

var _ SwapChain = &WGPUSwapChain{}

// NewWGPUSwapChain configures the device's surface and creates count back buffers.
//
// Parameters:
//   - d: the device whose surface is presented to
//   - count: the number of back buffers
//   - width, height: the surface size in pixels
//   - mode: the present mode
//
// Returns:
//   - *WGPUSwapChain: the swap chain
//   - error: an error when the device has no surface or no supported format
func NewWGPUSwapChain(d *WGPUDevice, count int, width, height uint32, mode PresentMode) (*WGPUSwapChain, error) {
	if d.surface == nil {
		return nil, fmt.Errorf("swap chain: device was created without a surface: %w", ErrNativeAPI)
	}
	caps := d.surface.GetCapabilities(d.adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return nil, fmt.Errorf("swap chain: surface reports no formats: %w", ErrNativeAPI)
	}
	s := &WGPUSwapChain{
		device:      d,
		format:      caps.Formats[0],
		alphaMode:   caps.AlphaModes[0],
		presentMode: wgpu.PresentModeFifo,
	}
	for _, f := range caps.Formats {
		if formatFromWGPU(f) != FormatUnknown {
			s.format = f
			break
		}
	}
	if mode == PresentModeUncapped {
		s.presentMode = wgpu.PresentModeImmediate
	}
	s.buffers = make([]*Resource, count)
	if err := s.Resize(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WGPUSwapChain) BufferCount() int            { return len(s.buffers) }
func (s *WGPUSwapChain) CurrentBackBufferIndex() int { return s.index }
func (s *WGPUSwapChain) BackBuffer(i int) *Resource  { return s.buffers[i] }
func (s *WGPUSwapChain) Format() Format              { return formatFromWGPU(s.format) }
func (s *WGPUSwapChain) Size() (uint32, uint32)      { return s.width, s.height }

func (s *WGPUSwapChain) Resize(width, height uint32) error {
	s.releaseCurrent()
	s.width, s.height = max(width, 1), max(height, 1)
	s.device.surface.Configure(s.device.adapter, s.device.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      s.format,
		Width:       s.width,
		Height:      s.height,
		PresentMode: s.presentMode,
		AlphaMode:   s.alphaMode,
	})
	for i := range s.buffers {
		if s.buffers[i] != nil {
			s.buffers[i].Texture().Release()
		}
		tex := &wgpuTexture{
			desc: TextureDesc{
				Label:  fmt.Sprintf("back buffer %d", i),
				Width:  s.width,
				Height: s.height,
				Format: s.Format(),
				Flags:  ResourceFlagAllowRenderTarget,
			},
			swap: s,
		}
		s.buffers[i] = WrapExternalTexture(tex, ResourceStatePresent)
	}
	s.index = 0
	common.Logger().Info("swap chain configured", "width", s.width, "height", s.height, "buffers", len(s.buffers))
	return nil
}

// acquire returns the current surface image, acquiring it on first use in a frame.
func (s *WGPUSwapChain) acquire() (*wgpu.Texture, error) {
	if s.current != nil {
		return s.current, nil
	}
	tex, err := s.device.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("acquire surface texture: %w: %w", ErrNativeAPI, err)
	}
	s.current = tex
	return tex, nil
}

func (s *WGPUSwapChain) releaseCurrent() {
	for _, b := range s.buffers {
		if b != nil {
			b.Texture().(*wgpuTexture).releaseViews()
		}
	}
	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
}

func (s *WGPUSwapChain) Present() error {
	b := s.buffers[s.index]
	if b.State() != ResourceStatePresent {
		return fmt.Errorf("present of %v: back buffer is not in the present state", b)
	}
	if s.current != nil {
		s.device.surface.Present()
	}
	s.releaseCurrent()
	s.index = (s.index + 1) % len(s.buffers)
	return nil
}

func (s *WGPUSwapChain) Release() {
	s.releaseCurrent()
	s.buffers = nil
}
