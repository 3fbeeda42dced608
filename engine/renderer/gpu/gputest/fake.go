// Package gputest provides an in-memory gpu.Device for tests. Buffers and textures are plain
// byte slices, copies are performed when a list is executed, and fence signals complete when
// the device is polled.
package gputest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// Submission is one executed command list.
type Submission struct {
	Queue gpu.CommandListType
	Label string
	Ops   []gpu.Op
}

type pendingSignal struct {
	fence *gpu.Fence
	value uint64
	queue gpu.CommandListType
}

// FakeDevice records submissions and emulates copies. Fence signals are held until the device
// is polled; with AutoComplete off they are held until Complete is called.
type FakeDevice struct {
	mu sync.Mutex

	// AutoComplete completes every pending signal on Poll.
	AutoComplete       bool
	// FailBufferCreation makes CreateBuffer fail, for error path tests.
	FailBufferCreation bool
	// FailBufferAfter, when positive, makes CreateBuffer fail once that many buffers exist.
	FailBufferAfter    int

	Submissions    []Submission
	AllocatorReset int
	Buffers        int
	// Created holds every buffer in creation order.
	Created        []*Buffer
	Textures       int
	Released       bool

	pending []pendingSignal
}

// NewFakeDevice returns a device that completes signals on every Poll.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{AutoComplete: true}
}

// Buffer is the fake native buffer.
type Buffer struct {
	desc     gpu.BufferDesc
	Data     []byte
	Released bool
}

func (b *Buffer) Label() string      { return b.desc.Label }
func (b *Buffer) Size() uint64       { return b.desc.Size }
func (b *Buffer) Heap() gpu.HeapType { return b.desc.Heap }
func (b *Buffer) Release()           { b.Released = true }

func (b *Buffer) Mapped() []byte {
	if b.desc.Heap == gpu.HeapTypeDefault {
		return nil
	}
	return b.Data
}

// Texture is the fake native texture. Layers holds tightly packed texels per array layer.
type Texture struct {
	desc     gpu.TextureDesc
	Layers   [][]byte
	Released bool
}

func (t *Texture) Label() string         { return t.desc.Label }
func (t *Texture) Desc() gpu.TextureDesc { return t.desc }
func (t *Texture) Release()              { t.Released = true }

type rootSignature struct {
	desc gpu.RootSignatureDesc
}

func (r *rootSignature) Desc() gpu.RootSignatureDesc { return r.desc }
func (r *rootSignature) Release()                    {}

// Pipeline is the fake pipeline state.
type Pipeline struct {
	GraphicsDesc *gpu.GraphicsPipelineDesc
	ComputeDesc  *gpu.ComputePipelineDesc
	root         gpu.RootSignature
}

func (p *Pipeline) Label() string {
	if p.GraphicsDesc != nil {
		return p.GraphicsDesc.Label
	}
	return p.ComputeDesc.Label
}

func (p *Pipeline) Compute() bool                    { return p.ComputeDesc != nil }
func (p *Pipeline) RootSignature() gpu.RootSignature { return p.root }
func (p *Pipeline) Release()                         {}

func (d *FakeDevice) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if d.FailBufferCreation || (d.FailBufferAfter > 0 && d.Buffers >= d.FailBufferAfter) {
		return nil, fmt.Errorf("fake buffer %q: %w", desc.Label, gpu.ErrNativeAPI)
	}
	d.Buffers++
	b := &Buffer{desc: desc, Data: make([]byte, desc.Size)}
	d.Created = append(d.Created, b)
	return b, nil
}

func (d *FakeDevice) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	d.Textures++
	t := &Texture{desc: desc}
	size := int(desc.Width * desc.Height * max(desc.Format.BytesPerTexel(), 4))
	for i := uint32(0); i < desc.Layers(); i++ {
		t.Layers = append(t.Layers, make([]byte, size))
	}
	return t, nil
}

func (d *FakeDevice) CreateRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", gpu.ErrNativeAPI, err)
	}
	return &rootSignature{desc: desc}, nil
}

func (d *FakeDevice) CreateGraphicsPipelineState(desc gpu.GraphicsPipelineDesc) (gpu.PipelineState, error) {
	if desc.RootSignature == nil || desc.VS.Empty() {
		return nil, fmt.Errorf("fake pipeline %q: missing root signature or vertex shader: %w", desc.Label, gpu.ErrNativeAPI)
	}
	return &Pipeline{GraphicsDesc: &desc, root: desc.RootSignature}, nil
}

func (d *FakeDevice) CreateComputePipelineState(desc gpu.ComputePipelineDesc) (gpu.PipelineState, error) {
	if desc.RootSignature == nil || desc.CS.Empty() {
		return nil, fmt.Errorf("fake pipeline %q: missing root signature or compute shader: %w", desc.Label, gpu.ErrNativeAPI)
	}
	return &Pipeline{ComputeDesc: &desc, root: desc.RootSignature}, nil
}

// ExecuteCommandList performs the list's copies immediately and records its ops.
func (d *FakeDevice) ExecuteCommandList(queue gpu.CommandListType, list *gpu.CommandList) error {
	ops := make([]gpu.Op, len(list.Ops()))
	copy(ops, list.Ops())
	for i := range ops {
		op := &ops[i]
		op.Constants = append([]byte(nil), op.Constants...)
		op.RTVs = append([]gpu.CPUDescriptorHandle(nil), op.RTVs...)
		switch op.Kind {
		case gpu.OpCopyBufferRegion:
			dst := op.Dst.Buffer().(*Buffer)
			src := op.Src.Buffer().(*Buffer)
			copy(dst.Data[op.DstOffset:op.DstOffset+op.Size], src.Data[op.SrcOffset:op.SrcOffset+op.Size])
		case gpu.OpCopyBufferToTexture:
			dst := op.Dst.Texture().(*Texture)
			src := op.Src.Buffer().(*Buffer)
			fp := op.Footprint
			row := fp.Width * fp.Format.BytesPerTexel()
			for y := uint32(0); y < fp.Height; y++ {
				from := fp.Offset + uint64(y)*uint64(fp.RowPitch)
				copy(dst.Layers[op.DstLayer][y*row:(y+1)*row], src.Data[from:from+uint64(row)])
			}
		}
	}
	d.mu.Lock()
	d.Submissions = append(d.Submissions, Submission{Queue: queue, Label: list.Label(), Ops: ops})
	d.mu.Unlock()
	return nil
}

func (d *FakeDevice) SignalFence(queue gpu.CommandListType, f *gpu.Fence, value uint64) {
	d.mu.Lock()
	d.pending = append(d.pending, pendingSignal{fence: f, value: value, queue: queue})
	d.mu.Unlock()
}

// Poll completes pending signals when AutoComplete is set or wait is true.
func (d *FakeDevice) Poll(wait bool) {
	if d.AutoComplete || wait {
		d.Complete(-1)
	}
}

// Complete completes the oldest n pending signals, or all of them when n is negative.
//
// Returns:
//   - int: the number of signals completed
func (d *FakeDevice) Complete(n int) int {
	d.mu.Lock()
	if n < 0 || n > len(d.pending) {
		n = len(d.pending)
	}
	done := append([]pendingSignal(nil), d.pending[:n]...)
	d.pending = append(d.pending[:0], d.pending[n:]...)
	d.mu.Unlock()
	for _, s := range done {
		s.fence.Complete(s.value)
	}
	return n
}

// Pending returns the number of signals not yet completed.
func (d *FakeDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *FakeDevice) ResetAllocator(*gpu.CommandAllocator) { d.AllocatorReset++ }

func (d *FakeDevice) Release() { d.Released = true }

// CountOps counts recorded ops of a kind across every submission.
func (d *FakeDevice) CountOps(kind gpu.OpKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.Submissions {
		for _, op := range s.Ops {
			if op.Kind == kind {
				n++
			}
		}
	}
	return n
}

// LastSubmission returns the most recent submission.
func (d *FakeDevice) LastSubmission() Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Submissions) == 0 {
		return Submission{}
	}
	return d.Submissions[len(d.Submissions)-1]
}

// BufferBytes returns the backing bytes of a buffer resource created by a FakeDevice.
func BufferBytes(r *gpu.Resource) []byte {
	return r.Buffer().(*Buffer).Data
}

// TextureLayer returns the texels of one layer of a texture resource created by a FakeDevice.
func TextureLayer(r *gpu.Resource, layer int) []byte {
	return r.Texture().(*Texture).Layers[layer]
}

// SwapChain is an in-memory swap chain.
type SwapChain struct {
	device  *FakeDevice
	format  gpu.Format
	width   uint32
	height  uint32
	index   int
	buffers []*gpu.Resource

	Presents int
	Resizes  int
}

// NewSwapChain creates a chain of count back buffers.
func NewSwapChain(d *FakeDevice, count int, width, height uint32) *SwapChain {
	s := &SwapChain{device: d, format: gpu.FormatBGRA8Unorm}
	s.create(count, width, height)
	return s
}

func (s *SwapChain) create(count int, width, height uint32) {
	s.width, s.height = width, height
	s.buffers = s.buffers[:0]
	for i := 0; i < count; i++ {
		t := &Texture{desc: gpu.TextureDesc{
			Label:  fmt.Sprintf("back buffer %d", i),
			Width:  width,
			Height: height,
			Format: s.format,
			Flags:  gpu.ResourceFlagAllowRenderTarget,
		}}
		s.buffers = append(s.buffers, gpu.WrapExternalTexture(t, gpu.ResourceStatePresent))
	}
}

func (s *SwapChain) BufferCount() int               { return len(s.buffers) }
func (s *SwapChain) CurrentBackBufferIndex() int    { return s.index }
func (s *SwapChain) BackBuffer(i int) *gpu.Resource { return s.buffers[i] }
func (s *SwapChain) Format() gpu.Format             { return s.format }
func (s *SwapChain) Size() (uint32, uint32)         { return s.width, s.height }
func (s *SwapChain) Release()                       {}

func (s *SwapChain) Resize(width, height uint32) error {
	s.Resizes++
	s.create(len(s.buffers), width, height)
	s.index = 0
	return nil
}

func (s *SwapChain) Present() error {
	b := s.buffers[s.index]
	if b.State() != gpu.ResourceStatePresent {
		return fmt.Errorf("present of %v: %w", b, gpu.ErrNativeAPI)
	}
	s.Presents++
	s.index = (s.index + 1) % len(s.buffers)
	return nil
}
