package gpu

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// MaxBindGroups is the number of bind groups (register spaces) a root signature may span.
const MaxBindGroups = 8

// maxCachedBindGroups bounds the replay bind group cache. The cache is dropped whole once it
// grows past this size.
const maxCachedBindGroups = 4096

type wgpuDeviceConfig struct {
	label                string
	forceFallbackAdapter bool
}

// WGPUDeviceOption configures NewWGPUDevice.
type WGPUDeviceOption func(*wgpuDeviceConfig)

// WithDeviceLabel sets the debug label of the native device.
func WithDeviceLabel(label string) WGPUDeviceOption {
	return func(c *wgpuDeviceConfig) {
		c.label = label
	}
}

// WithForceFallbackAdapter requests the software fallback adapter.
func WithForceFallbackAdapter(force bool) WGPUDeviceOption {
	return func(c *wgpuDeviceConfig) {
		c.forceFallbackAdapter = force
	}
}

// WGPUDevice is the WebGPU implementation of Device. The direct and copy queues of the core
// are logical queues sharing the single WebGPU queue.
type WGPUDevice struct {
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	samplers    map[SamplerDesc]*wgpu.Sampler
	emptyLayout *wgpu.BindGroupLayout
	emptyGroup  *wgpu.BindGroup
	bindGroups  map[string]*wgpu.BindGroup
}

var _ Device = &WGPUDevice{}

// NewWGPUDevice creates the instance, surface, adapter, device and queue. The calling goroutine
// is locked to its OS thread, as the native surface requires.
//
// Parameters:
//   - surfaceDescriptor: the platform surface the swap chain presents to
//   - opts: optional WGPUDeviceOption values
//
// Returns:
//   - *WGPUDevice: the device
//   - error: an ErrNativeAPI wrapped failure
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, opts ...WGPUDeviceOption) (*WGPUDevice, error) {
	cfg := wgpuDeviceConfig{label: "srender device"}
	for _, opt := range opts {
		opt(&cfg)
	}

	runtime.LockOSThread()
	d := &WGPUDevice{
		instance:   wgpu.CreateInstance(nil),
		samplers:   make(map[SamplerDesc]*wgpu.Sampler),
		bindGroups: make(map[string]*wgpu.BindGroup),
	}
	if surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request adapter: %w: %w", ErrNativeAPI, err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = MaxBindGroups

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: cfg.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request device: %w: %w", ErrNativeAPI, err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.emptyLayout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: "empty"})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("create empty bind group layout: %w: %w", ErrNativeAPI, err)
	}
	d.emptyGroup, err = dev.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: "empty", Layout: d.emptyLayout})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("create empty bind group: %w: %w", ErrNativeAPI, err)
	}

	common.Logger().Info("gpu device created", "label", cfg.label, "fallback", cfg.forceFallbackAdapter)
	return d, nil
}

// Native returns the underlying WebGPU device.
func (d *WGPUDevice) Native() *wgpu.Device { return d.device }

// Queue returns the underlying WebGPU queue.
func (d *WGPUDevice) Queue() *wgpu.Queue { return d.queue }

func (d *WGPUDevice) Poll(wait bool) {
	if d.device == nil {
		return
	}
	d.device.Poll(wait, nil)
}

func (d *WGPUDevice) SignalFence(_ CommandListType, f *Fence, value uint64) {
	d.queue.OnSubmittedWorkDone(func(wgpu.QueueWorkDoneStatus) {
		f.Complete(value)
	})
}

func (d *WGPUDevice) ResetAllocator(a *CommandAllocator) {
	if st, ok := a.BackendState().(*allocatorState); ok {
		st.ringUsed = 0
	}
}

func (d *WGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, bg := range d.bindGroups {
		bg.Release()
	}
	d.bindGroups = nil
	for _, s := range d.samplers {
		s.Release()
	}
	d.samplers = nil
	if d.emptyGroup != nil {
		d.emptyGroup.Release()
		d.emptyGroup = nil
	}
	if d.emptyLayout != nil {
		d.emptyLayout.Release()
		d.emptyLayout = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// wgpuBuffer is a native buffer. Upload heap buffers keep a CPU shadow that replay writes to
// the native buffer right before each copy that reads it.
type wgpuBuffer struct {
	label  string
	size   uint64
	heap   HeapType
	buf    *wgpu.Buffer
	shadow []byte
}

func (b *wgpuBuffer) Label() string  { return b.label }
func (b *wgpuBuffer) Size() uint64   { return b.size }
func (b *wgpuBuffer) Heap() HeapType { return b.heap }
func (b *wgpuBuffer) Mapped() []byte { return b.shadow }

func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
	b.shadow = nil
}

func (d *WGPUDevice) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if desc.Heap == HeapTypeReadback {
		return nil, fmt.Errorf("buffer %q: readback heap: %w", desc.Label, ErrNativeAPI)
	}
	size := common.AlignUp(max(desc.Size, 4), 4)

	usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if desc.Heap == HeapTypeDefault {
		usage |= wgpu.BufferUsageVertex | wgpu.BufferUsageIndex | wgpu.BufferUsageUniform |
			wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w: %w", desc.Label, ErrNativeAPI, err)
	}
	b := &wgpuBuffer{label: desc.Label, size: desc.Size, heap: desc.Heap, buf: buf}
	if desc.Heap == HeapTypeUpload {
		b.shadow = make([]byte, size)
	}
	return b, nil
}

type textureViewKey struct {
	dim         ViewDimension
	base        uint32
	count       uint32
	depthAspect bool
}

// wgpuTexture is a native texture with a view cache. Swap-chain back buffers are proxies whose
// native texture is acquired from the surface at replay time.
type wgpuTexture struct {
	desc  TextureDesc
	tex   *wgpu.Texture
	views map[textureViewKey]*wgpu.TextureView
	swap  *WGPUSwapChain
}

func (t *wgpuTexture) Label() string     { return t.desc.Label }
func (t *wgpuTexture) Desc() TextureDesc { return t.desc }

func (t *wgpuTexture) Release() {
	t.releaseViews()
	if t.tex != nil && t.swap == nil {
		t.tex.Release()
	}
	t.tex = nil
}

func (t *wgpuTexture) releaseViews() {
	for k, v := range t.views {
		v.Release()
		delete(t.views, k)
	}
}

// native returns the texture to record against, acquiring the surface image for proxies.
func (t *wgpuTexture) native() (*wgpu.Texture, error) {
	if t.swap != nil {
		return t.swap.acquire()
	}
	if t.tex == nil {
		return nil, fmt.Errorf("texture %q used after release: %w", t.desc.Label, ErrInvalidHandle)
	}
	return t.tex, nil
}

// view returns a cached view of the given layers.
func (t *wgpuTexture) view(dim ViewDimension, base, count uint32, depthAspect bool) (*wgpu.TextureView, error) {
	tex, err := t.native()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		count = 1
	}
	key := textureViewKey{dim: dim, base: base, count: count, depthAspect: depthAspect}
	if v, ok := t.views[key]; ok {
		return v, nil
	}

	vd := wgpu.TextureViewDimension2D
	switch dim {
	case ViewDimensionTextureCube:
		vd = wgpu.TextureViewDimensionCube
	case ViewDimensionTexture2DArray:
		vd = wgpu.TextureViewDimension2DArray
	}
	aspect := wgpu.TextureAspectAll
	if depthAspect {
		aspect = wgpu.TextureAspectDepthOnly
	}
	v, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          textureFormat(t.desc.Format),
		Dimension:       vd,
		BaseMipLevel:    0,
		MipLevelCount:   max(t.desc.MipLevels, 1),
		BaseArrayLayer:  base,
		ArrayLayerCount: count,
		Aspect:          aspect,
	})
	if err != nil {
		return nil, fmt.Errorf("view of %q: %w: %w", t.desc.Label, ErrNativeAPI, err)
	}
	if t.views == nil {
		t.views = make(map[textureViewKey]*wgpu.TextureView)
	}
	t.views[key] = v
	return v, nil
}

func (d *WGPUDevice) CreateTexture(desc TextureDesc) (Texture, error) {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc
	if desc.Flags&(ResourceFlagAllowRenderTarget|ResourceFlagAllowDepthStencil) != 0 {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if desc.Flags&ResourceFlagAllowUnorderedAccess != 0 {
		usage |= wgpu.TextureUsageStorageBinding
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers(),
		},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     wgpu.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w: %w", desc.Label, ErrNativeAPI, err)
	}
	return &wgpuTexture{desc: desc, tex: tex}, nil
}

// sampler returns a cached native sampler for desc.
func (d *WGPUDevice) sampler(desc SamplerDesc) (*wgpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.samplers[desc]; ok {
		return s, nil
	}
	filter, mip := wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	if desc.Filter == FilterPoint {
		filter, mip = wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	}
	address := wgpu.AddressModeRepeat
	switch desc.Address {
	case AddressClamp:
		address = wgpu.AddressModeClampToEdge
	case AddressMirror:
		address = wgpu.AddressModeMirrorRepeat
	}
	sd := &wgpu.SamplerDescriptor{
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mip,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: common.Coalesce(desc.MaxAnisotropy, 1),
	}
	if desc.Compare {
		sd.Compare = compareFunction(desc.Comparison)
	}
	s, err := d.device.CreateSampler(sd)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w: %w", ErrNativeAPI, err)
	}
	d.samplers[desc] = s
	return s, nil
}

// wgpuRootSignature holds one bind group layout per register space.
type wgpuRootSignature struct {
	desc    RootSignatureDesc
	layouts []*wgpu.BindGroupLayout
	entries [][]wgpu.BindGroupLayoutEntry
	layout  *wgpu.PipelineLayout
	// statics are the static samplers keyed by group and binding.
	statics map[[2]uint32]*wgpu.Sampler
	// constants counts the RootParameterConstants parameters.
	constants int
}

func (r *wgpuRootSignature) Desc() RootSignatureDesc { return r.desc }

func (r *wgpuRootSignature) Release() {
	if r.layout != nil {
		r.layout.Release()
		r.layout = nil
	}
	for _, l := range r.layouts {
		if l != nil {
			l.Release()
		}
	}
	r.layouts = nil
}

func shaderStages(v ShaderVisibility, writable bool) wgpu.ShaderStage {
	switch v {
	case ShaderVisibilityVertex:
		return wgpu.ShaderStageVertex
	case ShaderVisibilityPixel:
		return wgpu.ShaderStageFragment
	case ShaderVisibilityCompute:
		return wgpu.ShaderStageCompute
	default:
		if writable {
			return wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
		}
		return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
	}
}

// storageType picks the binding type of a UAV. Vertex stages cannot write storage buffers.
func storageType(v ShaderVisibility, readOnly bool) (wgpu.BufferBindingType, bool) {
	if readOnly || v == ShaderVisibilityVertex {
		return wgpu.BufferBindingTypeReadOnlyStorage, false
	}
	return wgpu.BufferBindingTypeStorage, true
}

// rootLayoutEntries converts a root signature into bind group layout entries keyed by group.
func rootLayoutEntries(desc RootSignatureDesc) map[uint32]map[uint32]wgpu.BindGroupLayoutEntry {
	groups := make(map[uint32]map[uint32]wgpu.BindGroupLayoutEntry)
	add := func(space uint32, e wgpu.BindGroupLayoutEntry) {
		g, ok := groups[space]
		if !ok {
			g = make(map[uint32]wgpu.BindGroupLayoutEntry)
			groups[space] = g
		}
		if existing, ok := g[e.Binding]; ok {
			existing.Visibility |= e.Visibility
			g[e.Binding] = existing
			return
		}
		g[e.Binding] = e
	}

	for _, p := range desc.Parameters {
		switch p.Kind {
		case RootParameterConstants:
			e := wgpu.BindGroupLayoutEntry{Binding: Binding(RegisterClassCBV, p.ShaderRegister), Visibility: shaderStages(p.Visibility, false)}
			e.Buffer.Type = wgpu.BufferBindingTypeUniform
			e.Buffer.HasDynamicOffset = true
			e.Buffer.MinBindingSize = uint64(p.Num32BitValues) * 4
			add(p.RegisterSpace, e)
		case RootParameterCBV:
			e := wgpu.BindGroupLayoutEntry{Binding: Binding(RegisterClassCBV, p.ShaderRegister), Visibility: shaderStages(p.Visibility, false)}
			e.Buffer.Type = wgpu.BufferBindingTypeUniform
			add(p.RegisterSpace, e)
		case RootParameterSRV:
			e := wgpu.BindGroupLayoutEntry{Binding: Binding(RegisterClassSRV, p.ShaderRegister), Visibility: shaderStages(p.Visibility, false)}
			e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			add(p.RegisterSpace, e)
		case RootParameterUAV:
			typ, writable := storageType(p.Visibility, p.ReadOnly)
			e := wgpu.BindGroupLayoutEntry{Binding: Binding(RegisterClassUAV, p.ShaderRegister), Visibility: shaderStages(p.Visibility, writable)}
			e.Buffer.Type = typ
			add(p.RegisterSpace, e)
		case RootParameterDescriptorTable:
			for _, r := range p.Ranges {
				for i := uint32(0); i < r.NumDescriptors; i++ {
					add(r.RegisterSpace, rangeLayoutEntry(p.Visibility, r, r.BaseShaderRegister+i))
				}
			}
		}
	}
	for _, s := range desc.StaticSamplers {
		e := wgpu.BindGroupLayoutEntry{Binding: Binding(RegisterClassSampler, s.ShaderRegister), Visibility: shaderStages(s.Visibility, false)}
		e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		if s.Desc.Compare {
			e.Sampler.Type = wgpu.SamplerBindingTypeComparison
		}
		add(s.RegisterSpace, e)
	}
	return groups
}

func rangeLayoutEntry(v ShaderVisibility, r DescriptorRange, reg uint32) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: Binding(r.Class, reg), Visibility: shaderStages(v, false)}
	switch r.Class {
	case RegisterClassCBV:
		e.Buffer.Type = wgpu.BufferBindingTypeUniform
	case RegisterClassSampler:
		e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		if r.Comparison {
			e.Sampler.Type = wgpu.SamplerBindingTypeComparison
		}
	case RegisterClassUAV:
		typ, writable := storageType(v, false)
		e.Visibility = shaderStages(v, writable)
		e.Buffer.Type = typ
	case RegisterClassSRV:
		if r.Dimension == ViewDimensionBuffer {
			e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			break
		}
		e.Texture.SampleType = wgpu.TextureSampleTypeFloat
		if r.Depth {
			e.Texture.SampleType = wgpu.TextureSampleTypeDepth
		}
		switch r.Dimension {
		case ViewDimensionTextureCube:
			e.Texture.ViewDimension = wgpu.TextureViewDimensionCube
		case ViewDimensionTexture2DArray:
			e.Texture.ViewDimension = wgpu.TextureViewDimension2DArray
		default:
			e.Texture.ViewDimension = wgpu.TextureViewDimension2D
		}
	}
	return e
}

// sortedEntries flattens one group's entries ordered by binding.
func sortedEntries(m map[uint32]wgpu.BindGroupLayoutEntry) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})
	return entries
}

func (d *WGPUDevice) CreateRootSignature(desc RootSignatureDesc) (RootSignature, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	groups := rootLayoutEntries(desc)
	count := uint32(0)
	for g := range groups {
		count = max(count, g+1)
	}
	if count > MaxBindGroups {
		return nil, fmt.Errorf("root signature %q uses register space %d, limit is %d", desc.Label, count-1, MaxBindGroups-1)
	}

	rs := &wgpuRootSignature{
		desc:    desc,
		layouts: make([]*wgpu.BindGroupLayout, count),
		entries: make([][]wgpu.BindGroupLayoutEntry, count),
		statics: make(map[[2]uint32]*wgpu.Sampler),
	}
	for _, p := range desc.Parameters {
		if p.Kind == RootParameterConstants {
			rs.constants++
		}
	}
	for _, s := range desc.StaticSamplers {
		smp, err := d.sampler(s.Desc)
		if err != nil {
			return nil, err
		}
		rs.statics[[2]uint32{s.RegisterSpace, Binding(RegisterClassSampler, s.ShaderRegister)}] = smp
	}

	for g := uint32(0); g < count; g++ {
		entries := sortedEntries(groups[g])
		rs.entries[g] = entries
		layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s space%d", desc.Label, g),
			Entries: entries,
		})
		if err != nil {
			rs.Release()
			return nil, fmt.Errorf("root signature %q group %d: %w: %w", desc.Label, g, ErrNativeAPI, err)
		}
		rs.layouts[g] = layout
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: rs.layouts,
	})
	if err != nil {
		rs.Release()
		return nil, fmt.Errorf("root signature %q: %w: %w", desc.Label, ErrNativeAPI, err)
	}
	rs.layout = layout
	return rs, nil
}

type wgpuPipeline struct {
	label    string
	compute  bool
	root     *wgpuRootSignature
	render   *wgpu.RenderPipeline
	dispatch *wgpu.ComputePipeline
}

func (p *wgpuPipeline) Label() string                { return p.label }
func (p *wgpuPipeline) Compute() bool                { return p.compute }
func (p *wgpuPipeline) RootSignature() RootSignature { return p.root }

func (p *wgpuPipeline) Release() {
	if p.render != nil {
		p.render.Release()
		p.render = nil
	}
	if p.dispatch != nil {
		p.dispatch.Release()
		p.dispatch = nil
	}
}

// shaderModuleDescriptor prefers the SPIR-V build output and falls back to the WGSL source
// when there is none or it is not a whole number of words.
func shaderModuleDescriptor(code ShaderCode) *wgpu.ShaderModuleDescriptor {
	desc := &wgpu.ShaderModuleDescriptor{Label: code.Name}
	if len(code.Binary) > 0 && len(code.Binary)%4 == 0 {
		desc.SPIRVDescriptor = &wgpu.ShaderModuleSPIRVDescriptor{Code: code.Binary}
	} else {
		desc.WGSLDescriptor = &wgpu.ShaderModuleWGSLDescriptor{Code: code.Source}
	}
	return desc
}

func (d *WGPUDevice) shaderModule(code ShaderCode) (*wgpu.ShaderModule, error) {
	m, err := d.device.CreateShaderModule(shaderModuleDescriptor(code))
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w: %w", code.Name, ErrNativeAPI, err)
	}
	return m, nil
}

func (d *WGPUDevice) CreateGraphicsPipelineState(desc GraphicsPipelineDesc) (PipelineState, error) {
	root, ok := desc.RootSignature.(*wgpuRootSignature)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: root signature from another device", desc.Label)
	}
	if desc.VS.Empty() {
		return nil, fmt.Errorf("pipeline %q: vertex shader must be set", desc.Label)
	}
	vs, err := d.shaderModule(desc.VS)
	if err != nil {
		return nil, err
	}
	defer vs.Release()

	buffers := make([]wgpu.VertexBufferLayout, 0, len(desc.InputLayout))
	for _, l := range desc.InputLayout {
		attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         vertexFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: a.ShaderLocation,
			})
		}
		step := wgpu.VertexStepModeVertex
		if l.StepMode == VertexStepInstance {
			step = wgpu.VertexStepModeInstance
		}
		buffers = append(buffers, wgpu.VertexBufferLayout{
			ArrayStride: uint64(l.Stride),
			StepMode:    step,
			Attributes:  attrs,
		})
	}

	rpd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: root.layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.VS.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  primitiveTopology(desc.Topology),
			FrontFace: wgpu.FrontFaceCW,
			CullMode:  cullMode(desc.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
	}
	if desc.FrontCCW {
		rpd.Primitive.FrontFace = wgpu.FrontFaceCCW
	}

	if !desc.PS.Empty() {
		fs, err := d.shaderModule(desc.PS)
		if err != nil {
			return nil, err
		}
		defer fs.Release()
		targets := make([]wgpu.ColorTargetState, 0, len(desc.RTVFormats))
		for _, f := range desc.RTVFormats {
			state := wgpu.ColorTargetState{
				Format:    textureFormat(f),
				WriteMask: wgpu.ColorWriteMaskAll,
			}
			if desc.Blend == BlendAlpha {
				state.Blend = &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorSrcAlpha,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
				}
			}
			targets = append(targets, state)
		}
		rpd.Fragment = &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.PS.EntryPoint,
			Targets:    targets,
		}
	}

	if desc.DSVFormat != FormatUnknown {
		compare := wgpu.CompareFunctionAlways
		if desc.DepthStencil.DepthEnable {
			compare = compareFunction(desc.DepthStencil.DepthFunc)
		}
		rpd.DepthStencil = &wgpu.DepthStencilState{
			Format:              textureFormat(desc.DSVFormat),
			DepthWriteEnabled:   desc.DepthStencil.DepthEnable && desc.DepthStencil.DepthWrite,
			DepthCompare:        compare,
			DepthBias:           desc.DepthStencil.DepthBias,
			DepthBiasSlopeScale: desc.DepthStencil.SlopeScaleBias,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := d.device.CreateRenderPipeline(rpd)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %w", desc.Label, ErrNativeAPI, err)
	}
	return &wgpuPipeline{label: desc.Label, root: root, render: created}, nil
}

func (d *WGPUDevice) CreateComputePipelineState(desc ComputePipelineDesc) (PipelineState, error) {
	root, ok := desc.RootSignature.(*wgpuRootSignature)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: root signature from another device", desc.Label)
	}
	if desc.CS.Empty() {
		return nil, fmt.Errorf("pipeline %q: compute shader must be set", desc.Label)
	}
	cs, err := d.shaderModule(desc.CS)
	if err != nil {
		return nil, err
	}
	defer cs.Release()

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: root.layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs,
			EntryPoint: desc.CS.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %w", desc.Label, ErrNativeAPI, err)
	}
	return &wgpuPipeline{label: desc.Label, compute: true, root: root, dispatch: created}, nil
}

func textureFormat(f Format) wgpu.TextureFormat {
	switch f {
	case FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	case FormatRGBA8UnormSRGB:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case FormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	case FormatBGRA8UnormSRGB:
		return wgpu.TextureFormatBGRA8UnormSrgb
	case FormatD32Float:
		return wgpu.TextureFormatDepth32Float
	case FormatD24UnormS8Uint:
		return wgpu.TextureFormatDepth24PlusStencil8
	case FormatR32Uint:
		return wgpu.TextureFormatR32Uint
	case FormatR32Float:
		return wgpu.TextureFormatR32Float
	default:
		return wgpu.TextureFormatUndefined
	}
}

func formatFromWGPU(f wgpu.TextureFormat) Format {
	switch f {
	case wgpu.TextureFormatRGBA8Unorm:
		return FormatRGBA8Unorm
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return FormatRGBA8UnormSRGB
	case wgpu.TextureFormatBGRA8Unorm:
		return FormatBGRA8Unorm
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return FormatBGRA8UnormSRGB
	default:
		return FormatUnknown
	}
}

func vertexFormat(f VertexFormat) wgpu.VertexFormat {
	switch f {
	case VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case VertexFormatFloat32x4:
		return wgpu.VertexFormatFloat32x4
	case VertexFormatUint32x4:
		return wgpu.VertexFormatUint32x4
	case VertexFormatUnorm8x4:
		return wgpu.VertexFormatUnorm8x4
	default:
		return wgpu.VertexFormatFloat32
	}
}

func primitiveTopology(t PrimitiveTopology) wgpu.PrimitiveTopology {
	switch t {
	case TopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	case TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func cullMode(c CullMode) wgpu.CullMode {
	switch c {
	case CullFront:
		return wgpu.CullModeFront
	case CullBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func compareFunction(c ComparisonFunc) wgpu.CompareFunction {
	switch c {
	case ComparisonNever:
		return wgpu.CompareFunctionNever
	case ComparisonLess:
		return wgpu.CompareFunctionLess
	case ComparisonLessEqual:
		return wgpu.CompareFunctionLessEqual
	case ComparisonGreater:
		return wgpu.CompareFunctionGreater
	default:
		return wgpu.CompareFunctionAlways
	}
}
