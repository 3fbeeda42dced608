package gpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// allocatorState is the backend state attached to a command allocator: the uniform ring that
// root constants recorded into the allocator are replayed from. The ring is only rewritten
// after the allocator's previous work has completed.
type allocatorState struct {
	ring     *wgpu.Buffer
	ringSize uint64
	ringUsed uint64
}

// rootArg is the replay-side value of one root parameter.
type rootArg struct {
	set        bool
	values     []byte
	ringOffset uint32
	table      GPUDescriptorHandle
	view       BufferView
}

type pendingClear struct {
	res   *Resource
	view  ViewDesc
	color Color
	depth float32
	isDSV bool
}

// replay turns one closed command list into a native command buffer.
type replay struct {
	d     *WGPUDevice
	list  *CommandList
	enc   *wgpu.CommandEncoder
	state *allocatorState
	ring  []byte

	rpass *wgpu.RenderPassEncoder
	cpass *wgpu.ComputePassEncoder

	rtvs   []CPUDescriptorHandle
	dsv    *CPUDescriptorHandle
	clears map[uint64]pendingClear

	heaps        []*DescriptorHeap
	graphicsRoot *wgpuRootSignature
	computeRoot  *wgpuRootSignature
	graphicsArgs []rootArg
	computeArgs  []rootArg
	pipeline     *wgpuPipeline

	vbs      map[uint32]VertexBufferView
	ib       *IndexBufferView
	viewport *Viewport
	scissor  *Rect
	dirty    bool
}

// ringCapacity is the uniform ring size a list needs: one aligned block per constants update
// and per constants parameter of every bound root signature.
func ringCapacity(ops []Op) uint64 {
	blocks := uint64(0)
	for _, op := range ops {
		switch op.Kind {
		case OpSetRootConstants:
			blocks++
		case OpSetRootSignature:
			if rs, ok := op.RootSignature.(*wgpuRootSignature); ok {
				blocks += uint64(rs.constants)
			}
		}
	}
	return blocks * ConstantBufferAlignment
}

func (d *WGPUDevice) ExecuteCommandList(_ CommandListType, list *CommandList) error {
	ops := list.Ops()
	alloc := list.Allocator()
	st, _ := alloc.BackendState().(*allocatorState)
	if st == nil {
		st = &allocatorState{}
		alloc.SetBackendState(st)
	}

	need := st.ringUsed + ringCapacity(ops)
	if need > st.ringSize {
		size := max(need, 2*st.ringSize, 64*ConstantBufferAlignment)
		ring, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "root constants",
			Size:  size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("root constant ring of %d bytes: %w: %w", size, ErrNativeAPI, err)
		}
		if st.ring != nil {
			st.ring.Release()
		}
		st.ring, st.ringSize, st.ringUsed = ring, size, 0
	}

	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder for %q: %w: %w", list.Label(), ErrNativeAPI, err)
	}
	defer enc.Release()

	r := &replay{
		d:      d,
		list:   list,
		enc:    enc,
		state:  st,
		clears: make(map[uint64]pendingClear),
		vbs:    make(map[uint32]VertexBufferView),
	}
	start := st.ringUsed
	for i := range ops {
		if err := r.op(&ops[i]); err != nil {
			r.endPasses()
			return fmt.Errorf("replay %q op %d (%v): %w", list.Label(), i, ops[i].Kind, err)
		}
	}
	r.endPasses()
	if err := r.flushClears(nil); err != nil {
		return fmt.Errorf("replay %q: %w", list.Label(), err)
	}

	if len(r.ring) > 0 {
		if err := d.queue.WriteBuffer(st.ring, start, r.ring); err != nil {
			return fmt.Errorf("root constants for %q: %w: %w", list.Label(), ErrNativeAPI, err)
		}
	}

	cb, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish %q: %w: %w", list.Label(), ErrNativeAPI, err)
	}
	d.queue.Submit(cb)
	cb.Release()
	return nil
}

func (r *replay) op(op *Op) error {
	switch op.Kind {
	case OpBarrier:
		r.endPasses()
		return r.flushClears(op.Barrier.Resource)
	case OpCopyBufferRegion:
		r.endPasses()
		return r.copyBuffer(op)
	case OpCopyBufferToTexture:
		r.endPasses()
		return r.copyTexture(op)
	case OpClearRenderTarget, OpClearDepthStencil:
		return r.clear(op)
	case OpSetRenderTargets:
		r.endRenderPass()
		r.rtvs = op.RTVs
		r.dsv = op.DSV
	case OpSetDescriptorHeaps:
		r.heaps = op.Heaps
	case OpSetPipelineState:
		p, ok := op.Pipeline.(*wgpuPipeline)
		if !ok {
			return fmt.Errorf("pipeline %q from another device", op.Pipeline.Label())
		}
		r.pipeline = p
		r.dirty = true
	case OpSetRootSignature:
		rs, ok := op.RootSignature.(*wgpuRootSignature)
		if !ok {
			return fmt.Errorf("root signature from another device")
		}
		args := make([]rootArg, len(rs.desc.Parameters))
		for i, p := range rs.desc.Parameters {
			if p.Kind == RootParameterConstants {
				args[i].values = make([]byte, p.Num32BitValues*4)
				args[i].ringOffset = r.pushConstants(args[i].values)
				args[i].set = true
			}
		}
		if op.Compute {
			r.computeRoot, r.computeArgs = rs, args
		} else {
			r.graphicsRoot, r.graphicsArgs = rs, args
		}
		r.dirty = true
	case OpSetRootConstants:
		arg := r.arg(op.Compute, op.RootIndex)
		values := append([]byte(nil), arg.values...)
		copy(values[op.DestOffset*4:], op.Constants)
		arg.values = values
		arg.ringOffset = r.pushConstants(values)
		r.dirty = true
	case OpSetRootDescriptorTable:
		arg := r.arg(op.Compute, op.RootIndex)
		arg.table, arg.set = op.Table, true
		r.dirty = true
	case OpSetRootView:
		arg := r.arg(op.Compute, op.RootIndex)
		arg.view, arg.set = op.View, true
		r.dirty = true
	case OpSetVertexBuffer:
		r.vbs[op.Slot] = op.VertexView
		r.dirty = true
	case OpSetIndexBuffer:
		v := op.IndexView
		r.ib = &v
		r.dirty = true
	case OpSetViewport:
		v := op.Viewport
		r.viewport = &v
		r.dirty = true
	case OpSetScissor:
		s := op.Scissor
		r.scissor = &s
		r.dirty = true
	case OpDraw, OpDrawIndexed:
		return r.draw(op)
	case OpDispatch:
		return r.dispatch(op)
	}
	return nil
}

func (r *replay) arg(compute bool, index uint32) *rootArg {
	if compute {
		return &r.computeArgs[index]
	}
	return &r.graphicsArgs[index]
}

// pushConstants appends one aligned block to the ring and returns its dynamic offset.
func (r *replay) pushConstants(values []byte) uint32 {
	off := r.state.ringUsed
	block := make([]byte, ConstantBufferAlignment)
	copy(block, values)
	r.ring = append(r.ring, block...)
	r.state.ringUsed += ConstantBufferAlignment
	return uint32(off)
}

func (r *replay) endRenderPass() {
	if r.rpass != nil {
		r.rpass.End()
		r.rpass.Release()
		r.rpass = nil
	}
}

func (r *replay) endComputePass() {
	if r.cpass != nil {
		r.cpass.End()
		r.cpass.Release()
		r.cpass = nil
	}
}

func (r *replay) endPasses() {
	r.endRenderPass()
	r.endComputePass()
}

func nativeBuffer(res *Resource) (*wgpuBuffer, error) {
	b, ok := res.Buffer().(*wgpuBuffer)
	if !ok || b.buf == nil {
		return nil, fmt.Errorf("%v is not a live buffer of this device: %w", res, ErrInvalidHandle)
	}
	return b, nil
}

func nativeTexture(res *Resource) (*wgpuTexture, error) {
	t, ok := res.Texture().(*wgpuTexture)
	if !ok {
		return nil, fmt.Errorf("%v is not a texture of this device: %w", res, ErrInvalidHandle)
	}
	return t, nil
}

// stage writes the CPU shadow of an upload buffer range to the native buffer.
func (r *replay) stage(src *wgpuBuffer, off, size uint64) error {
	if src.shadow == nil {
		return nil
	}
	end := min(common.AlignUp(off+size, 4), uint64(len(src.shadow)))
	if err := r.d.queue.WriteBuffer(src.buf, off, src.shadow[off:end]); err != nil {
		return fmt.Errorf("stage %q: %w: %w", src.label, ErrNativeAPI, err)
	}
	return nil
}

func (r *replay) copyBuffer(op *Op) error {
	if op.Size == 0 {
		return nil
	}
	src, err := nativeBuffer(op.Src)
	if err != nil {
		return err
	}
	dst, err := nativeBuffer(op.Dst)
	if err != nil {
		return err
	}
	if err := r.stage(src, op.SrcOffset, op.Size); err != nil {
		return err
	}
	r.enc.CopyBufferToBuffer(src.buf, op.SrcOffset, dst.buf, op.DstOffset, common.AlignUp(op.Size, 4))
	return nil
}

func (r *replay) copyTexture(op *Op) error {
	src, err := nativeBuffer(op.Src)
	if err != nil {
		return err
	}
	dst, err := nativeTexture(op.Dst)
	if err != nil {
		return err
	}
	tex, err := dst.native()
	if err != nil {
		return err
	}
	fp := op.Footprint
	if err := r.stage(src, fp.Offset, uint64(fp.RowPitch)*uint64(fp.Height)); err != nil {
		return err
	}
	r.enc.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{
				Offset:       fp.Offset,
				BytesPerRow:  fp.RowPitch,
				RowsPerImage: fp.Height,
			},
			Buffer: src.buf,
		},
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: op.DstLayer},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{
			Width:              fp.Width,
			Height:             fp.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (r *replay) targetBound(handle CPUDescriptorHandle) bool {
	if r.dsv != nil && r.dsv.Ptr == handle.Ptr {
		return true
	}
	for _, h := range r.rtvs {
		if h.Ptr == handle.Ptr {
			return true
		}
	}
	return false
}

// clear defers a clear so the next pass on the target can fold it into its load op.
func (r *replay) clear(op *Op) error {
	desc, _, err := ResolveCPUDescriptor(op.Handle)
	if err != nil {
		return err
	}
	if r.rpass != nil && r.targetBound(op.Handle) {
		r.endRenderPass()
	}
	r.clears[op.Handle.Ptr] = pendingClear{
		res:   desc.Resource,
		view:  desc.View,
		color: op.Color,
		depth: op.Depth,
		isDSV: op.Kind == OpClearDepthStencil,
	}
	return nil
}

// flushClears turns pending clears into clear-only passes. A nil res flushes every pending
// clear, otherwise only the clears of res.
func (r *replay) flushClears(res *Resource) error {
	for ptr, c := range r.clears {
		if res != nil && c.res != res {
			continue
		}
		delete(r.clears, ptr)
		tex, err := nativeTexture(c.res)
		if err != nil {
			return err
		}
		view, err := tex.view(ViewDimensionTexture2D, c.view.BaseArrayLayer, 1, false)
		if err != nil {
			return err
		}
		desc := &wgpu.RenderPassDescriptor{}
		if c.isDSV {
			desc.DepthStencilAttachment = depthAttachment(view, tex.desc.Format, &c)
		} else {
			desc.ColorAttachments = []wgpu.RenderPassColorAttachment{colorAttachment(view, &c)}
		}
		pass := r.enc.BeginRenderPass(desc)
		pass.End()
		pass.Release()
	}
	return nil
}

func colorAttachment(view *wgpu.TextureView, c *pendingClear) wgpu.RenderPassColorAttachment {
	a := wgpu.RenderPassColorAttachment{
		View:    view,
		LoadOp:  wgpu.LoadOpLoad,
		StoreOp: wgpu.StoreOpStore,
	}
	if c != nil {
		a.LoadOp = wgpu.LoadOpClear
		a.ClearValue = wgpu.Color{R: float64(c.color[0]), G: float64(c.color[1]), B: float64(c.color[2]), A: float64(c.color[3])}
	}
	return a
}

func depthAttachment(view *wgpu.TextureView, f Format, c *pendingClear) *wgpu.RenderPassDepthStencilAttachment {
	a := &wgpu.RenderPassDepthStencilAttachment{
		View:         view,
		DepthLoadOp:  wgpu.LoadOpLoad,
		DepthStoreOp: wgpu.StoreOpStore,
	}
	if c != nil {
		a.DepthLoadOp = wgpu.LoadOpClear
		a.DepthClearValue = c.depth
	}
	if f == FormatD24UnormS8Uint {
		a.StencilLoadOp = wgpu.LoadOpClear
		a.StencilStoreOp = wgpu.StoreOpStore
	}
	return a
}

// targetView resolves a render-target or depth-stencil handle to a single-layer view.
func (r *replay) targetView(handle CPUDescriptorHandle) (*wgpu.TextureView, *wgpuTexture, error) {
	desc, _, err := ResolveCPUDescriptor(handle)
	if err != nil {
		return nil, nil, err
	}
	if desc.Resource == nil {
		return nil, nil, fmt.Errorf("render target handle %#x is empty: %w", handle.Ptr, ErrInvalidHandle)
	}
	tex, err := nativeTexture(desc.Resource)
	if err != nil {
		return nil, nil, err
	}
	view, err := tex.view(ViewDimensionTexture2D, desc.View.BaseArrayLayer, 1, false)
	return view, tex, err
}

func (r *replay) beginRenderPass() error {
	r.endComputePass()
	desc := &wgpu.RenderPassDescriptor{}
	for _, h := range r.rtvs {
		view, _, err := r.targetView(h)
		if err != nil {
			return err
		}
		var c *pendingClear
		if pc, ok := r.clears[h.Ptr]; ok {
			c = &pc
			delete(r.clears, h.Ptr)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, colorAttachment(view, c))
	}
	if r.dsv != nil {
		view, tex, err := r.targetView(*r.dsv)
		if err != nil {
			return err
		}
		var c *pendingClear
		if pc, ok := r.clears[r.dsv.Ptr]; ok {
			c = &pc
			delete(r.clears, r.dsv.Ptr)
		}
		desc.DepthStencilAttachment = depthAttachment(view, tex.desc.Format, c)
	}
	r.rpass = r.enc.BeginRenderPass(desc)
	r.dirty = true
	return nil
}

func (r *replay) draw(op *Op) error {
	if r.rpass == nil {
		if err := r.beginRenderPass(); err != nil {
			return err
		}
	}
	if r.dirty {
		if err := r.bindGraphics(); err != nil {
			return err
		}
		r.dirty = false
	}
	if op.Kind == OpDrawIndexed {
		r.rpass.DrawIndexed(op.Count, op.InstanceCount, op.Start, op.BaseVertex, op.StartInstance)
	} else {
		r.rpass.Draw(op.Count, op.InstanceCount, op.Start, op.StartInstance)
	}
	return nil
}

func (r *replay) bindGraphics() error {
	p := r.pipeline
	r.rpass.SetPipeline(p.render)
	for g := range r.graphicsRoot.layouts {
		bg, offsets, err := r.bindGroup(r.graphicsRoot, r.graphicsArgs, uint32(g))
		if err != nil {
			return err
		}
		r.rpass.SetBindGroup(uint32(g), bg, offsets)
	}
	for slot, v := range r.vbs {
		b, err := nativeBuffer(v.Resource)
		if err != nil {
			return err
		}
		r.rpass.SetVertexBuffer(slot, b.buf, v.Offset, v.Size)
	}
	if r.ib != nil {
		b, err := nativeBuffer(r.ib.Resource)
		if err != nil {
			return err
		}
		format := wgpu.IndexFormatUint32
		if r.ib.Format == FormatR16Uint {
			format = wgpu.IndexFormatUint16
		}
		r.rpass.SetIndexBuffer(b.buf, format, r.ib.Offset, r.ib.Size)
	}
	if r.viewport != nil {
		v := r.viewport
		r.rpass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if r.scissor != nil && !r.scissor.Empty() {
		s := r.scissor
		r.rpass.SetScissorRect(uint32(max(s.Left, 0)), uint32(max(s.Top, 0)), uint32(s.Right-max(s.Left, 0)), uint32(s.Bottom-max(s.Top, 0)))
	}
	return nil
}

func (r *replay) dispatch(op *Op) error {
	if r.cpass == nil {
		r.endRenderPass()
		r.cpass = r.enc.BeginComputePass(nil)
		r.dirty = true
	}
	r.cpass.SetPipeline(r.pipeline.dispatch)
	for g := range r.computeRoot.layouts {
		bg, offsets, err := r.bindGroup(r.computeRoot, r.computeArgs, uint32(g))
		if err != nil {
			return err
		}
		r.cpass.SetBindGroup(uint32(g), bg, offsets)
	}
	r.cpass.DispatchWorkgroups(op.Groups[0], op.Groups[1], op.Groups[2])
	return nil
}

// bindGroup builds (or fetches from the cache) the bind group of register space g from the
// current root arguments. Dynamic offsets are returned in binding order.
func (r *replay) bindGroup(rs *wgpuRootSignature, args []rootArg, g uint32) (*wgpu.BindGroup, []uint32, error) {
	layoutEntries := rs.entries[g]
	if len(layoutEntries) == 0 {
		return r.d.emptyGroup, nil, nil
	}

	entries := make(map[uint32]wgpu.BindGroupEntry, len(layoutEntries))
	dynamic := make(map[uint32]uint32)
	var key strings.Builder
	fmt.Fprintf(&key, "%p", rs.layouts[g])

	for i, p := range rs.desc.Parameters {
		arg := &args[i]
		switch p.Kind {
		case RootParameterConstants:
			if p.RegisterSpace != g {
				continue
			}
			b := Binding(RegisterClassCBV, p.ShaderRegister)
			entries[b] = wgpu.BindGroupEntry{Binding: b, Buffer: r.state.ring, Offset: 0, Size: uint64(p.Num32BitValues) * 4}
			dynamic[b] = arg.ringOffset
		case RootParameterSRV, RootParameterUAV, RootParameterCBV:
			if p.RegisterSpace != g {
				continue
			}
			if !arg.set {
				return nil, nil, fmt.Errorf("root parameter %d of %q not set", i, rs.desc.Label)
			}
			buf, err := nativeBuffer(arg.view.Resource)
			if err != nil {
				return nil, nil, err
			}
			size := arg.view.Size
			if size == 0 {
				size = common.AlignUp(buf.size, 4) - arg.view.Offset
			}
			b := Binding(p.Class(), p.ShaderRegister)
			entries[b] = wgpu.BindGroupEntry{Binding: b, Buffer: buf.buf, Offset: arg.view.Offset, Size: size}
			fmt.Fprintf(&key, "|%d:%d@%d+%d", b, arg.view.Resource.ID(), arg.view.Offset, size)
		case RootParameterDescriptorTable:
			if !tableUsesSpace(p, g) {
				continue
			}
			if !arg.set {
				return nil, nil, fmt.Errorf("descriptor table %d of %q not set", i, rs.desc.Label)
			}
			if err := r.tableEntries(p, arg.table, g, entries, &key); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, s := range rs.desc.StaticSamplers {
		if s.RegisterSpace != g {
			continue
		}
		b := Binding(RegisterClassSampler, s.ShaderRegister)
		entries[b] = wgpu.BindGroupEntry{Binding: b, Sampler: rs.statics[[2]uint32{g, b}]}
	}

	offsets := make([]uint32, 0, len(dynamic))
	flat := make([]wgpu.BindGroupEntry, 0, len(layoutEntries))
	for _, le := range layoutEntries {
		e, ok := entries[le.Binding]
		if !ok {
			return nil, nil, fmt.Errorf("%q space%d binding %d has no resource", rs.desc.Label, g, le.Binding)
		}
		flat = append(flat, e)
		if off, ok := dynamic[le.Binding]; ok {
			offsets = append(offsets, off)
			key.WriteString("|ring")
		}
	}
	fmt.Fprintf(&key, "|%p", r.state.ring)

	k := key.String()
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if bg, ok := r.d.bindGroups[k]; ok {
		return bg, offsets, nil
	}
	bg, err := r.d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   rs.desc.Label + " space" + strconv.Itoa(int(g)),
		Layout:  rs.layouts[g],
		Entries: flat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bind group %q space%d: %w: %w", rs.desc.Label, g, ErrNativeAPI, err)
	}
	if len(r.d.bindGroups) >= maxCachedBindGroups {
		for ck, cbg := range r.d.bindGroups {
			cbg.Release()
			delete(r.d.bindGroups, ck)
		}
		common.Logger().Debug("bind group cache dropped", "limit", maxCachedBindGroups)
	}
	r.d.bindGroups[k] = bg
	return bg, offsets, nil
}

func tableUsesSpace(p RootParameter, g uint32) bool {
	for _, rg := range p.Ranges {
		if rg.RegisterSpace == g {
			return true
		}
	}
	return false
}

// tableEntries resolves the descriptors of a table parameter that live in space g.
func (r *replay) tableEntries(p RootParameter, base GPUDescriptorHandle, g uint32, entries map[uint32]wgpu.BindGroupEntry, key *strings.Builder) error {
	var heap *DescriptorHeap
	var start uint32
	for _, h := range r.heaps {
		if i, ok := h.GPUIndex(base); ok {
			heap, start = h, i
			break
		}
	}
	if heap == nil {
		return fmt.Errorf("table handle %#x is not in a bound heap: %w", base.Ptr, ErrInvalidHandle)
	}

	for _, rg := range p.Ranges {
		if rg.RegisterSpace != g {
			continue
		}
		for n := uint32(0); n < rg.NumDescriptors; n++ {
			b := Binding(rg.Class, rg.BaseShaderRegister+n)
			desc := heap.Descriptor(start + rg.OffsetInDescriptorsFromTableStart + n)
			e := wgpu.BindGroupEntry{Binding: b}
			switch desc.Kind {
			case DescriptorSampler:
				s, err := r.d.sampler(desc.Sampler)
				if err != nil {
					return err
				}
				e.Sampler = s
				fmt.Fprintf(key, "|%d:s%v", b, desc.Sampler)
			case DescriptorSRV, DescriptorUAV, DescriptorCBV:
				if desc.Resource == nil {
					return fmt.Errorf("descriptor %d of table %#x is empty", rg.OffsetInDescriptorsFromTableStart+n, base.Ptr)
				}
				if desc.Resource.IsBuffer() {
					buf, err := nativeBuffer(desc.Resource)
					if err != nil {
						return err
					}
					off, size := desc.View.ByteRange(common.AlignUp(buf.size, 4))
					e.Buffer, e.Offset, e.Size = buf.buf, off, size
				} else {
					tex, err := nativeTexture(desc.Resource)
					if err != nil {
						return err
					}
					count := desc.View.ArrayLayers
					if rg.Dimension == ViewDimensionTextureCube {
						count = 6
					}
					view, err := tex.view(rg.Dimension, desc.View.BaseArrayLayer, count, tex.desc.Format.IsDepth())
					if err != nil {
						return err
					}
					e.TextureView = view
				}
				fmt.Fprintf(key, "|%d:%d#%d", b, desc.Resource.ID(), desc.Version)
			default:
				return fmt.Errorf("descriptor %d of table %#x is empty", rg.OffsetInDescriptorsFromTableStart+n, base.Ptr)
			}
			entries[b] = e
		}
	}
	return nil
}
