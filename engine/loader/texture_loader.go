package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/memory"
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// Texture is a sampled 2D texture resident on the GPU.
type Texture struct {
	// UID is the content hash the loader deduplicates by.
	UID  uint64
	Name string

	Resource *gpu.Resource
	Width    uint32
	Height   uint32

	// SRV is one shader resource view, bound as a single-entry descriptor table.
	SRV *gpu.DescriptorAllocation
}

func (t *Texture) release() {
	if t.SRV != nil {
		t.SRV.Free()
	}
	t.Resource.Release()
}

// textureLoader is the implementation of the TextureLoader interface.
type textureLoader struct {
	mu sync.Mutex

	device      gpu.Device
	up          *uploader
	descriptors *gpu.DescriptorAllocator
	textures    *handle.StoragePool[Texture]
	decodePool  worker.DynamicWorkerPool
	fallback    handle.Handle

	capacity      int
	lists         int
	decodeWorkers int
	format        gpu.Format
}

// TextureLoader decodes images, uploads them and hands out handles to their views. Textures are
// deduplicated by a hash of their pixels.
type TextureLoader interface {
	// GetOrCreateTexture decodes and uploads an image source, or returns the texture already
	// holding the same pixels.
	//
	// Parameters:
	//   - ctx: bounds the upload wait
	//   - src: the encoded image
	//
	// Returns:
	//   - handle.Handle: the texture handle
	//   - error: a read, decode, pool or upload error
	GetOrCreateTexture(ctx context.Context, src *common.TextureSource) (handle.Handle, error)

	// GetOrCreateTextureData uploads decoded RGBA pixels.
	GetOrCreateTextureData(ctx context.Context, name string, data common.TextureData) (handle.Handle, error)

	// LoadTextures decodes every source on the decode worker pool, then uploads them in order.
	// A nil source yields the fallback texture.
	//
	// Parameters:
	//   - ctx: bounds the upload waits
	//   - srcs: the encoded images
	//
	// Returns:
	//   - []handle.Handle: one handle per source
	//   - error: the first decode or upload error
	LoadTextures(ctx context.Context, srcs []*common.TextureSource) ([]handle.Handle, error)

	// Get returns the texture behind h.
	Get(h handle.Handle) (*Texture, error)

	// Fallback returns the 1x1 white texture used for untextured draws.
	Fallback() handle.Handle

	// Count returns the number of resident textures, the fallback included.
	Count() int

	// Clear releases every texture except the fallback. The GPU must be idle.
	Clear()

	// Shutdown releases every texture, the decode workers and the command-list pools.
	Shutdown(ctx context.Context) error
}

var _ TextureLoader = &textureLoader{}

// NewTextureLoader creates a TextureLoader and uploads its fallback texture.
//
// Parameters:
//   - ctx: bounds the fallback upload
//   - device: the device
//   - direct: the direct queue
//   - copyQueue: the copy queue
//   - descriptors: the shader-visible CBV/SRV/UAV allocator shared with the renderer
//   - options: a variadic list of TextureLoaderBuilderOption functions
//
// Returns:
//   - TextureLoader: the loader
//   - error: a pool creation or upload error
func NewTextureLoader(ctx context.Context, device gpu.Device, direct, copyQueue *gpu.CommandQueue, descriptors *gpu.DescriptorAllocator, options ...TextureLoaderBuilderOption) (TextureLoader, error) {
	l := &textureLoader{
		device:        device,
		descriptors:   descriptors,
		capacity:      256,
		lists:         2,
		decodeWorkers: 4,
		format:        gpu.FormatRGBA8UnormSRGB,
	}
	for _, opt := range options {
		opt(l)
	}
	textures, err := handle.NewStoragePool[Texture](memory.NewSystemAllocator(0), l.capacity)
	if err != nil {
		return nil, err
	}
	l.textures = textures
	if l.up, err = newUploader(device, direct, copyQueue, l.lists); err != nil {
		return nil, err
	}
	l.decodePool = worker.NewDynamicWorkerPool(l.decodeWorkers, l.capacity, time.Second)

	white := common.TextureData{Pixels: []byte{255, 255, 255, 255}, Width: 1, Height: 1}
	if l.fallback, err = l.GetOrCreateTextureData(ctx, "fallback white", white); err != nil {
		l.decodePool.Stop()
		_ = l.up.release(ctx)
		return nil, err
	}
	return l, nil
}

func textureUID(data common.TextureData) uint64 {
	var dims [8]byte
	dims[0], dims[1], dims[2], dims[3] = byte(data.Width), byte(data.Width>>8), byte(data.Width>>16), byte(data.Width>>24)
	dims[4], dims[5], dims[6], dims[7] = byte(data.Height), byte(data.Height>>8), byte(data.Height>>16), byte(data.Height>>24)
	return common.ContentHash(dims[:], data.Pixels)
}

func (l *textureLoader) GetOrCreateTexture(ctx context.Context, src *common.TextureSource) (handle.Handle, error) {
	data, err := src.Decode()
	if err != nil {
		return handle.Handle{}, fmt.Errorf("texture %q: %w", src.Name, err)
	}
	return l.GetOrCreateTextureData(ctx, src.Name, data)
}

func (l *textureLoader) GetOrCreateTextureData(ctx context.Context, name string, data common.TextureData) (handle.Handle, error) {
	if data.Width == 0 || data.Height == 0 || len(data.Pixels) != int(data.Width*data.Height*4) {
		return handle.Handle{}, fmt.Errorf("texture %q: %d bytes for %dx%d RGBA: %w", name, len(data.Pixels), data.Width, data.Height, gpu.ErrOutOfSpace)
	}
	uid := textureUID(data)

	l.mu.Lock()
	defer l.mu.Unlock()
	var found handle.Handle
	l.textures.Each(func(h handle.Handle, t *Texture) bool {
		if t.UID == uid {
			found = h
			return false
		}
		return true
	})
	if !found.IsZero() {
		return found, nil
	}

	h, err := l.textures.Alloc()
	if err != nil {
		return handle.Handle{}, fmt.Errorf("texture %q: %w", name, err)
	}
	tex, err := l.upload(ctx, name, data)
	if err != nil {
		l.textures.Free(h)
		return handle.Handle{}, err
	}
	tex.UID = uid
	if err := l.textures.InsertVal(h, *tex); err != nil {
		tex.release()
		l.textures.Free(h)
		return handle.Handle{}, err
	}
	common.Logger().Info("texture loaded", "texture", name, "width", data.Width, "height", data.Height)
	return h, nil
}

func (l *textureLoader) upload(ctx context.Context, name string, data common.TextureData) (*Texture, error) {
	tex := &Texture{Name: name, Width: data.Width, Height: data.Height}
	desc := gpu.TextureDesc{
		Label:       name,
		Width:       data.Width,
		Height:      data.Height,
		ArrayLayers: 1,
		MipLevels:   1,
		SampleCount: 1,
		Format:      l.format,
		Dimension:   gpu.TextureDimension2D,
	}
	err := l.up.upload(ctx, func(list *gpu.CommandList, s *staged) error {
		res, up, err := gpu.CreateCommittedTextureForData(l.device, list, desc, data.Pixels, gpu.ResourceStatePixelShaderResource)
		if err != nil {
			return err
		}
		tex.Resource = res
		s.add(res, up, gpu.ResourceStatePixelShaderResource)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload texture %q: %w", name, err)
	}
	if tex.SRV, err = l.descriptors.Alloc(1); err != nil {
		tex.Resource.Release()
		return nil, fmt.Errorf("texture %q descriptor: %w", name, err)
	}
	l.descriptors.Heap().CreateShaderResourceView(tex.Resource, gpu.ViewDesc{Dimension: gpu.ViewDimensionTexture2D, Format: l.format}, tex.SRV.CPUHandle(0))
	return tex, nil
}

func (l *textureLoader) LoadTextures(ctx context.Context, srcs []*common.TextureSource) ([]handle.Handle, error) {
	decoded := make([]common.TextureData, len(srcs))
	errs := make([]error, len(srcs))
	var wg sync.WaitGroup
	for i, src := range srcs {
		if src == nil {
			continue
		}
		wg.Add(1)
		l.decodePool.SubmitTask(worker.Task{
			ID:      i,
			Payload: src.Name,
			Do: func() (any, error) {
				defer wg.Done()
				decoded[i], errs[i] = src.Decode()
				return nil, errs[i]
			},
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("decode textures: %w", err)
	}

	out := make([]handle.Handle, len(srcs))
	for i, src := range srcs {
		if src == nil {
			out[i] = l.fallback
			continue
		}
		h, err := l.GetOrCreateTextureData(ctx, src.Name, decoded[i])
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (l *textureLoader) Get(h handle.Handle) (*Texture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.textures.Get(h)
}

func (l *textureLoader) Fallback() handle.Handle {
	return l.fallback
}

func (l *textureLoader) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.textures.Used()
}

func (l *textureLoader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var drop []handle.Handle
	l.textures.Each(func(h handle.Handle, t *Texture) bool {
		if h != l.fallback {
			t.release()
			drop = append(drop, h)
		}
		return true
	})
	for _, h := range drop {
		l.textures.Free(h)
	}
}

func (l *textureLoader) Shutdown(ctx context.Context) error {
	l.Clear()
	l.mu.Lock()
	if t, err := l.textures.Take(l.fallback); err == nil {
		t.release()
		l.textures.Free(l.fallback)
	}
	l.mu.Unlock()
	l.decodePool.Stop()
	return l.up.release(ctx)
}
