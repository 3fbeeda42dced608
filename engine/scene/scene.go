package scene

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/camera"
	"github.com/Carmen-Shannon/srender/engine/game_object"
	"github.com/Carmen-Shannon/srender/engine/handle"
	"github.com/Carmen-Shannon/srender/engine/light"
	"github.com/Carmen-Shannon/srender/engine/memory"
	"github.com/Carmen-Shannon/srender/engine/renderer"
	"github.com/Carmen-Shannon/srender/engine/renderer/animator"
)

// Scene is a collection of game objects viewed through one camera. Each tick Update advances
// the camera, the objects and their animators; Frame then turns the enabled objects into the
// parallel slices a renderer draws. Scenes can be hot-swapped via the Active flag.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the name of the scene.
	Name() string

	// Active reports whether the engine renders this scene.
	Active() bool

	// SetActive sets whether the engine renders this scene.
	SetActive(active bool)

	// Camera returns the camera the scene is viewed through.
	Camera() camera.Camera

	// SetCamera replaces the camera.
	SetCamera(cam camera.Camera)

	// Add registers an object. An object without an ID is assigned the next free one.
	//
	// Parameters:
	//   - obj: the object
	//
	// Returns:
	//   - handle.Handle: the object's handle in this scene
	//   - error: handle.ErrFull when the scene is at capacity
	Add(obj game_object.GameObject) (handle.Handle, error)

	// Get returns the object behind h.
	//
	// Returns:
	//   - game_object.GameObject: the object
	//   - error: a stale or invalid handle
	Get(h handle.Handle) (game_object.GameObject, error)

	// Remove unregisters the object behind h. An animator instance the object used is left to
	// its owner.
	//
	// Returns:
	//   - bool: false if h was not live
	Remove(h handle.Handle) bool

	// Count returns the number of registered objects.
	Count() int

	// Clear removes every object.
	Clear()

	// AddLight adds a free-standing light.
	AddLight(l light.Light)

	// Light returns the position of the light the frame is shadowed from: the first enabled
	// free-standing light, else the first enabled light attached to an enabled object.
	//
	// Returns:
	//   - [3]float32: the light position
	//   - bool: false when the scene has no enabled light
	Light() ([3]float32, bool)

	// Update advances the camera, every object and every animator by dt seconds. Animators are
	// advanced in parallel on the scene's workers.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Update(dt float32)

	// Frame fills in with the camera matrices and one model, transform and animator entry per
	// enabled object, in registration order. The slices of in are reused. Animator instances
	// are pointed at their object's model index; instances of disabled objects are pointed
	// nowhere so they are not skinned.
	//
	// Parameters:
	//   - in: the frame input to fill
	Frame(in *renderer.FrameInput)

	// Close stops the update workers. Update must not be called afterwards. Calling Close
	// again is a no-op.
	Close()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool
	cam    camera.Camera

	objects  *handle.StoragePool[game_object.GameObject]
	capacity int
	nextID   uint64

	// animators counts the objects bound to each animator
	animators map[animator.Animator]int
	lights    []light.Light

	updateWorkers int
	updatePool    worker.DynamicWorkerPool

	// animScratch is reused by Frame
	animScratch []animator.Animator

	// initial holds WithObjects until the pool exists
	initial []game_object.GameObject
	closed  bool
}

var _ Scene = &scene{}

// NewScene creates a scene viewed through cam. It panics when cam is nil.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
//   - error: the object pool could not be created
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) (Scene, error) {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	s := &scene{
		mu:            &sync.RWMutex{},
		name:          name,
		cam:           cam,
		capacity:      4096,
		nextID:        1,
		animators:     make(map[animator.Animator]int),
		updateWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}

	var err error
	if s.objects, err = handle.NewStoragePool[game_object.GameObject](memory.NewSystemAllocator(0), s.capacity); err != nil {
		return nil, fmt.Errorf("scene %q: %w", name, err)
	}
	s.updatePool = worker.NewDynamicWorkerPool(s.updateWorkers, 256, time.Second)
	for _, obj := range s.initial {
		if _, err := s.Add(obj); err != nil {
			s.updatePool.Stop()
			return nil, err
		}
	}
	common.Logger().Info("scene created", "name", name, "objects", len(s.initial), "capacity", s.capacity)
	s.initial = nil
	return s, nil
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	if cam == nil {
		panic("scene: SetCamera requires a non-nil Camera")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Add(obj game_object.GameObject) (handle.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.objects.AllocVal(obj)
	if err != nil {
		return handle.Handle{}, fmt.Errorf("scene %q add: %w", s.name, err)
	}
	if obj.ID() == 0 {
		obj.SetID(s.nextID)
		s.nextID++
	} else if id := obj.ID(); id >= s.nextID {
		s.nextID = id + 1
	}
	if a, _ := obj.Animator(); a != nil {
		s.animators[a]++
	}
	return h, nil
}

func (s *scene) Get(h handle.Handle) (game_object.GameObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, err := s.objects.Get(h)
	if err != nil {
		return nil, err
	}
	return *obj, nil
}

func (s *scene) Remove(h handle.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, err := s.objects.Take(h)
	if err != nil {
		return false
	}
	s.objects.Free(h)
	if a, i := obj.Animator(); a != nil {
		a.SetModelIndex(i, -1)
		if s.animators[a]--; s.animators[a] <= 0 {
			delete(s.animators, a)
		}
	}
	return true
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects.Used()
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for a := range s.animators {
		for i := range a.InstanceCount() {
			a.SetModelIndex(i, -1)
		}
	}
	s.objects.Clear()
	clear(s.animators)
}

func (s *scene) AddLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) Light() ([3]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lights {
		if l.Enabled() {
			return l.Position(), true
		}
	}
	var pos [3]float32
	found := false
	s.objects.Each(func(_ handle.Handle, obj *game_object.GameObject) bool {
		if l := (*obj).Light(); l != nil && l.Enabled() && (*obj).Enabled() {
			pos, found = l.Position(), true
			return false
		}
		return true
	})
	return pos, found
}

func (s *scene) Update(dt float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cam.Update(dt)
	s.objects.Each(func(_ handle.Handle, obj *game_object.GameObject) bool {
		(*obj).Update(dt)
		return true
	})

	var wg sync.WaitGroup
	id := 0
	for a := range s.animators {
		wg.Add(1)
		id++
		s.updatePool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				a.Advance(dt)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (s *scene) Frame(in *renderer.FrameInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.View = s.cam.ViewMatrix()
	in.Projection = s.cam.ProjectionMatrix()
	in.Models = in.Models[:0]
	in.Transforms = in.Transforms[:0]
	in.Animations = in.Animations[:0]

	for a := range s.animators {
		for i := range a.InstanceCount() {
			a.SetModelIndex(i, -1)
		}
	}
	seen := s.animScratch[:0]
	s.objects.Each(func(_ handle.Handle, obj *game_object.GameObject) bool {
		o := *obj
		if !o.Enabled() {
			return true
		}
		if a, i := o.Animator(); a != nil {
			a.SetModelIndex(i, len(in.Models))
			if !containsAnimator(seen, a) {
				seen = append(seen, a)
			}
		}
		in.Models = append(in.Models, o.Instance())
		in.Transforms = append(in.Transforms, o.Transform())
		return true
	})
	in.Animations = append(in.Animations, seen...)
	s.animScratch = seen
}

func containsAnimator(list []animator.Animator, a animator.Animator) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func (s *scene) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.updatePool.Stop()
}
