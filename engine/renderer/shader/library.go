package shader

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/srender/common"
)

//go:embed shaders/*.wgsl
var embeddedShaders embed.FS

// Program names of the embedded shaders.
const (
	ProgramShadow   = "shadow"
	ProgramWorld    = "world"
	ProgramSkinning = "skinning"
	ProgramTemp     = "temp"
	ProgramUI       = "ui"
)

// ErrShaderNotFound is returned when no source exists for a program name.
var ErrShaderNotFound = errors.New("shader: not found")

// library is the implementation of the Library interface.
type library struct {
	overrideDir string
	builder     Builder
	watch       bool
	watcher     Watcher

	mu      sync.Mutex
	shaders map[string]Shader
	dirty   map[string]bool
}

// Library loads shader programs by name. A <name>.wgsl file in the override directory takes
// precedence over the embedded program of the same name.
type Library interface {
	// Get returns a loaded program, loading and building it on first use.
	//
	// Parameters:
	//   - name: the program name
	//
	// Returns:
	//   - Shader: the program
	//   - error: ErrShaderNotFound, a pre-processing error, or a build error
	Get(name string) (Shader, error)

	// Reload drops the cached program and loads it again.
	Reload(name string) (Shader, error)

	// Names returns every available program name, sorted.
	Names() []string

	// TakeChanged returns the programs whose sources changed since the last call, sorted, and
	// clears the set.
	TakeChanged() []string

	// Close stops the source watcher, if any.
	Close() error
}

var _ Library = &library{}

// LibraryOption is a functional option for configuring a Library.
type LibraryOption func(*library)

// WithOverrideDir sets a directory whose .wgsl files replace the embedded programs.
//
// Parameters:
//   - dir: the source directory, empty for embedded programs only
//
// Returns:
//   - LibraryOption: option function to apply
func WithOverrideDir(dir string) LibraryOption {
	return func(l *library) {
		l.overrideDir = dir
	}
}

// WithShaderBuilder compiles every loaded program through b and attaches the build output.
//
// Parameters:
//   - b: the builder, nil to use the WGSL sources directly
//
// Returns:
//   - LibraryOption: option function to apply
func WithShaderBuilder(b Builder) LibraryOption {
	return func(l *library) {
		l.builder = b
	}
}

// WithWatch watches the override directory and reports edited programs through TakeChanged.
//
// Parameters:
//   - enabled: if true, start a Watcher on the override directory
//
// Returns:
//   - LibraryOption: option function to apply
func WithWatch(enabled bool) LibraryOption {
	return func(l *library) {
		l.watch = enabled
	}
}

// NewLibrary creates a Library.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - Library: the library
//   - error: an error if the override directory cannot be watched
func NewLibrary(opts ...LibraryOption) (Library, error) {
	l := &library{
		shaders: make(map[string]Shader),
		dirty:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.watch && l.overrideDir != "" {
		w, err := NewWatcher(l.overrideDir, l.sourceChanged)
		if err != nil {
			return nil, err
		}
		l.watcher = w
	}
	return l, nil
}

// sourceChanged drops the cached program and marks its build stale.
func (l *library) sourceChanged(name string) {
	if l.builder != nil {
		l.builder.MarkStale(name)
	}
	l.mu.Lock()
	delete(l.shaders, name)
	l.dirty[name] = true
	l.mu.Unlock()
}

// readSource finds the source of name in the override directory or the embedded set.
func (l *library) readSource(name string) (Source, error) {
	if l.overrideDir != "" {
		path := filepath.Join(l.overrideDir, name+".wgsl")
		info, err := os.Stat(path)
		if err == nil {
			text, err := os.ReadFile(path)
			if err != nil {
				return Source{}, fmt.Errorf("shader: read %s: %w", path, err)
			}
			return Source{Name: name, Text: string(text), ModTime: info.ModTime()}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("shader: stat %s: %w", path, err)
		}
	}
	text, err := embeddedShaders.ReadFile("shaders/" + name + ".wgsl")
	if err != nil {
		return Source{}, fmt.Errorf("%w: %q", ErrShaderNotFound, name)
	}
	return Source{Name: name, Text: string(text), Embedded: true}, nil
}

func (l *library) load(name string) (Shader, error) {
	src, err := l.readSource(name)
	if err != nil {
		return nil, err
	}
	s, err := NewShader(name, src.Text)
	if err != nil {
		return nil, err
	}
	if l.builder != nil {
		start := time.Now()
		src.Text = s.Source()
		bin, err := l.builder.Build(src)
		if err != nil {
			return nil, err
		}
		s.SetBinary(bin)
		common.Logger().Debug("shader loaded", "shader", name, "embedded", src.Embedded, "binary", len(bin) > 0, "elapsed", time.Since(start))
	}
	return s, nil
}

func (l *library) Get(name string) (Shader, error) {
	l.mu.Lock()
	s, ok := l.shaders[name]
	l.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := l.load(name)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.shaders[name] = s
	l.mu.Unlock()
	return s, nil
}

func (l *library) Reload(name string) (Shader, error) {
	l.mu.Lock()
	delete(l.shaders, name)
	l.mu.Unlock()
	return l.Get(name)
}

func (l *library) Names() []string {
	var names []string
	entries, _ := fs.ReadDir(embeddedShaders, "shaders")
	for _, e := range entries {
		if n, ok := strings.CutSuffix(e.Name(), ".wgsl"); ok {
			names = append(names, n)
		}
	}
	if l.overrideDir != "" {
		entries, _ := os.ReadDir(l.overrideDir)
		for _, e := range entries {
			if n, ok := strings.CutSuffix(e.Name(), ".wgsl"); ok && !e.IsDir() {
				names = append(names, n)
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (l *library) TakeChanged() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.dirty) == 0 {
		return nil
	}
	names := make([]string, 0, len(l.dirty))
	for n := range l.dirty {
		names = append(names, n)
	}
	clear(l.dirty)
	slices.Sort(names)
	return names
}

func (l *library) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
