package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/gogpu/naga"
	"github.com/pelletier/go-toml/v2"
)

// Policy selects when the Builder recompiles a shader.
type Policy string

const (
	// PolicyAlways recompiles every shader on every load.
	PolicyAlways Policy = "always"
	// PolicyStale recompiles a shader when its source changed since the recorded build.
	PolicyStale Policy = "stale"
	// PolicyNever only reads existing build outputs. A missing output falls back to the WGSL
	// source.
	PolicyNever Policy = "never"
)

// DefaultBuildDir is the build output directory used when none is configured.
const DefaultBuildDir = "shaders_built"

// ParsePolicy parses a rebuild policy name. The empty string selects PolicyStale.
//
// Parameters:
//   - s: "always", "stale", "never" or ""
//
// Returns:
//   - Policy: the parsed policy
//   - error: an error for any other value
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyStale, nil
	case PolicyAlways, PolicyStale, PolicyNever:
		return p, nil
	default:
		return "", fmt.Errorf("shader: unknown rebuild policy %q (want always, stale or never)", s)
	}
}

// CompileFunc turns WGSL source into a build output.
type CompileFunc func(source string) ([]byte, error)

// compileSPIRV compiles WGSL to little-endian SPIR-V words with naga.
func compileSPIRV(source string) ([]byte, error) {
	return naga.Compile(source)
}

// Source is one shader source handed to the Builder.
type Source struct {
	// Name is the program name and the base name of its build outputs.
	Name string
	// Text is the annotated WGSL source.
	Text string
	// ModTime is the modification time of an on-disk source, zero for embedded sources.
	ModTime time.Time
	// Embedded marks sources compiled into the binary. Their staleness is decided by content
	// hash since they carry no modification time.
	Embedded bool
}

// buildRecord is the TOML metadata written next to every build output.
type buildRecord struct {
	Name          string    `toml:"name"`
	SourceHash    string    `toml:"source_hash"`
	SourceModTime time.Time `toml:"source_mod_time"`
	BuiltAt       time.Time `toml:"built_at"`
	OutputSize    int       `toml:"output_size"`
}

// builder is the implementation of the Builder interface.
type builder struct {
	dir     string
	policy  Policy
	compile CompileFunc
	now     func() time.Time

	mu    sync.Mutex
	stale map[string]bool
}

// Builder compiles pre-processed WGSL into SPIR-V build outputs under a build directory and
// records when each output was produced.
type Builder interface {
	// Build returns the build output of src, compiling it first when the policy asks for it.
	//
	// Parameters:
	//   - src: the source; its Text must already be pre-processed
	//
	// Returns:
	//   - []byte: the build output, or nil when PolicyNever finds none
	//   - error: a compile or file system error
	Build(src Source) ([]byte, error)

	// MarkStale forces the next Build of name to recompile under PolicyStale.
	MarkStale(name string)

	// IsStale reports whether Build would recompile src.
	IsStale(src Source) bool

	// Policy returns the rebuild policy.
	Policy() Policy

	// Dir returns the build output directory.
	Dir() string
}

var _ Builder = &builder{}

// BuilderOption is a functional option for configuring a Builder.
type BuilderOption func(*builder)

// WithBuildDir sets the directory build outputs and metadata are written to.
//
// Parameters:
//   - dir: the output directory (default shaders_built)
//
// Returns:
//   - BuilderOption: option function to apply
func WithBuildDir(dir string) BuilderOption {
	return func(b *builder) {
		b.dir = dir
	}
}

// WithPolicy sets the rebuild policy.
//
// Parameters:
//   - p: the policy (default PolicyStale)
//
// Returns:
//   - BuilderOption: option function to apply
func WithPolicy(p Policy) BuilderOption {
	return func(b *builder) {
		b.policy = p
	}
}

// WithCompiler replaces the naga WGSL to SPIR-V compiler.
//
// Parameters:
//   - fn: the compiler
//
// Returns:
//   - BuilderOption: option function to apply
func WithCompiler(fn CompileFunc) BuilderOption {
	return func(b *builder) {
		b.compile = fn
	}
}

// NewBuilder creates a Builder.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - Builder: the builder
func NewBuilder(opts ...BuilderOption) Builder {
	b := &builder{
		dir:     DefaultBuildDir,
		policy:  PolicyStale,
		compile: compileSPIRV,
		now:     time.Now,
		stale:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *builder) Policy() Policy { return b.policy }
func (b *builder) Dir() string    { return b.dir }

func (b *builder) MarkStale(name string) {
	b.mu.Lock()
	b.stale[name] = true
	b.mu.Unlock()
}

func (b *builder) outputPath(name string) string {
	return filepath.Join(b.dir, name+".spv")
}

func (b *builder) recordPath(name string) string {
	return filepath.Join(b.dir, name+".toml")
}

func sourceHash(text string) string {
	return strconv.FormatUint(common.ContentHash([]byte(text)), 16)
}

func (b *builder) readRecord(name string) (buildRecord, error) {
	var rec buildRecord
	data, err := os.ReadFile(b.recordPath(name))
	if err != nil {
		return rec, err
	}
	if err := toml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("shader: build record %s: %w", b.recordPath(name), err)
	}
	return rec, nil
}

func (b *builder) IsStale(src Source) bool {
	switch b.policy {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	}

	b.mu.Lock()
	marked := b.stale[src.Name]
	b.mu.Unlock()
	if marked {
		return true
	}
	if _, err := os.Stat(b.outputPath(src.Name)); err != nil {
		return true
	}
	rec, err := b.readRecord(src.Name)
	if err != nil {
		return true
	}
	if src.Embedded {
		return rec.SourceHash != sourceHash(src.Text)
	}
	return src.ModTime.After(rec.SourceModTime)
}

func (b *builder) Build(src Source) ([]byte, error) {
	log := common.Logger().With("shader", src.Name)

	if !b.IsStale(src) {
		out, err := os.ReadFile(b.outputPath(src.Name))
		switch {
		case err == nil:
			return out, nil
		case b.policy == PolicyNever && errors.Is(err, fs.ErrNotExist):
			log.Debug("no build output, using WGSL source")
			return nil, nil
		default:
			return nil, fmt.Errorf("shader: read build output of %q: %w", src.Name, err)
		}
	}

	out, err := b.compile(src.Text)
	if err != nil {
		return nil, fmt.Errorf("shader: compile %q: %w", src.Name, err)
	}
	if len(out)%4 != 0 {
		return nil, fmt.Errorf("shader: compile %q: output of %d bytes is not whole SPIR-V words", src.Name, len(out))
	}

	rec := buildRecord{
		Name:          src.Name,
		SourceHash:    sourceHash(src.Text),
		SourceModTime: src.ModTime,
		BuiltAt:       b.now(),
		OutputSize:    len(out),
	}
	meta, err := toml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("shader: encode build record of %q: %w", src.Name, err)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("shader: create build dir: %w", err)
	}
	if err := os.WriteFile(b.outputPath(src.Name), out, 0o644); err != nil {
		return nil, fmt.Errorf("shader: write build output of %q: %w", src.Name, err)
	}
	if err := os.WriteFile(b.recordPath(src.Name), meta, 0o644); err != nil {
		return nil, fmt.Errorf("shader: write build record of %q: %w", src.Name, err)
	}

	b.mu.Lock()
	delete(b.stale, src.Name)
	b.mu.Unlock()

	log.Info("shader rebuilt", "policy", b.policy, "bytes", len(out))
	return out, nil
}
