package shader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overrideTemp = `//@srender:include temp_vertex
//@srender:include temp_constants
//@srender:register b0 0 frame temp_constants

@vertex
fn vs_override(in: TempVertex) -> @builtin(position) vec4<f32> {
    return frame.view_projection * vec4<f32>(in.position, 1.0);
}

@fragment
fn fs_override() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 1.0, 1.0);
}
`

func TestLibraryEmbeddedPrograms(t *testing.T) {
	lib, err := NewLibrary()
	require.NoError(t, err)
	defer lib.Close()

	assert.Equal(t, []string{ProgramShadow, ProgramSkinning, ProgramTemp, ProgramUI, ProgramWorld}, lib.Names())

	a, err := lib.Get(ProgramTemp)
	require.NoError(t, err)
	b, err := lib.Get(ProgramTemp)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := lib.Reload(ProgramTemp)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	_, err = lib.Get("missing")
	assert.ErrorIs(t, err, ErrShaderNotFound)
}

func TestLibraryOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp.wgsl"), []byte(overrideTemp), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.wgsl"), []byte(overrideTemp), 0o644))

	lib, err := NewLibrary(WithOverrideDir(dir))
	require.NoError(t, err)
	defer lib.Close()

	s, err := lib.Get(ProgramTemp)
	require.NoError(t, err)
	assert.Equal(t, "vs_override", s.EntryPoint(ShaderTypeVertex))
	assert.NoError(t, s.ValidateRootSignature(TempRootSignature()))

	world, err := lib.Get(ProgramWorld)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", world.EntryPoint(ShaderTypeVertex))

	assert.Contains(t, lib.Names(), "extra")
}

func TestLibraryAttachesBuildOutput(t *testing.T) {
	var calls int
	b := NewBuilder(WithBuildDir(t.TempDir()), WithCompiler(countingCompiler(&calls)))
	lib, err := NewLibrary(WithShaderBuilder(b))
	require.NoError(t, err)

	s, err := lib.Get(ProgramUI)
	require.NoError(t, err)
	assert.Len(t, s.Binary(), 4)
	assert.Equal(t, s.Binary(), s.Code(ShaderTypeVertex).Binary)
	assert.Equal(t, 1, calls)
}

func TestLibraryWatchReportsChangedSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "temp.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(overrideTemp), 0o644))

	var calls int
	b := NewBuilder(WithBuildDir(t.TempDir()), WithCompiler(countingCompiler(&calls)))
	lib, err := NewLibrary(WithOverrideDir(dir), WithWatch(true), WithShaderBuilder(b))
	require.NoError(t, err)
	defer lib.Close()

	_, err = lib.Get(ProgramTemp)
	require.NoError(t, err)
	assert.Empty(t, lib.TakeChanged())

	require.NoError(t, os.WriteFile(path, []byte(overrideTemp+"\n// edited\n"), 0o644))

	var changed []string
	require.Eventually(t, func() bool {
		changed = append(changed, lib.TakeChanged()...)
		return len(changed) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, changed, ProgramTemp)

	_, err = lib.Get(ProgramTemp)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "an edited source is rebuilt")
}
