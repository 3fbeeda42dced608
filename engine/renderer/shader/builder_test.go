package shader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCompiler returns a compiler that records its calls and emits one SPIR-V word.
func countingCompiler(calls *int) CompileFunc {
	return func(source string) ([]byte, error) {
		*calls++
		return []byte{0x03, 0x02, 0x23, 0x07}, nil
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyStale, "always": PolicyAlways, "stale": PolicyStale, "never": PolicyNever} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestBuilderStaleEmbeddedSource(t *testing.T) {
	dir := t.TempDir()
	var calls int
	b := NewBuilder(WithBuildDir(dir), WithCompiler(countingCompiler(&calls)))
	src := Source{Name: "world", Text: "@vertex fn vs_main() {}", Embedded: true}

	assert.True(t, b.IsStale(src))
	out, err := b.Build(src)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, 1, calls)
	assert.FileExists(t, filepath.Join(dir, "world.spv"))

	out2, err := b.Build(src)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
	assert.Equal(t, 1, calls, "unchanged source must reuse the build output")

	src.Text += "\n// edited"
	_, err = b.Build(src)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "content change must rebuild")

	b.MarkStale("world")
	assert.True(t, b.IsStale(src))
	_, err = b.Build(src)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, b.IsStale(src))
}

func TestBuilderStaleDiskSourceUsesModTime(t *testing.T) {
	dir := t.TempDir()
	var calls int
	b := NewBuilder(WithBuildDir(dir), WithCompiler(countingCompiler(&calls)))
	built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := Source{Name: "ui", Text: "x", ModTime: built}

	_, err := b.Build(src)
	require.NoError(t, err)
	assert.False(t, b.IsStale(src))

	src.ModTime = built.Add(-time.Hour)
	assert.False(t, b.IsStale(src), "older source is not stale")

	src.ModTime = built.Add(time.Second)
	assert.True(t, b.IsStale(src))
	_, err = b.Build(src)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	var rec buildRecord
	data, err := os.ReadFile(filepath.Join(dir, "ui.toml"))
	require.NoError(t, err)
	require.NoError(t, toml.Unmarshal(data, &rec))
	assert.Equal(t, "ui", rec.Name)
	assert.True(t, rec.SourceModTime.Equal(src.ModTime))
	assert.Equal(t, 4, rec.OutputSize)
}

func TestBuilderPolicyNever(t *testing.T) {
	dir := t.TempDir()
	var calls int
	never := NewBuilder(WithBuildDir(dir), WithPolicy(PolicyNever), WithCompiler(countingCompiler(&calls)))
	src := Source{Name: "temp", Text: "x", Embedded: true}

	out, err := never.Build(src)
	require.NoError(t, err)
	assert.Nil(t, out, "missing output falls back to the WGSL source")
	assert.Equal(t, 0, calls)

	_, err = NewBuilder(WithBuildDir(dir), WithCompiler(countingCompiler(&calls))).Build(src)
	require.NoError(t, err)

	src.Text = "changed"
	out, err = never.Build(src)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, 1, calls)
}

func TestBuilderPolicyAlways(t *testing.T) {
	var calls int
	b := NewBuilder(WithBuildDir(t.TempDir()), WithPolicy(PolicyAlways), WithCompiler(countingCompiler(&calls)))
	src := Source{Name: "shadow", Text: "x", Embedded: true}
	for range 3 {
		_, err := b.Build(src)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestBuilderCompileErrors(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder(WithBuildDir(t.TempDir()), WithCompiler(func(string) ([]byte, error) { return nil, boom }))
	_, err := b.Build(Source{Name: "world", Text: "x", Embedded: true})
	assert.ErrorIs(t, err, boom)

	b = NewBuilder(WithBuildDir(t.TempDir()), WithCompiler(func(string) ([]byte, error) { return []byte{1, 2, 3}, nil }))
	_, err = b.Build(Source{Name: "world", Text: "x", Embedded: true})
	assert.ErrorContains(t, err, "SPIR-V words")
}
