package shader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsWGSLChanges(t *testing.T) {
	dir := t.TempDir()
	names := make(chan string, 16)
	w, err := NewWatcher(dir, func(name string) { names <- name })
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, dir, w.Dir())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.wgsl"), []byte("x"), 0o644))

	select {
	case name := <-names:
		assert.Equal(t, "world", name)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func(string) {})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), func(string) {})
	assert.Error(t, err)
}
