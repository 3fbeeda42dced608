package shader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/fsnotify/fsnotify"
)

// watcher is the implementation of the Watcher interface.
type watcher struct {
	fw       *fsnotify.Watcher
	dir      string
	onChange func(name string)
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Watcher watches a shader source directory and reports every .wgsl file that is written,
// created, renamed or removed.
type Watcher interface {
	// Dir returns the watched directory.
	Dir() string

	// Close stops watching. The change callback is not called after Close returns.
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher starts watching dir.
//
// Parameters:
//   - dir: the shader source directory
//   - onChange: called from the watch goroutine with the program name of a changed source
//
// Returns:
//   - Watcher: the running watcher
//   - error: an error if the directory cannot be watched
func NewWatcher(dir string, onChange func(name string)) (Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader: create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("shader: watch %s: %w", dir, err)
	}
	w := &watcher{
		fw:       fw,
		dir:      dir,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer w.wg.Done()
	log := common.Logger().With("dir", w.dir)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			base := filepath.Base(event.Name)
			name, ok := strings.CutSuffix(base, ".wgsl")
			if !ok {
				continue
			}
			log.Debug("shader source changed", "shader", name, "op", event.Op.String())
			w.onChange(name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn("shader watcher error", "err", err)
		}
	}
}

func (w *watcher) Dir() string { return w.dir }

func (w *watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}
