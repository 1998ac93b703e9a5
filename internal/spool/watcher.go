package spool

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TaskCallback is called with the path of a task descriptor that is
// ready to run. The watcher waits for it to return before dispatching
// the next descriptor, so runs never overlap.
type TaskCallback func(descriptorPath string) error

// Watcher monitors a spool directory for new task descriptors.
// Descriptors are YAML files dropped into the directory; each one
// triggers a single pipeline run and is then moved aside.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	callback TaskCallback
	debounce time.Duration

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	ready  chan []string
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the given spool directory.
func NewWatcher(dir string, callback TaskCallback) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond, // Batch rapid writes from editors and scp
		pending:  make(map[string]struct{}),
		ready:    make(chan []string, 16),
	}, nil
}

// SetDebounce sets the debounce duration for batching file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start processes descriptors already in the spool directory, then
// watches for new ones until the context is canceled. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	existing, err := w.scanExisting()
	if err != nil {
		return err
	}
	for _, path := range existing {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.dispatch(path)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("spool watch error: %v", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-w.ready:
			for _, path := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.dispatch(path)
			}
		}
	}
}

// Stop stops watching for file changes
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) scanExisting() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isDescriptor(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDescriptor(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	// Reset or start debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) > 0 {
		w.ready <- paths
	}
}

// dispatch runs the callback for one descriptor and moves the file
// aside so it is never picked up twice. Callback errors mark the
// descriptor failed but never stop the watcher.
func (w *Watcher) dispatch(path string) {
	if _, err := os.Stat(path); err != nil {
		return // Moved or deleted since the event fired
	}

	err := w.callback(path)

	suffix := ".done"
	if err != nil {
		suffix = ".failed"
		log.Printf("run for %s failed: %v", filepath.Base(path), err)
	}
	if renameErr := os.Rename(path, path+suffix); renameErr != nil {
		log.Printf("marking %s processed: %v", filepath.Base(path), renameErr)
	}
}

func isDescriptor(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// String describes the watcher for log output.
func (w *Watcher) String() string {
	return fmt.Sprintf("spool watcher on %s", w.dir)
}
