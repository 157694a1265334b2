package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DocumentSuffix marks files the watcher treats as scene documents.
const DocumentSuffix = ".scene.json"

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// ChangedHandler is called with the absolute path and content of a
// document after it was written.
type ChangedHandler func(path string, content []byte)

// DocumentWatcher re-reads scene documents when they change on disk.
// Directories are watched for any *.scene.json; single files can be added
// outside those directories.
type DocumentWatcher struct {
	watcher  *fsnotify.Watcher
	onChange ChangedHandler
	debounce time.Duration

	mu     sync.Mutex
	dirs   map[string]bool
	files  map[string]bool
	timers map[string]*time.Timer
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New creates a watcher and starts its event loop.
func New(onChange ChangedHandler, debounce time.Duration) (*DocumentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &DocumentWatcher{
		watcher:  watcher,
		onChange: onChange,
		debounce: debounce,
		dirs:     make(map[string]bool),
		files:    make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

// WatchDir reports every document in dir.
func (w *DocumentWatcher) WatchDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	w.mu.Lock()
	w.dirs[abs] = true
	w.mu.Unlock()
	return w.watcher.Add(abs)
}

// WatchFile reports changes to a single document.
func (w *DocumentWatcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = true
	w.mu.Unlock()

	// fsnotify watches dirs for file events
	return w.watcher.Add(filepath.Dir(abs))
}

// StopWatching forgets a single file.
func (w *DocumentWatcher) StopWatching(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	delete(w.files, abs)
	w.mu.Unlock()
}

// Close stops the watcher and cancels pending callbacks. Later calls
// return the first call's result.
func (w *DocumentWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = map[string]*time.Timer{}
		w.mu.Unlock()
		close(w.done)
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}

func (w *DocumentWatcher) wants(abs string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[abs] {
		return true
	}
	return strings.HasSuffix(abs, DocumentSuffix) && w.dirs[filepath.Dir(abs)]
}

func (w *DocumentWatcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			if !w.wants(absPath) {
				continue
			}
			w.schedule(absPath)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("scene watcher: error: %v", err)
		}
	}
}

func (w *DocumentWatcher) schedule(absPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, exists := w.timers[absPath]; exists {
		t.Stop()
	}
	w.timers[absPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, absPath)
		w.mu.Unlock()

		content, err := os.ReadFile(absPath)
		if err != nil {
			log.Printf("scene watcher: read file %s: %v", absPath, err)
			return
		}
		if w.onChange != nil {
			w.onChange(absPath, content)
		}
	})
}
