package parser

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay coalesces the burst of events an editor save produces.
const DefaultDebounceDelay = 100 * time.Millisecond

// PlanWatcher reports changes to a fixed set of plan files. It watches the
// parent directories, so files replaced by rename (as most editors save)
// keep being reported.
type PlanWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	changes chan string
	errors  chan error
	done    chan struct{}

	mu            sync.Mutex
	debounceDelay time.Duration
	pending       map[string]*time.Timer
	closed        bool
}

// NewPlanWatcher starts watching paths.
func NewPlanWatcher(paths []string, debounce time.Duration) (*PlanWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no plan files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounceDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PlanWatcher{
		watcher:       watcher,
		files:         make(map[string]bool),
		changes:       make(chan string, 16),
		errors:        make(chan error, 4),
		done:          make(chan struct{}),
		debounceDelay: debounce,
		pending:       make(map[string]*time.Timer),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		pw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go pw.processEvents()
	return pw, nil
}

// Changes delivers the absolute path of a plan file after it settles.
func (pw *PlanWatcher) Changes() <-chan string {
	return pw.changes
}

// Errors delivers watcher errors. Errors are dropped when nobody reads them.
func (pw *PlanWatcher) Errors() <-chan error {
	return pw.errors
}

func (pw *PlanWatcher) processEvents() {
	for {
		select {
		case <-pw.done:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !pw.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				pw.debounce(filepath.Clean(event.Name))
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case pw.errors <- err:
			default:
			}
		}
	}
}

func (pw *PlanWatcher) debounce(path string) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return
	}
	if timer, ok := pw.pending[path]; ok {
		timer.Stop()
	}
	pw.pending[path] = time.AfterFunc(pw.debounceDelay, func() {
		pw.mu.Lock()
		delete(pw.pending, path)
		pw.mu.Unlock()

		select {
		case pw.changes <- path:
		case <-pw.done:
		default:
			// a change for this burst is already queued
		}
	})
}

// Close stops the watcher and releases resources.
func (pw *PlanWatcher) Close() error {
	pw.mu.Lock()
	if pw.closed {
		pw.mu.Unlock()
		return nil
	}
	pw.closed = true
	for _, timer := range pw.pending {
		timer.Stop()
	}
	pw.pending = nil
	pw.mu.Unlock()

	close(pw.done)
	return pw.watcher.Close()
}
