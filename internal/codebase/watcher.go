package codebase

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher supplements the file index's 60s TTL with proactive invalidation:
// any create/write/remove/rename under the workspace drops the cache
// immediately instead of waiting for the next TTL expiry.
type Watcher struct {
	watcher *fsnotify.Watcher
	index   *Index
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
}

// NewWatcher creates a watcher over workDir's directory tree that
// invalidates idx on change. The initial registration skips directories in
// the fixed ignore set; a path created later is added to the watch list
// when its create event arrives, whether or not it is in that set.
func NewWatcher(workDir string, idx *Index) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addTreeRecursive(w, workDir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		index:   idx,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for filesystem changes in the background.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.index.Invalidate()
			}
			if ev.Op&fsnotify.Create != 0 {
				// A newly created directory needs its own watch registered
				// so renames/writes inside it are also seen.
				_ = w.watcher.Add(ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("codebase watcher error")
		}
	}
}

// Stop stops the watcher and releases its underlying fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}

func addTreeRecursive(w *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) error {
		return w.Add(dir)
	})
}
