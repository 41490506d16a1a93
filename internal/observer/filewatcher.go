package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// FileChangeCallback is called once per debounced burst of changes to the watched file
type FileChangeCallback func(path string)

// FileWatcher monitors a single file for changes.
// The parent directory is watched so editors that replace the file are seen.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback FileChangeCallback
	debounce time.Duration
	logger   *log.Logger

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
}

// NewFileWatcher creates a watcher for path
func NewFileWatcher(path string, callback FileChangeCallback, logger *log.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	return &FileWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		logger:   logger,
	}, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) {
	ctx, fw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				fw.handleEvent(event)
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn("file watcher error", "path", fw.path, "err", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (fw *FileWatcher) Stop() {
	if fw.cancel != nil {
		fw.cancel()
	}
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	fw.watcher.Close()
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	// Reset or start debounce timer
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, fw.flush)
}

func (fw *FileWatcher) flush() {
	if fw.callback != nil {
		fw.callback(fw.path)
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounce = d
}
