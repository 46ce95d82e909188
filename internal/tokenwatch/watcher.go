package tokenwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tokenward/pkg/logging"
)

// DefaultPollInterval is the fallback polling cadence when fsnotify is
// not available.
const DefaultPollInterval = 2 * time.Second

// DefaultDebounceInterval is the time to wait before notifying after
// the last change is detected.
const DefaultDebounceInterval = 500 * time.Millisecond

// WatcherConfig holds configuration for the token file watcher.
type WatcherConfig struct {
	// Path is the token file to watch.
	Path string

	// PollInterval is the fallback polling interval when fsnotify is
	// not available.
	PollInterval time.Duration

	// OnChange is called when the token file is written, created, or
	// removed.
	OnChange func()
}

// Watcher monitors the token file for changes. It uses fsnotify for
// efficient file system monitoring with a fallback to polling for
// environments where fsnotify is not available or reliable.
//
// The parent directory is watched rather than the file itself so that
// removal and re-creation (logout and login from another process) stay
// visible; a file-level watch detaches silently when the inode goes
// away.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	// fsWatcher is the fsnotify watcher (nil when polling)
	fsWatcher *fsnotify.Watcher

	// stopCh signals the watcher to stop
	stopCh chan struct{}

	// running indicates if the watcher is active
	running bool

	// lastModTime and exists record the previous observation for
	// fallback polling
	lastModTime time.Time
	exists      bool

	// debounceTimer helps prevent rapid successive notifications
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a new token file watcher.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Watcher{config: config}, nil
}

// Start begins watching for token file changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	// Try to use fsnotify for efficient file watching
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("TokenWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	w.fsWatcher = watcher

	dir := filepath.Dir(w.config.Path)
	if err := w.fsWatcher.Add(dir); err != nil {
		logging.Warn("TokenWatcher", "Failed to watch directory %s, falling back to polling: %v",
			dir, err)
		w.fsWatcher.Close()
		w.fsWatcher = nil
		go w.pollForChanges()
		return nil
	}

	// Capture channels before releasing lock to avoid race conditions
	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors

	// Start the fsnotify event processor
	go w.processEvents(eventsCh, errorsCh)

	logging.Info("TokenWatcher", "Started watching %s for token changes", w.config.Path)
	return nil
}

// processEvents handles fsnotify events.
// The channels are passed as parameters to avoid race conditions with Stop().
func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("TokenWatcher", err, "fsnotify error")
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// The watch covers the whole directory; only the token file matters
	if filepath.Base(event.Name) != filepath.Base(w.config.Path) {
		return
	}

	// Remove and rename count: a logout elsewhere deletes the file
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("TokenWatcher", "Token file changed: %s", event.Name)

	w.triggerChangeDebounced()
}

// triggerChangeDebounced notifies after a debounce period. This prevents
// multiple rapid notifications when a change produces several events at
// once (e.g. create immediately followed by write).
func (w *Watcher) triggerChangeDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	// Cancel existing timer if present
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	// Start new debounce timer
	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

// pollForChanges implements fallback polling when fsnotify is not available.
func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Initialize the last observation
	w.updateModTime()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("TokenWatcher", "Token file change detected via polling")
				w.triggerChangeDebounced()
			}
		}
	}
}

// updateModTime records the current modification time of the token file,
// or its absence.
func (w *Watcher) updateModTime() {
	info, err := os.Stat(w.config.Path)
	if err != nil {
		w.exists = false
		return
	}
	w.exists = true
	w.lastModTime = info.ModTime()
}

// checkForChanges reports whether the token file changed since the last
// observation. Appearance, disappearance, and newer modification times
// all count as changes.
func (w *Watcher) checkForChanges() bool {
	info, err := os.Stat(w.config.Path)
	if err != nil {
		if w.exists {
			w.exists = false
			return true
		}
		return false
	}

	modTime := info.ModTime()
	changed := !w.exists || modTime.After(w.lastModTime)
	w.exists = true
	w.lastModTime = modTime
	return changed
}

// Stop gracefully stops the token file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	// Cancel any pending debounce timer
	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	// Close fsnotify watcher if present
	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("TokenWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Info("TokenWatcher", "Stopped token file watcher")
	return nil
}

// IsRunning returns whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
