package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/hibiscusapp/hibiscus/pkg/fsio"
)

// ChangeCallback receives a batch of changed absolute paths. Delivery is
// best-effort: batches may repeat or overlap, so consumers must treat
// notifications idempotently.
type ChangeCallback func(paths []string)

// Watcher monitors a workspace root for file changes. Raw fsnotify events
// are filtered, collected into a pending set, and flushed as one batch
// after a quiet period, so an editor save (temp write + rename) or a bulk
// operation produces a single notification instead of an event storm.
type Watcher struct {
	watcher            *fsnotify.Watcher
	root               string
	stabilityThreshold time.Duration
	onChanges          ChangeCallback

	done     chan struct{}
	stopOnce sync.Once

	pendingMu  sync.Mutex
	pending    map[string]struct{}
	flushTimer *time.Timer
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Root               string
	StabilityThreshold time.Duration
	OnChanges          ChangeCallback
}

// NewWatcher creates a watcher for a workspace root
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 300 * time.Millisecond
	}

	return &Watcher{
		watcher:            fsWatcher,
		root:               config.Root,
		stabilityThreshold: config.StabilityThreshold,
		onChanges:          config.OnChanges,
		done:               make(chan struct{}),
		pending:            make(map[string]struct{}),
	}, nil
}

// Start begins watching the root recursively
func (w *Watcher) Start() error {
	if err := w.addDirectoryRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	go w.eventLoop()

	log.Info().Str("root", w.root).Msg("Workspace watcher started")
	return nil
}

// Stop stops the watcher and drops any pending notification
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.pendingMu.Lock()
	if w.flushTimer != nil {
		w.flushTimer.Stop()
	}
	clear(w.pending)
	w.pendingMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Str("root", w.root).Msg("Workspace watcher stopped")
	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	relevant := event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
	if !relevant {
		return
	}

	// A created directory needs to be watched from now on
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
		}
	}

	w.collect(event.Name)
}

// collect adds a path to the pending batch and (re)starts the flush timer.
func (w *Watcher) collect(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}

	if w.flushTimer != nil {
		w.flushTimer.Stop()
	}
	w.flushTimer = time.AfterFunc(w.stabilityThreshold, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	clear(w.pending)
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	log.Debug().Int("count", len(paths)).Msg("Workspace changes detected")
	if w.onChanges != nil {
		w.onChanges(paths)
	}
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher
func (w *Watcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if w.shouldIgnore(walkPath) {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.watcher.Add(walkPath); err != nil {
			log.Warn().Err(err).Str("path", walkPath).Msg("Failed to watch path")
		}
		return nil
	})
}

// shouldIgnore filters out metadata, VCS noise and in-progress save temps
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, fsio.SaveSuffix) || strings.HasSuffix(base, ".tmp") {
		return true
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if part[0] == '.' || part == "node_modules" || part == "__pycache__" {
			return true
		}
	}
	return false
}
