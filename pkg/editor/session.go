// Package editor implements the editor session core: the in-memory buffer
// store, the debounced save scheduler, and the session controller that
// keeps open-file buffers consistent with a concurrently-changing
// filesystem.
package editor

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/hibiscusapp/hibiscus/pkg/tree"
)

// FailedLoadContent is placed in a buffer when opening a file fails, so
// the user sees an explicit marker instead of stale content. The buffer is
// left clean to keep autosave from ever writing the marker to disk.
const FailedLoadContent = "Failed to load file."

// ReadFunc reads the current disk content for a path.
type ReadFunc func(path string) (string, error)

// Session orchestrates open, edit, save and external-reload operations over
// the buffer store. It owns the active-file pointer and resolves races
// between overlapping async operations: opens are last-issued-wins via a
// monotonic request counter, saves are serialized per path by the
// scheduler, and external reloads never overwrite unsaved local edits.
type Session struct {
	store   *Store
	sched   *Scheduler
	read    ReadFunc
	emitter *Emitter

	// openSeq invalidates stale in-flight opens: a disk read that
	// resolves after a newer open has been issued is discarded.
	openSeq atomic.Int64

	mu         sync.Mutex
	root       string
	activeNode tree.Node
	activePath string
	hasActive  bool
}

// NewSession creates a session controller over store and sched. read
// supplies disk content for opens and external reconciliation.
func NewSession(store *Store, sched *Scheduler, read ReadFunc, emitter *Emitter) *Session {
	return &Session{
		store:   store,
		sched:   sched,
		read:    read,
		emitter: emitter,
	}
}

// Emitter returns the session's event emitter for subscribing to editor
// events.
func (s *Session) Emitter() *Emitter {
	return s.emitter
}

// Reset clears all buffers, pending saves and the active file, then points
// the session at a new workspace root. A new root invalidates every open
// path at once.
func (s *Session) Reset(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Supersede any in-flight open; its read must not repopulate the
	// cleared store or activate a file under the new root.
	s.openSeq.Add(1)
	s.sched.CancelAll()
	s.store.Clear()
	s.root = root
	s.activeNode = tree.Node{}
	s.activePath = ""
	s.hasActive = false
}

// Root returns the current workspace root.
func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// AbsPath resolves a tree node's workspace-relative path against the root.
func (s *Session) AbsPath(rel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.absPathLocked(rel)
}

func (s *Session) absPathLocked(rel string) string {
	if s.root == "" {
		return filepath.FromSlash(rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Open makes node the active file, reading it from disk unless a buffer
// for its path already exists. Nodes without a path (folders) are ignored.
// When opens overlap, only the last-issued one may mutate session state;
// slower reads from superseded opens are discarded.
func (s *Session) Open(node tree.Node) {
	if node.Path == "" {
		return
	}

	requestID := s.openSeq.Add(1)

	s.mu.Lock()
	path := s.absPathLocked(node.Path)
	if buf, ok := s.store.Get(path); ok {
		// Cache hit: no disk read, no suspension, activate directly.
		s.activateLocked(node, path, buf)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	content, err := s.read(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load file")
		content = FailedLoadContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != s.openSeq.Load() {
		// A newer open superseded this one while the read was in
		// flight; applying it now would show the wrong file.
		log.Debug().Str("path", path).Int64("request_id", requestID).Msg("Discarding stale open")
		return
	}

	buf := FileBuffer{Path: path, Content: content, SavedContent: content}
	s.store.Put(buf)
	s.activateLocked(node, path, buf)
}

func (s *Session) activateLocked(node tree.Node, path string, buf FileBuffer) {
	s.activeNode = node
	s.activePath = path
	s.hasActive = true

	s.emitter.Emit(EventFileOpened, FileOpenedPayload{
		EventPayload: stamp(),
		Path:         path,
		NodeID:       node.ID,
		Content:      buf.Content,
		Dirty:        buf.Dirty(),
	})
}

// OnChange applies an edit to the active buffer and schedules a debounced
// autosave. Without an active file it is a no-op.
func (s *Session) OnChange(newContent string) {
	s.mu.Lock()
	if !s.hasActive {
		s.mu.Unlock()
		return
	}
	path := s.activePath
	s.mu.Unlock()

	buf, ok := s.store.SetContent(path, newContent)
	if !ok {
		return
	}

	s.emitter.Emit(EventContentChanged, ContentChangedPayload{
		EventPayload: stamp(),
		Path:         path,
		Content:      newContent,
	})
	s.emitter.Emit(EventDirtyChanged, DirtyChangedPayload{
		EventPayload: stamp(),
		Path:         path,
		Dirty:        buf.Dirty(),
	})

	s.sched.ScheduleDebounced(path)
}

// SaveCurrent immediately saves the active file if it is dirty. The active
// path is resolved at call time, never from a snapshot, so a save gesture
// always targets the file the user is looking at.
func (s *Session) SaveCurrent() error {
	s.mu.Lock()
	if !s.hasActive {
		s.mu.Unlock()
		return nil
	}
	path := s.activePath
	s.mu.Unlock()

	buf, ok := s.store.Get(path)
	if !ok || !buf.Dirty() {
		return nil
	}
	return s.sched.SaveNow(path, buf.Content)
}

// SaveAll issues one immediate save per dirty buffer. Saves run
// concurrently; SaveAll returns once every one has settled, with per-file
// failures reported individually and joined for the caller.
func (s *Session) SaveAll() error {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	s.store.ForEach(func(buf FileBuffer) {
		if !buf.Dirty() {
			return
		}
		wg.Add(1)
		go func(path, content string) {
			defer wg.Done()
			if err := s.sched.SaveNow(path, content); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("save %q: %w", path, err))
				errMu.Unlock()
			}
		}(buf.Path, buf.Content)
	})

	wg.Wait()
	return errors.Join(errs...)
}

// Close flushes every dirty buffer best-effort. Each failure is logged
// independently and does not block the remaining buffers.
func (s *Session) Close() error {
	s.sched.CancelAll()

	var errs []error
	s.store.ForEach(func(buf FileBuffer) {
		if !buf.Dirty() {
			return
		}
		if err := s.sched.SaveNow(buf.Path, buf.Content); err != nil {
			log.Error().Err(err).Str("path", buf.Path).Msg("Failed to flush buffer on shutdown")
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Reconcile resolves external filesystem changes against open buffers. For
// each open buffer whose path matches a changed path, disk content is
// re-read and compared: identical to the saved content means the change was
// self-triggered and is skipped; a clean buffer silently reloads; a dirty
// buffer keeps its local edits and surfaces a conflict warning. Duplicate
// or redundant notifications are safe no-ops.
func (s *Session) Reconcile(changedPaths []string) {
	if len(changedPaths) == 0 {
		return
	}

	changed := make(map[string]struct{}, len(changedPaths))
	for _, p := range changedPaths {
		changed[normalizePath(p)] = struct{}{}
	}

	s.store.ForEach(func(buf FileBuffer) {
		if _, ok := changed[normalizePath(buf.Path)]; !ok {
			return
		}
		s.reconcileBuffer(buf.Path)
	})
}

func (s *Session) reconcileBuffer(path string) {
	diskContent, err := s.read(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to re-read changed file; buffer left untouched")
		return
	}

	// Re-fetch after the read; an edit may have landed in between.
	buf, ok := s.store.Get(path)
	if !ok {
		return
	}

	if diskContent == buf.SavedContent {
		// Self-triggered by our own write, nothing to do.
		return
	}

	if buf.Dirty() {
		// Local edits take precedence and are never silently destroyed.
		log.Warn().Str("path", path).Msg("File changed on disk but buffer has unsaved edits; keeping local content")
		s.emitter.Emit(EventReloadConflict, ReloadConflictPayload{
			EventPayload: stamp(),
			Path:         path,
		})
		return
	}

	updated, ok := s.store.Reload(path, diskContent)
	if !ok {
		return
	}

	log.Info().Str("path", path).Msg("Reloaded file from disk")
	s.emitter.Emit(EventFileReloaded, FileReloadedPayload{
		EventPayload: stamp(),
		Path:         path,
		Content:      updated.Content,
	})

	s.mu.Lock()
	isActive := s.hasActive && s.activePath == path
	s.mu.Unlock()

	if isActive {
		s.emitter.Emit(EventContentChanged, ContentChangedPayload{
			EventPayload: stamp(),
			Path:         path,
			Content:      updated.Content,
		})
	}
}

// ActiveNode returns the active tree node, if any.
func (s *Session) ActiveNode() (tree.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeNode, s.hasActive
}

// ActivePath returns the active file's absolute path, if any.
func (s *Session) ActivePath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePath, s.hasActive
}

// ActiveBuffer returns the active file's buffer, if any.
func (s *Session) ActiveBuffer() (FileBuffer, bool) {
	s.mu.Lock()
	path, has := s.activePath, s.hasActive
	s.mu.Unlock()

	if !has {
		return FileBuffer{}, false
	}
	return s.store.Get(path)
}

// DirtyPaths returns the paths of all buffers with unsaved edits.
func (s *Session) DirtyPaths() []string {
	var paths []string
	s.store.ForEach(func(buf FileBuffer) {
		if buf.Dirty() {
			paths = append(paths, buf.Path)
		}
	})
	return paths
}

// HasDirty reports whether any buffer has unsaved edits.
func (s *Session) HasDirty() bool {
	return len(s.DirtyPaths()) > 0
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
