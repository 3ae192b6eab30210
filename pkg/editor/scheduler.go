package editor

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAutosaveDelay is the quiet period after the last edit before a
// debounced autosave fires.
const DefaultAutosaveDelay = 1000 * time.Millisecond

// WriteFunc persists content for a path.
type WriteFunc func(path, content string) error

// Scheduler debounces and sequences writes per path. Debounced saves
// coalesce rapid edits into a single write of the latest content; immediate
// saves cancel any pending timer and write synchronously. Per-path write
// locks guarantee at most one in-flight write per path; a request arriving
// while another is in flight waits for it, then skips if the content is
// already consistent.
type Scheduler struct {
	store   *Store
	write   WriteFunc
	emitter *Emitter
	delay   time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	locksMu    sync.Mutex
	writeLocks map[string]*sync.Mutex
}

// NewScheduler creates a save scheduler. A delay of zero selects
// DefaultAutosaveDelay.
func NewScheduler(store *Store, write WriteFunc, emitter *Emitter, delay time.Duration) *Scheduler {
	if delay == 0 {
		delay = DefaultAutosaveDelay
	}
	return &Scheduler{
		store:      store,
		write:      write,
		emitter:    emitter,
		delay:      delay,
		timers:     make(map[string]*time.Timer),
		writeLocks: make(map[string]*sync.Mutex),
	}
}

// ScheduleDebounced (re)starts the single pending autosave timer for path.
// Each call cancels any scheduled-but-not-yet-fired save for the same path,
// so only the most recent content is ever written.
func (s *Scheduler) ScheduleDebounced(path string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, exists := s.timers[path]; exists {
		timer.Stop()
	}

	s.timers[path] = time.AfterFunc(s.delay, func() {
		s.timersMu.Lock()
		delete(s.timers, path)
		s.timersMu.Unlock()

		if err := s.flushDebounced(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Autosave failed")
		}
	})
}

// SaveNow cancels any pending debounced save for path and writes content
// synchronously. The write reflects the caller's content exactly.
func (s *Scheduler) SaveNow(path, content string) error {
	s.cancel(path)
	return s.performSave(path, content)
}

// Cancel drops any pending debounced save for path. A write already in
// flight runs to completion.
func (s *Scheduler) Cancel(path string) {
	s.cancel(path)
}

// CancelAll drops every pending debounced save.
func (s *Scheduler) CancelAll() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	for _, timer := range s.timers {
		timer.Stop()
	}
	clear(s.timers)
}

// Pending reports whether a debounced save is scheduled for path.
func (s *Scheduler) Pending(path string) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[path]
	return ok
}

func (s *Scheduler) cancel(path string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, exists := s.timers[path]; exists {
		timer.Stop()
		delete(s.timers, path)
	}
}

// writeLock gets or creates the write lock for a path
func (s *Scheduler) writeLock(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[path]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[path] = lock
	return lock
}

// flushDebounced writes the buffer's current content under the path's
// write lock. Content is resolved only after the lock is acquired, so
// intermediate edits coalesce and an immediate save that won the lock
// first is never overwritten with older content.
func (s *Scheduler) flushDebounced(path string) error {
	lock := s.writeLock(path)
	lock.Lock()
	defer lock.Unlock()

	buf, ok := s.store.Get(path)
	if !ok || !buf.Dirty() {
		return nil
	}
	return s.writeLocked(path, buf.Content)
}

// performSave issues a single write under the path's write lock. On success
// the buffer's saved content is updated and the dirty indicator refreshed;
// on failure the buffer is left dirty so the next attempt retries with
// current content.
func (s *Scheduler) performSave(path, content string) error {
	lock := s.writeLock(path)
	lock.Lock()
	defer lock.Unlock()
	return s.writeLocked(path, content)
}

func (s *Scheduler) writeLocked(path, content string) error {
	// A save that completed while we were waiting may have made this
	// request redundant.
	if buf, ok := s.store.Get(path); ok && buf.SavedContent == content {
		return nil
	}

	if err := s.write(path, content); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Write failed")
		s.emitter.Emit(EventSaveFailed, SaveFailedPayload{
			EventPayload: stamp(),
			Path:         path,
			Err:          err,
		})
		return err
	}

	buf, ok := s.store.SetSaved(path, content)
	if !ok {
		// Buffer evicted by a workspace switch mid-write; the file on
		// disk is still correct.
		log.Debug().Str("path", path).Msg("Saved path no longer buffered")
		return nil
	}

	s.emitter.Emit(EventFileSaved, FileSavedPayload{
		EventPayload: stamp(),
		Path:         path,
	})
	s.emitter.Emit(EventDirtyChanged, DirtyChangedPayload{
		EventPayload: stamp(),
		Path:         path,
		Dirty:        buf.Dirty(),
	})

	log.Debug().Str("path", path).Int("bytes", len(content)).Msg("Buffer saved")
	return nil
}
