package editor

import "sync"

// FileBuffer is the in-memory editing state of one open file. Content is
// mutated by every edit; SavedContent only by a successful save or a
// successful external reload.
type FileBuffer struct {
	Path         string
	Content      string
	SavedContent string
}

// Dirty reports whether the buffer has unsaved edits.
func (b FileBuffer) Dirty() bool {
	return b.Content != b.SavedContent
}

// Store holds all open file buffers keyed by absolute path. All field
// mutation happens inside the store's lock, so a read-modify-write of a
// buffer entry is never split across a suspension point. Buffers are never
// evicted individually; Clear wipes the whole store on workspace switch.
type Store struct {
	mu      sync.RWMutex
	buffers map[string]FileBuffer
}

// NewStore creates an empty buffer store
func NewStore() *Store {
	return &Store{
		buffers: make(map[string]FileBuffer),
	}
}

// Get retrieves a buffer by path
func (s *Store) Get(path string) (FileBuffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[path]
	return buf, ok
}

// Has checks whether a buffer exists for path
func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buffers[path]
	return ok
}

// Put stores a buffer
func (s *Store) Put(buf FileBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[buf.Path] = buf
}

// SetContent updates a buffer's content, returning the updated buffer.
func (s *Store) SetContent(path, content string) (FileBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[path]
	if !ok {
		return FileBuffer{}, false
	}
	buf.Content = content
	s.buffers[path] = buf
	return buf, true
}

// SetSaved records content as durably written, returning the updated buffer.
// Content is left alone so edits made while the write was in flight keep
// the buffer dirty.
func (s *Store) SetSaved(path, saved string) (FileBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[path]
	if !ok {
		return FileBuffer{}, false
	}
	buf.SavedContent = saved
	s.buffers[path] = buf
	return buf, true
}

// Reload overwrites both content and saved content with disk content,
// leaving the buffer clean.
func (s *Store) Reload(path, content string) (FileBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[path]
	if !ok {
		return FileBuffer{}, false
	}
	buf.Content = content
	buf.SavedContent = content
	s.buffers[path] = buf
	return buf, true
}

// ForEach calls fn for every buffer. It iterates over a snapshot so fn may
// perform store operations or I/O without holding the lock.
func (s *Store) ForEach(fn func(FileBuffer)) {
	s.mu.RLock()
	snapshot := make([]FileBuffer, 0, len(s.buffers))
	for _, buf := range s.buffers {
		snapshot = append(snapshot, buf)
	}
	s.mu.RUnlock()

	for _, buf := range snapshot {
		fn(buf)
	}
}

// Clear removes all buffers. Switching workspaces invalidates every open
// path at once.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[string]FileBuffer)
}

// Len returns the number of open buffers
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers)
}
