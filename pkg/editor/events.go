package editor

import (
	"sync"
	"time"
)

// Event represents event types emitted by the editor session
type Event string

const (
	EventFileOpened     Event = "editor.file.opened"
	EventContentChanged Event = "editor.content.changed"
	EventDirtyChanged   Event = "editor.dirty.changed"
	EventFileSaved      Event = "editor.file.saved"
	EventSaveFailed     Event = "editor.save.failed"
	EventFileReloaded   Event = "editor.file.reloaded"
	EventReloadConflict Event = "editor.reload.conflict"
)

// EventHandler is a function that handles editor events
type EventHandler func(payload interface{})

// EventPayload is the base payload embedded in every event
type EventPayload struct {
	Timestamp time.Time
}

// FileOpenedPayload is emitted when a file becomes the active file
type FileOpenedPayload struct {
	EventPayload
	Path    string
	NodeID  string
	Content string
	Dirty   bool
}

// ContentChangedPayload is emitted when the active buffer content changes,
// either by a local edit or an external reload
type ContentChangedPayload struct {
	EventPayload
	Path    string
	Content string
}

// DirtyChangedPayload is emitted when a buffer's dirty flag flips
type DirtyChangedPayload struct {
	EventPayload
	Path  string
	Dirty bool
}

// FileSavedPayload is emitted after a successful write
type FileSavedPayload struct {
	EventPayload
	Path string
}

// SaveFailedPayload is emitted when a write fails; the buffer stays dirty
type SaveFailedPayload struct {
	EventPayload
	Path string
	Err  error
}

// FileReloadedPayload is emitted when a clean buffer picks up external changes
type FileReloadedPayload struct {
	EventPayload
	Path    string
	Content string
}

// ReloadConflictPayload is emitted when external changes are ignored because
// the buffer has unsaved local edits
type ReloadConflictPayload struct {
	EventPayload
	Path string
}

// Emitter broadcasts editor events to subscribers. Handlers are resolved at
// emit time, so a long-lived subscriber always observes the session's
// current state rather than state captured at registration.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[Event][]EventHandler
}

// NewEmitter creates a new event emitter
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[Event][]EventHandler),
	}
}

// On registers an event handler for a specific event type
func (e *Emitter) On(event Event, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners[event] = append(e.listeners[event], handler)
}

// Emit emits an event with a payload (asynchronously)
func (e *Emitter) Emit(event Event, payload interface{}) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()

	// Emit asynchronously to avoid blocking editor operations
	for _, handler := range handlers {
		go handler(payload)
	}
}

// RemoveAllListeners removes all event listeners
func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[Event][]EventHandler)
}

func stamp() EventPayload {
	return EventPayload{Timestamp: time.Now()}
}
