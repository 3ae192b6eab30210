// Package calendar persists the study planner's events and tasks alongside
// the workspace descriptor, under .hibiscus/calendar.json.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// FileName is the calendar data file inside the workspace metadata directory.
const FileName = "calendar.json"

// metadataDir mirrors the workspace descriptor location.
const metadataDir = ".hibiscus"

// Settings holds planner display preferences.
type Settings struct {
	View        string `json:"view"`
	StartOfWeek string `json:"startOfWeek"`
}

// Event is a dated planner entry (a lecture, an exam, a study block).
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

// Task is a planner todo, optionally with a due date.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Due   string `json:"due,omitempty"`
	Done  bool   `json:"done"`
}

// Data is the full persisted calendar state.
type Data struct {
	Events   []Event  `json:"events"`
	Tasks    []Task   `json:"tasks"`
	Settings Settings `json:"settings"`
}

// DefaultData returns the calendar state used when no file exists yet.
func DefaultData() Data {
	return Data{
		Events: []Event{},
		Tasks:  []Task{},
		Settings: Settings{
			View:        "month",
			StartOfWeek: "monday",
		},
	}
}

// Path returns the calendar file location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, metadataDir, FileName)
}

// Store owns the in-memory calendar state for one workspace and its
// persistence. Mutating operations persist before returning.
type Store struct {
	mu   sync.Mutex
	root string
	data Data
}

// NewStore creates a store for the workspace at root, loading existing
// calendar data if present. A missing file yields the default calendar.
func NewStore(root string) (*Store, error) {
	s := &Store{root: root}

	path := Path(root)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.data = DefaultData()
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar data: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse calendar data: %w", err)
	}
	return s, nil
}

// Data returns a snapshot of the calendar state.
func (s *Store) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddEvent creates an event with a generated id and persists.
func (s *Store) AddEvent(title, date, notes string) (Event, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Event{}, fmt.Errorf("failed to generate event id: %w", err)
	}

	event := Event{ID: id, Title: title, Date: date, Notes: notes}

	s.mu.Lock()
	s.data.Events = append(s.data.Events, event)
	err = s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// AddTask creates a task with a generated id and persists.
func (s *Store) AddTask(title, due string) (Task, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Task{}, fmt.Errorf("failed to generate task id: %w", err)
	}

	task := Task{ID: id, Title: title, Due: due}

	s.mu.Lock()
	s.data.Tasks = append(s.data.Tasks, task)
	err = s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// CompleteTask marks a task done and persists. Unknown ids are a no-op.
func (s *Store) CompleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Tasks {
		if s.data.Tasks[i].ID == id {
			s.data.Tasks[i].Done = true
			return s.persistLocked()
		}
	}
	log.Debug().Str("id", id).Msg("Complete requested for unknown task")
	return nil
}

// RemoveEvent deletes an event by id and persists. Unknown ids are a no-op.
func (s *Store) RemoveEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Events {
		if s.data.Events[i].ID == id {
			s.data.Events = append(s.data.Events[:i], s.data.Events[i+1:]...)
			return s.persistLocked()
		}
	}
	return nil
}

// Save persists the current state.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) snapshotLocked() Data {
	snapshot := s.data
	snapshot.Events = append([]Event(nil), s.data.Events...)
	snapshot.Tasks = append([]Task(nil), s.data.Tasks...)
	return snapshot
}

// persistLocked writes calendar.json via a temp file and rename.
func (s *Store) persistLocked() error {
	path := Path(s.root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize calendar data: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp calendar file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to finalize calendar file: %w", err)
	}
	return nil
}
