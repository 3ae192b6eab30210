// Package workspace owns the workspace side of the engine: the persisted
// descriptor (.hibiscus/workspace.json), the directory tree, the filesystem
// watcher, and the synchronizer that reconciles external changes against
// open editor buffers.
package workspace

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hibiscusapp/hibiscus/pkg/editor"
	"github.com/hibiscusapp/hibiscus/pkg/tree"
)

// Synchronizer keeps the directory tree, the persisted descriptor and the
// editor session consistent with the filesystem. It rebuilds the tree
// wholesale on every change notification and delegates buffer
// reconciliation to the session, which guarantees local edits are never
// silently destroyed.
type Synchronizer struct {
	session *editor.Session

	stabilityThreshold time.Duration

	mu       sync.Mutex
	root     string
	desc     *File
	descPath string
	watcher  *Watcher

	// persistMu serializes descriptor writes; concurrent writers would
	// collide on the shared temp file.
	persistMu sync.Mutex
	persistWG sync.WaitGroup
}

// NewSynchronizer creates a synchronizer bound to an editor session. It
// subscribes to the session's file-opened events so the persisted session
// state follows the active file. A stabilityThreshold of zero selects the
// watcher default.
func NewSynchronizer(session *editor.Session, stabilityThreshold time.Duration) *Synchronizer {
	s := &Synchronizer{
		session:            session,
		stabilityThreshold: stabilityThreshold,
	}

	session.Emitter().On(editor.EventFileOpened, func(payload interface{}) {
		opened, ok := payload.(editor.FileOpenedPayload)
		if !ok {
			return
		}
		s.SetActiveNode(opened.NodeID)
	})

	return s
}

// Load points the synchronizer at a workspace root: the tree is built
// fresh from disk, an existing descriptor is merged (its tree is never
// trusted), or a new descriptor with a fresh id is created and persisted,
// the previously active file is restored if it still exists, and the
// watcher is started.
func (s *Synchronizer) Load(root string) (*File, error) {
	nodes, err := tree.Build(root)
	if err != nil {
		return nil, fmt.Errorf("failed to build workspace tree: %w", err)
	}

	s.session.Reset(root)

	now := time.Now().UTC().Format(time.RFC3339)

	var desc *File
	if found, path := Discover(root); found {
		desc, err = LoadDescriptor(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Unreadable workspace descriptor; creating a fresh one")
			desc = nil
		}
	}
	if desc == nil {
		desc = &File{
			SchemaVersion: SchemaVersion,
			Workspace: Info{
				ID:        uuid.NewString(),
				Name:      workspaceName(root),
				Root:      root,
				CreatedAt: now,
			},
			Session: &SessionState{},
		}
		log.Info().Str("root", root).Str("id", desc.Workspace.ID).Msg("Created new workspace")
	}

	// The tree is always filesystem-sourced; the descriptor only
	// contributes metadata and session state.
	desc.SchemaVersion = SchemaVersion
	desc.Tree = nodes
	desc.Workspace.Root = root
	desc.Workspace.UpdatedAt = now
	if desc.Session == nil {
		desc.Session = &SessionState{}
	}

	descPath := DescriptorPath(root)
	if err := SaveDescriptor(descPath, desc); err != nil {
		return nil, fmt.Errorf("failed to persist workspace descriptor: %w", err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		_ = s.watcher.Stop()
		s.watcher = nil
	}
	s.root = root
	s.desc = desc
	s.descPath = descPath
	s.mu.Unlock()

	// Restore the previously active file if the new tree still has it
	if active := desc.Session.ActiveNode; active != "" {
		if node, ok := tree.FindByID(nodes, active); ok && node.Path != "" {
			s.session.Open(node)
		} else {
			log.Debug().Str("node", active).Msg("Previously active node no longer present")
		}
	}

	watcher, err := NewWatcher(WatcherConfig{
		Root:               root,
		StabilityThreshold: s.stabilityThreshold,
		OnChanges:          s.handleChanges,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return nil, fmt.Errorf("failed to start workspace watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	return desc, nil
}

// handleChanges is the watcher callback: full tree rebuild, buffer
// reconciliation, then descriptor persistence. Rebuilds are wholesale by
// design; duplicate notifications are harmless because reconciliation is
// idempotent.
func (s *Synchronizer) handleChanges(paths []string) {
	s.mu.Lock()
	root := s.root
	desc := s.desc
	s.mu.Unlock()

	if desc == nil {
		return
	}

	nodes, err := tree.Build(root)
	if err != nil {
		log.Error().Err(err).Str("root", root).Msg("Failed to rebuild workspace tree")
	} else {
		s.mu.Lock()
		s.desc.Tree = nodes
		s.mu.Unlock()
	}

	s.session.Reconcile(paths)
	s.persist()
}

// SetActiveNode merges the active node into the session state and persists
// the descriptor. Persistence is fire-and-forget; failures are logged.
func (s *Synchronizer) SetActiveNode(nodeID string) {
	s.mu.Lock()
	if s.desc == nil {
		s.mu.Unlock()
		return
	}
	if s.desc.Session == nil {
		s.desc.Session = &SessionState{}
	}
	s.desc.Session.ActiveNode = nodeID
	if !containsString(s.desc.Session.OpenNodes, nodeID) {
		s.desc.Session.OpenNodes = append(s.desc.Session.OpenNodes, nodeID)
	}
	s.mu.Unlock()

	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()
		s.persist()
	}()
}

// Tree returns the current tree snapshot.
func (s *Synchronizer) Tree() []tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc == nil {
		return nil
	}
	return s.desc.Tree
}

// Descriptor returns the current descriptor.
func (s *Synchronizer) Descriptor() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Watching reports whether the filesystem watcher is running.
func (s *Synchronizer) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher != nil
}

// Close stops the watcher, waits for in-flight persists and writes the
// descriptor one last time.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	s.persistWG.Wait()
	s.persist()

	if watcher != nil {
		return watcher.Stop()
	}
	return nil
}

// persist writes the descriptor from a deep snapshot taken under the lock:
// the live Session state keeps being mutated by node activations while the
// snapshot is marshaled, so the snapshot must not alias it.
func (s *Synchronizer) persist() {
	s.mu.Lock()
	if s.desc == nil || s.descPath == "" {
		s.mu.Unlock()
		return
	}
	s.desc.Workspace.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	snapshot := *s.desc
	snapshot.Tree = append([]tree.Node(nil), s.desc.Tree...)
	if s.desc.Session != nil {
		state := *s.desc.Session
		state.OpenNodes = append([]string(nil), s.desc.Session.OpenNodes...)
		snapshot.Session = &state
	}
	descPath := s.descPath
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := SaveDescriptor(descPath, &snapshot); err != nil {
		log.Error().Err(err).Str("path", descPath).Msg("Failed to persist workspace descriptor")
	}
}

func workspaceName(root string) string {
	name := filepath.Base(root)
	if name == "" || name == "." || name == "/" {
		return "workspace"
	}
	return name
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
