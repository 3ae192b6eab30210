package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hibiscusapp/hibiscus/pkg/editor"
	"github.com/hibiscusapp/hibiscus/pkg/fsio"
	"github.com/hibiscusapp/hibiscus/pkg/tree"
)

func newTestEngine(t *testing.T) (*editor.Session, *Synchronizer) {
	t.Helper()

	store := editor.NewStore()
	emitter := editor.NewEmitter()
	// Autosave must never fire on its own during these tests; saves are
	// always issued explicitly.
	sched := editor.NewScheduler(store, fsio.WriteTextFile, emitter, time.Hour)
	session := editor.NewSession(store, sched, fsio.ReadTextFile, emitter)
	sync := NewSynchronizer(session, testStability)

	t.Cleanup(func() { _ = sync.Close() })
	return session, sync
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond())
}

func TestSynchronizer_LoadCreatesFreshDescriptor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("hi"), 0o644))

	_, sync := newTestEngine(t)

	desc, err := sync.Load(root)
	require.NoError(t, err)
	assert.NotEmpty(t, desc.Workspace.ID)
	assert.Equal(t, root, desc.Workspace.Root)
	assert.Equal(t, SchemaVersion, desc.SchemaVersion)
	require.Len(t, desc.Tree, 1)
	assert.Equal(t, "notes.md", desc.Tree[0].Name)

	// Persisted to disk
	found, path := Discover(root)
	require.True(t, found)
	loaded, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, desc.Workspace.ID, loaded.Workspace.ID)

	// Watcher started exactly once
	assert.True(t, sync.Watching())
}

func TestSynchronizer_LoadKeepsExistingIdentity(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("hi"), 0o644))

	descPath := DescriptorPath(root)
	require.NoError(t, SaveDescriptor(descPath, &File{
		SchemaVersion: SchemaVersion,
		Workspace:     Info{ID: "stable-id", Name: "study", Root: root},
		// Stale tree entry that no longer exists; must not survive
		Tree:    []tree.Node{{ID: "gone.md", Name: "gone.md", Type: tree.NodeFile, Path: "gone.md"}},
		Session: &SessionState{},
	}))

	_, sync := newTestEngine(t)

	desc, err := sync.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "stable-id", desc.Workspace.ID)

	// Tree is filesystem-sourced, never trusted from the descriptor
	require.Len(t, desc.Tree, 1)
	assert.Equal(t, "notes.md", desc.Tree[0].Name)
}

func TestSynchronizer_LoadRestoresActiveFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("remembered"), 0o644))

	require.NoError(t, SaveDescriptor(DescriptorPath(root), &File{
		SchemaVersion: SchemaVersion,
		Workspace:     Info{ID: "ws", Name: "study", Root: root},
		Session:       &SessionState{ActiveNode: "notes.md", OpenNodes: []string{"notes.md"}},
	}))

	session, sync := newTestEngine(t)

	_, err := sync.Load(root)
	require.NoError(t, err)

	buf, ok := session.ActiveBuffer()
	require.True(t, ok)
	assert.Equal(t, "remembered", buf.Content)
}

func TestSynchronizer_LoadSkipsVanishedActiveNode(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, SaveDescriptor(DescriptorPath(root), &File{
		SchemaVersion: SchemaVersion,
		Workspace:     Info{ID: "ws", Name: "study", Root: root},
		Session:       &SessionState{ActiveNode: "deleted.md"},
	}))

	session, sync := newTestEngine(t)

	_, err := sync.Load(root)
	require.NoError(t, err)

	_, ok := session.ActivePath()
	assert.False(t, ok)
}

func TestSynchronizer_ExternalChangeReloadsCleanBuffer(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	session, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)

	session.Open(tree.Node{ID: "notes.md", Name: "notes.md", Type: tree.NodeFile, Path: "notes.md"})
	buf, ok := session.ActiveBuffer()
	require.True(t, ok)
	require.Equal(t, "hello", buf.Content)

	// External edit
	require.NoError(t, os.WriteFile(notes, []byte("hello!"), 0o644))

	waitUntil(t, func() bool {
		buf, ok := session.ActiveBuffer()
		return ok && buf.Content == "hello!" && !buf.Dirty()
	})
}

func TestSynchronizer_ExternalChangePreservesDirtyBuffer(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	session, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)

	conflicts := make(chan editor.ReloadConflictPayload, 1)
	session.Emitter().On(editor.EventReloadConflict, func(p interface{}) {
		conflicts <- p.(editor.ReloadConflictPayload)
	})

	session.Open(tree.Node{ID: "notes.md", Name: "notes.md", Type: tree.NodeFile, Path: "notes.md"})
	session.OnChange("mine")

	require.NoError(t, os.WriteFile(notes, []byte("theirs"), 0o644))

	select {
	case <-conflicts:
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for conflict")
	}

	buf, _ := session.ActiveBuffer()
	assert.Equal(t, "mine", buf.Content)
	assert.True(t, buf.Dirty())
}

func TestSynchronizer_ExternalChangeRebuildsTree(t *testing.T) {
	root := t.TempDir()

	_, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)
	assert.Empty(t, sync.Tree())

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("x"), 0o644))

	waitUntil(t, func() bool {
		nodes := sync.Tree()
		_, ok := tree.FindByID(nodes, "new.md")
		return ok
	})
}

func TestSynchronizer_OpeningFilePersistsSessionState(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("hi"), 0o644))

	session, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)

	session.Open(tree.Node{ID: "notes.md", Name: "notes.md", Type: tree.NodeFile, Path: "notes.md"})

	waitUntil(t, func() bool {
		loaded, err := LoadDescriptor(DescriptorPath(root))
		if err != nil || loaded.Session == nil {
			return false
		}
		return loaded.Session.ActiveNode == "notes.md"
	})

	loaded, err := LoadDescriptor(DescriptorPath(root))
	require.NoError(t, err)
	assert.Contains(t, loaded.Session.OpenNodes, "notes.md")
}

func TestSynchronizer_ConcurrentActiveNodeUpdatesPersistCleanly(t *testing.T) {
	root := t.TempDir()
	names := []string{"a.md", "b.md", "c.md", "d.md"}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	_, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)

	// Rapid activations from several goroutines; every one triggers an
	// async persist of the descriptor.
	done := make(chan struct{})
	for _, name := range names {
		go func(id string) {
			for i := 0; i < 25; i++ {
				sync.SetActiveNode(id)
			}
			done <- struct{}{}
		}(name)
	}
	for range names {
		<-done
	}

	// Close persists synchronously; the descriptor on disk ends up valid
	// with every node recorded.
	require.NoError(t, sync.Close())

	loaded, err := LoadDescriptor(DescriptorPath(root))
	require.NoError(t, err)
	require.NotNil(t, loaded.Session)
	for _, name := range names {
		assert.Contains(t, loaded.Session.OpenNodes, name)
	}
	assert.Contains(t, names, loaded.Session.ActiveNode)
}

func TestSynchronizer_SelfTriggeredSaveDoesNotConflict(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	session, sync := newTestEngine(t)
	_, err := sync.Load(root)
	require.NoError(t, err)

	conflicts := make(chan editor.ReloadConflictPayload, 1)
	session.Emitter().On(editor.EventReloadConflict, func(p interface{}) {
		conflicts <- p.(editor.ReloadConflictPayload)
	})

	session.Open(tree.Node{ID: "notes.md", Name: "notes.md", Type: tree.NodeFile, Path: "notes.md"})
	session.OnChange("hello world")
	require.NoError(t, session.SaveCurrent())

	// Our own write may echo back through the watcher; the buffer stays
	// clean and no conflict fires.
	select {
	case <-conflicts:
		t.Fatal("Conflict fired for a self-triggered write")
	case <-time.After(6 * testStability):
	}

	buf, _ := session.ActiveBuffer()
	assert.Equal(t, "hello world", buf.Content)
	assert.False(t, buf.Dirty())
}
