package editor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay = 50 * time.Millisecond

func newTestScheduler(t *testing.T, disk *fakeDisk) (*Scheduler, *Store) {
	t.Helper()
	store := NewStore()
	sched := NewScheduler(store, disk.write, NewEmitter(), testDelay)
	t.Cleanup(sched.CancelAll)
	return sched, store
}

func TestScheduler_DebounceCoalesces(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "v0", SavedContent: "v0"})

	// N rapid edits inside the debounce window
	for _, content := range []string{"v1", "v2", "v3"} {
		store.SetContent("/ws/a.txt", content)
		sched.ScheduleDebounced("/ws/a.txt")
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, waitFor(2*time.Second, func() bool {
		return disk.writeCount("/ws/a.txt") > 0
	}))
	// Extra window to catch any stray second write
	time.Sleep(2 * testDelay)

	writes := disk.writeLog()
	require.Len(t, writes, 1)
	assert.Equal(t, "v3", writes[0].Content)

	buf, _ := store.Get("/ws/a.txt")
	assert.False(t, buf.Dirty())
	assert.Equal(t, "v3", buf.SavedContent)
}

func TestScheduler_DebouncedSkipsCleanBuffer(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "v0", SavedContent: "v0"})
	sched.ScheduleDebounced("/ws/a.txt")

	time.Sleep(3 * testDelay)
	assert.Empty(t, disk.writeLog())
}

func TestScheduler_SaveNowCancelsPendingDebounce(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "hello world", SavedContent: "hello"})
	sched.ScheduleDebounced("/ws/a.txt")
	require.True(t, sched.Pending("/ws/a.txt"))

	require.NoError(t, sched.SaveNow("/ws/a.txt", "hello world"))
	assert.False(t, sched.Pending("/ws/a.txt"))

	// No second write fires later
	time.Sleep(3 * testDelay)
	writes := disk.writeLog()
	require.Len(t, writes, 1)
	assert.Equal(t, "hello world", writes[0].Content)

	buf, _ := store.Get("/ws/a.txt")
	assert.False(t, buf.Dirty())
}

func TestScheduler_SaveNowSkipsWhenConsistent(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "hello", SavedContent: "hello"})

	require.NoError(t, sched.SaveNow("/ws/a.txt", "hello"))
	assert.Empty(t, disk.writeLog())
}

func TestScheduler_WriteFailureLeavesBufferDirty(t *testing.T) {
	disk := newFakeDisk(nil)
	disk.failWrites["/ws/a.txt"] = true
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "edited", SavedContent: "old"})

	err := sched.SaveNow("/ws/a.txt", "edited")
	require.Error(t, err)

	buf, _ := store.Get("/ws/a.txt")
	assert.True(t, buf.Dirty())
	assert.Equal(t, "old", buf.SavedContent)
}

func TestScheduler_WriteFailureEmitsEvent(t *testing.T) {
	disk := newFakeDisk(nil)
	disk.failWrites["/ws/a.txt"] = true

	store := NewStore()
	emitter := NewEmitter()
	sched := NewScheduler(store, disk.write, emitter, testDelay)
	t.Cleanup(sched.CancelAll)

	failed := make(chan SaveFailedPayload, 1)
	emitter.On(EventSaveFailed, func(payload interface{}) {
		failed <- payload.(SaveFailedPayload)
	})

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "edited", SavedContent: "old"})
	require.Error(t, sched.SaveNow("/ws/a.txt", "edited"))

	select {
	case p := <-failed:
		assert.Equal(t, "/ws/a.txt", p.Path)
		assert.Error(t, p.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for save failed event")
	}
}

func TestScheduler_ConcurrentSavesSamePathSerialized(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "final", SavedContent: "old"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sched.SaveNow("/ws/a.txt", "final")
		}()
	}
	wg.Wait()

	// The first request through the lock writes; the rest find the
	// content already consistent and skip.
	assert.Equal(t, 1, disk.writeCount("/ws/a.txt"))

	buf, _ := store.Get("/ws/a.txt")
	assert.False(t, buf.Dirty())
}

func TestScheduler_FiredDebounceDefersToNewerImmediateSave(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "v1", SavedContent: "v0"})

	// An immediate save holds the write lock while the debounce fires.
	lock := sched.writeLock("/ws/a.txt")
	lock.Lock()

	sched.ScheduleDebounced("/ws/a.txt")
	require.True(t, waitFor(2*time.Second, func() bool {
		return !sched.Pending("/ws/a.txt")
	}))

	// The immediate save lands newer content before releasing the lock.
	store.SetContent("/ws/a.txt", "v2")
	store.SetSaved("/ws/a.txt", "v2")
	disk.set("/ws/a.txt", "v2")
	lock.Unlock()

	// The blocked debounce now finds the buffer clean; v1 never reaches
	// disk behind the newer save.
	time.Sleep(3 * testDelay)
	assert.Empty(t, disk.writeLog())
	content, _ := disk.get("/ws/a.txt")
	assert.Equal(t, "v2", content)
}

func TestNewScheduler_ZeroDelaySelectsDefault(t *testing.T) {
	sched := NewScheduler(NewStore(), nil, NewEmitter(), 0)
	assert.Equal(t, DefaultAutosaveDelay, sched.delay)
}

func TestScheduler_CancelDropsPendingSave(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "edited", SavedContent: "old"})
	sched.ScheduleDebounced("/ws/a.txt")
	sched.Cancel("/ws/a.txt")

	time.Sleep(3 * testDelay)
	assert.Empty(t, disk.writeLog())
}

func TestScheduler_SavesKeyedByPathNotActive(t *testing.T) {
	disk := newFakeDisk(nil)
	sched, store := newTestScheduler(t, disk)

	// Two dirty buffers; both flush independently.
	store.Put(FileBuffer{Path: "/ws/a.txt", Content: "a2", SavedContent: "a1"})
	store.Put(FileBuffer{Path: "/ws/b.txt", Content: "b2", SavedContent: "b1"})
	sched.ScheduleDebounced("/ws/a.txt")
	sched.ScheduleDebounced("/ws/b.txt")

	require.True(t, waitFor(2*time.Second, func() bool {
		return disk.writeCount("/ws/a.txt") == 1 && disk.writeCount("/ws/b.txt") == 1
	}))
}
