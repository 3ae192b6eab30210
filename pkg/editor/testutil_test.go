package editor

import (
	"fmt"
	"sync"
	"time"
)

// fakeDisk is an in-memory filesystem standing in for the read/write
// primitives, with per-path read gates to exercise races between slow and
// fast operations.
type fakeDisk struct {
	mu     sync.Mutex
	files  map[string]string
	writes []diskWrite

	readGates  map[string]chan struct{}
	failReads  map[string]bool
	failWrites map[string]bool
}

type diskWrite struct {
	Path    string
	Content string
}

func newFakeDisk(files map[string]string) *fakeDisk {
	if files == nil {
		files = make(map[string]string)
	}
	return &fakeDisk{
		files:      files,
		readGates:  make(map[string]chan struct{}),
		failReads:  make(map[string]bool),
		failWrites: make(map[string]bool),
	}
}

// gateRead makes reads of path block until the returned function is called.
func (d *fakeDisk) gateRead(path string) func() {
	gate := make(chan struct{})
	d.mu.Lock()
	d.readGates[path] = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

func (d *fakeDisk) read(path string) (string, error) {
	d.mu.Lock()
	gate := d.readGates[path]
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failReads[path] {
		return "", fmt.Errorf("read %q: injected failure", path)
	}
	content, ok := d.files[path]
	if !ok {
		return "", fmt.Errorf("read %q: no such file", path)
	}
	return content, nil
}

func (d *fakeDisk) write(path, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failWrites[path] {
		return fmt.Errorf("write %q: injected failure", path)
	}
	d.files[path] = content
	d.writes = append(d.writes, diskWrite{Path: path, Content: content})
	return nil
}

func (d *fakeDisk) set(path, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = content
}

func (d *fakeDisk) get(path string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.files[path]
	return content, ok
}

func (d *fakeDisk) writeLog() []diskWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]diskWrite, len(d.writes))
	copy(out, d.writes)
	return out
}

func (d *fakeDisk) writeCount(path string) int {
	count := 0
	for _, w := range d.writeLog() {
		if w.Path == path {
			count++
		}
	}
	return count
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
