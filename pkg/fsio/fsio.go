// Package fsio provides the raw file I/O primitives used by the editor
// core: validated text reads and atomic text writes.
//
// Writes follow the temp-file-then-rename strategy used by modern editors:
// content is written to a sibling temp file, synced, and renamed over the
// target so a crash mid-save never leaves a truncated file behind.
package fsio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveSuffix is appended to the target filename for in-progress writes.
// "notes.txt" is written via "notes.txt.hibiscus-save~".
const SaveSuffix = ".hibiscus-save~"

// MaxPathDepth bounds the number of path components accepted by ValidatePath.
const MaxPathDepth = 50

var (
	// ErrNotFound indicates the path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrNotFile indicates the path exists but is not a regular file.
	ErrNotFile = errors.New("not a regular file")

	// ErrPathValidation indicates the path failed safety validation.
	ErrPathValidation = errors.New("path validation failed")
)

// ValidatePath rejects paths that contain traversal sequences or are
// suspiciously deep. It does not require the path to exist.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrPathValidation)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("%w: traversal not allowed in %q", ErrPathValidation, path)
		}
	}
	if depth := len(strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")); depth > MaxPathDepth {
		return fmt.Errorf("%w: depth %d exceeds maximum %d", ErrPathValidation, depth, MaxPathDepth)
	}
	return nil
}

// ReadTextFile reads the contents of a regular file as a string.
func ReadTextFile(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return string(data), nil
}

// WriteTextFile writes contents to path atomically. Parent directories are
// created as needed. On any failure the temp file is removed and the
// original target is left untouched.
func WriteTextFile(path, contents string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("failed to create parent directories for %q: %w", path, err)
		}
	}

	tempPath := path + SaveSuffix

	if err := writeAndSync(tempPath, contents); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %q to %q: %w", tempPath, path, err)
	}
	return nil
}

func writeAndSync(path, contents string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file %q: %w", path, err)
	}

	if _, err := f.WriteString(contents); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp file %q: %w", path, err)
	}

	// Sync before rename so the data is durable once the target name
	// points at it.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync temp file %q: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file %q: %w", path, err)
	}
	return nil
}
