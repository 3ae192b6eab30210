// Package tree builds the workspace file tree for navigation. The tree is
// always rebuilt wholesale from the filesystem; it is never patched
// incrementally, since full rebuilds are cheap at human-scale directory
// sizes.
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// NodeType distinguishes files from folders.
type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

// DefaultMaxDepth bounds recursion for very deeply nested directories.
const DefaultMaxDepth = 20

// Node is one entry in the workspace tree. ID is the path relative to the
// workspace root, which keeps node identity stable across rebuilds. Path is
// set for files only; folders are not openable.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// Build reads the directory rooted at root and returns its tree. Hidden
// entries (dotfiles, .hibiscus) are skipped. Folders sort before files,
// both alphabetically case-insensitive. Unreadable entries are skipped
// with a warning rather than failing the whole build.
func Build(root string) ([]Node, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", root)
	}
	return readDir(root, root, DefaultMaxDepth), nil
}

// FindByID walks nodes looking for the node with the given id.
func FindByID(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
		if found, ok := FindByID(n.Children, id); ok {
			return found, true
		}
	}
	return Node{}, false
}

func readDir(dir, base string, depth int) []Node {
	if depth == 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to read directory")
		return nil
	}

	var folders, files []Node
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		full := filepath.Join(dir, name)
		rel, err := filepath.Rel(base, full)
		if err != nil {
			rel = full
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			folders = append(folders, Node{
				ID:       rel,
				Name:     name,
				Type:     NodeFolder,
				Children: readDir(full, base, depth-1),
			})
		} else {
			files = append(files, Node{
				ID:   rel,
				Name: name,
				Type: NodeFile,
				Path: rel,
			})
		}
	}

	sortNodes(folders)
	sortNodes(files)
	return append(folders, files...)
}

func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
	})
}
