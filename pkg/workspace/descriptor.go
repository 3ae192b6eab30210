package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hibiscusapp/hibiscus/pkg/fsio"
)

// DescriptorPath returns the descriptor location for a workspace root.
func DescriptorPath(root string) string {
	return filepath.Join(root, DirName, DescriptorName)
}

// Discover checks whether a workspace descriptor already exists under root.
func Discover(root string) (bool, string) {
	candidate := DescriptorPath(root)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return false, ""
	}
	return true, candidate
}

// LoadDescriptor reads and parses a workspace descriptor. Schema validation
// problems are logged as warnings, not treated as fatal, so a descriptor
// written by an older build still loads.
func LoadDescriptor(path string) (*File, error) {
	if err := fsio.ValidatePath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace descriptor: %w", err)
	}

	if result, err := ValidateDescriptor(data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Descriptor schema validation unavailable")
	} else if !result.Valid {
		for _, problem := range result.Problems {
			log.Warn().Str("path", path).Str("problem", problem).Msg("Descriptor schema violation")
		}
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workspace descriptor: %w", err)
	}
	return &file, nil
}

// SaveDescriptor writes the descriptor as pretty JSON via a temp file and
// rename, so a crash mid-save never corrupts the descriptor.
func SaveDescriptor(path string, file *File) error {
	if err := fsio.ValidatePath(path); err != nil {
		return err
	}

	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize workspace descriptor: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp descriptor: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to finalize workspace descriptor: %w", err)
	}
	return nil
}
