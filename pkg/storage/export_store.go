package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportStore keeps rendered timetable files in one flat directory. File
// names are flattened with filepath.Base so a token can never address a file
// outside the directory.
type ExportStore struct {
	dir string
}

// NewExportStore ensures the export directory exists and returns a handle.
func NewExportStore(dir string) (*ExportStore, error) {
	if dir == "" {
		dir = "./exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	return &ExportStore{dir: dir}, nil
}

// Save writes a rendered export and returns the name it is stored under.
func (s *ExportStore) Save(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid export file name")
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return name, nil
}

// Path returns the absolute location of a stored export.
func (s *ExportStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// CleanupOlderThan removes exports whose files are older than the TTL and
// returns the removed names.
func (s *ExportStore) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	removed := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat export %s: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove export %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}
