// Package exportfs writes export artifacts (CSV files, charts) to a
// directory with atomic rename semantics.
package exportfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/finvault/ledgersync/internal/common"
)

// Store writes files beneath a base export directory.
type Store struct {
	basePath string
	logger   *common.Logger
}

// NewStore creates the export directory if needed.
func NewStore(logger *common.Logger, basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &Store{basePath: basePath, logger: logger}, nil
}

// BasePath returns the export directory.
func (s *Store) BasePath() string {
	return s.basePath
}

// sanitizeKey keeps keys safe as filenames.
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	return replacer.Replace(key)
}

// WriteRaw writes data to basePath/key atomically: a temp file in the same
// directory is renamed into place so readers never observe a partial file.
// Returns the full path written.
func (s *Store) WriteRaw(key string, data []byte) (string, error) {
	target := filepath.Join(s.basePath, sanitizeKey(key))

	tmp, err := os.CreateTemp(s.basePath, ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write export data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}

	s.logger.Debug().Str("path", target).Int("bytes", len(data)).Msg("Export written")
	return target, nil
}
