// Package sweep removes cache entries that no longer earn their disk space.
package sweep

import (
	"context"
	"log/slog"
	"path/filepath"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
	"github.com/kortix-ai/kb-fusion/internal/store"
)

// Sweeper deletes stale cache entries.
type Sweeper struct {
	store  *store.SQLiteStore
	logger *slog.Logger
}

// New creates a Sweeper over the store.
func New(st *store.SQLiteStore, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: st, logger: logger}
}

// RemovePath deletes every entry for path, across all version keys.
// Used when a document is deleted or should be forgotten entirely.
// Returns the number of entries removed.
func (s *Sweeper) RemovePath(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, kberrors.New(kberrors.ErrCodeInvalidPath, "cannot resolve path: "+path, nil)
	}

	n, err := s.store.RemoveAllVersions(ctx, abs)
	if err != nil {
		return 0, err
	}

	s.logger.Info("sweep_path",
		slog.String("path", abs),
		slog.Int("removed", n))
	return n, nil
}

// RemoveOrphans deletes every entry written under a version key other than
// currentKey. Entries under the active key are never touched, regardless of
// which paths they describe. Returns the number of entries removed.
func (s *Sweeper) RemoveOrphans(ctx context.Context, currentKey string) (int, error) {
	n, err := s.store.RemoveOrphaned(ctx, currentKey)
	if err != nil {
		return 0, err
	}

	s.logger.Info("sweep_orphans",
		slog.String("version_key", currentKey),
		slog.Int("removed", n))
	return n, nil
}
