package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// pathLock serializes indexing of one document across processes using
// gofrs/flock. Without it, two concurrent EnsureIndexed calls for the same
// path would both embed and race on the final write. Works on all platforms.
type pathLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newPathLock creates a lock for docPath under lockDir. The lock file name
// is derived from the document path hash, so arbitrary paths map to valid
// file names.
func newPathLock(lockDir, docPath string) *pathLock {
	sum := sha256.Sum256([]byte(docPath))
	name := hex.EncodeToString(sum[:8]) + ".lock"
	lockPath := filepath.Join(lockDir, "locks", name)
	return &pathLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires the exclusive lock, blocking until available.
func (l *pathLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked pathLock.
func (l *pathLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
