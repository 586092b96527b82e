package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

// SQLiteStore is the durable cache backing. WAL mode allows concurrent
// readers across processes; writes are serialized through a single
// connection to avoid lock contention.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (or creates) the cache database at path.
// An empty path creates an in-memory store for testing.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, kberrors.Wrap(kberrors.ErrCodeFilePermission,
				fmt.Errorf("failed to create cache directory: %w", err))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	// Single connection: one writer prevents SQLITE_BUSY churn, and the
	// in-memory DSN would otherwise give each pooled conn its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas must be set via statements: modernc.org/sqlite ignores most
	// DSN parameters.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore,
				fmt.Errorf("failed to set pragma: %w", err))
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore,
			fmt.Errorf("failed to initialize schema: %w", err))
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS entries (
		path         TEXT    NOT NULL,
		version_key  TEXT    NOT NULL,
		content_hash TEXT    NOT NULL,
		mtime_ns     INTEGER NOT NULL,
		size_bytes   INTEGER NOT NULL,
		chunk_count  INTEGER NOT NULL,
		indexed_at   INTEGER NOT NULL,
		PRIMARY KEY (path, version_key)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		path        TEXT    NOT NULL,
		version_key TEXT    NOT NULL,
		idx         INTEGER NOT NULL,
		text        TEXT    NOT NULL,
		text_hash   TEXT    NOT NULL,
		embedding   BLOB    NOT NULL,
		PRIMARY KEY (path, version_key, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_text_hash
		ON chunks(path, version_key, text_hash);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get loads the entry for (path, versionKey). A missing entry returns
// (nil, nil). A corrupt entry is logged, deleted, and treated as a miss so
// the caller re-indexes instead of failing.
func (s *SQLiteStore) Get(ctx context.Context, path, versionKey string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	var (
		entry     Entry
		indexedAt int64
		count     int
	)
	entry.Path = path
	entry.VersionKey = versionKey

	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, mtime_ns, size_bytes, chunk_count, indexed_at
		   FROM entries WHERE path = ? AND version_key = ?`,
		path, versionKey).Scan(
		&entry.Fingerprint.ContentHash,
		&entry.Fingerprint.MtimeNS,
		&entry.Fingerprint.Size,
		&count,
		&indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	entry.IndexedAt = time.Unix(0, indexedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, text, text_hash, embedding
		   FROM chunks WHERE path = ? AND version_key = ? ORDER BY idx`,
		path, versionKey)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = rows.Close() }()

	entry.Chunks = make([]StoredChunk, 0, count)
	for rows.Next() {
		var (
			c    StoredChunk
			blob []byte
		)
		if err := rows.Scan(&c.Index, &c.Text, &c.Hash, &blob); err != nil {
			return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
		}
		vec, ok := decodeVector(blob)
		if !ok {
			return s.quarantine(ctx, path, versionKey, "undecodable embedding blob")
		}
		c.Embedding = vec
		entry.Chunks = append(entry.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	if len(entry.Chunks) != count {
		return s.quarantine(ctx, path, versionKey,
			fmt.Sprintf("entry records %d chunks, found %d", count, len(entry.Chunks)))
	}
	for i, c := range entry.Chunks {
		if c.Index != i {
			return s.quarantine(ctx, path, versionKey,
				fmt.Sprintf("chunk index gap at position %d", i))
		}
	}

	return &entry, nil
}

// quarantine logs and deletes a corrupt entry, returning a cache miss.
func (s *SQLiteStore) quarantine(ctx context.Context, path, versionKey, reason string) (*Entry, error) {
	slog.Warn("cache_entry_corrupt",
		slog.String("path", path),
		slog.String("version_key", versionKey),
		slog.String("reason", reason),
		slog.String("code", kberrors.ErrCodeCorruptEntry))

	if err := s.deleteEntry(ctx, path, versionKey); err != nil {
		slog.Warn("cache_entry_quarantine_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return nil, nil
}

// Put atomically replaces the entry for (entry.Path, entry.VersionKey).
// Readers never observe a partially written entry.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE path = ? AND version_key = ?`,
		entry.Path, entry.VersionKey); err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE path = ? AND version_key = ?`,
		entry.Path, entry.VersionKey); err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	indexedAt := entry.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (path, version_key, content_hash, mtime_ns, size_bytes, chunk_count, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Path, entry.VersionKey,
		entry.Fingerprint.ContentHash, entry.Fingerprint.MtimeNS, entry.Fingerprint.Size,
		len(entry.Chunks), indexedAt.UnixNano()); err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (path, version_key, idx, text, text_hash, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range entry.Chunks {
		if _, err := stmt.ExecContext(ctx,
			entry.Path, entry.VersionKey, c.Index, c.Text, c.Hash,
			encodeVector(c.Embedding)); err != nil {
			return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	return nil
}

// TouchFingerprint updates the stored fingerprint without touching chunks.
// Used when a file's mtime changed but its content hash did not: the next
// lookup takes the fast path again.
func (s *SQLiteStore) TouchFingerprint(ctx context.Context, path, versionKey string, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE entries SET content_hash = ?, mtime_ns = ?, size_bytes = ?
		  WHERE path = ? AND version_key = ?`,
		fp.ContentHash, fp.MtimeNS, fp.Size, path, versionKey)
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	return nil
}

// Remove deletes the entry for (path, versionKey).
// Returns true when an entry was actually removed.
func (s *SQLiteStore) Remove(ctx context.Context, path, versionKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE path = ? AND version_key = ?`, path, versionKey)
	if err != nil {
		return false, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE path = ? AND version_key = ?`, path, versionKey); err != nil {
		return false, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveAllVersions deletes every entry for path, across all version keys.
// Returns the number of entries removed.
func (s *SQLiteStore) RemoveAllVersions(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path)
	if err != nil {
		return 0, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return 0, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListOrphaned enumerates entries whose version key differs from currentKey.
func (s *SQLiteStore) ListOrphaned(ctx context.Context, currentKey string) ([]OrphanRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, version_key FROM entries
		  WHERE version_key != ? ORDER BY path, version_key`, currentKey)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = rows.Close() }()

	var orphans []OrphanRef
	for rows.Next() {
		var ref OrphanRef
		if err := rows.Scan(&ref.Path, &ref.VersionKey); err != nil {
			return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
		}
		orphans = append(orphans, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	return orphans, nil
}

// RemoveOrphaned deletes every entry whose version key differs from
// currentKey. Returns the number of entries removed.
func (s *SQLiteStore) RemoveOrphaned(ctx context.Context, currentKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE version_key != ?`, currentKey)
	if err != nil {
		return 0, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE version_key != ?`, currentKey); err != nil {
		return 0, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats reports cache contents.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, kberrors.New(kberrors.ErrCodeCacheStore, "store is closed", nil)
	}

	var stats Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries`).Scan(&stats.Entries); err != nil {
		return Stats{}, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return Stats{}, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version_key, COUNT(*) FROM entries GROUP BY version_key ORDER BY version_key`)
	if err != nil {
		return Stats{}, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = rows.Close() }()

	stats.EntriesByKey = make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return Stats{}, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
		}
		stats.VersionKeys = append(stats.VersionKeys, key)
		stats.EntriesByKey[key] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}

	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}

	return stats, nil
}

// deleteEntry removes one entry outside the public locking discipline.
// Callers hold at least a read lock already.
func (s *SQLiteStore) deleteEntry(ctx context.Context, path, versionKey string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE path = ? AND version_key = ?`, path, versionKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE path = ? AND version_key = ?`, path, versionKey)
	return err
}

// Path returns the database file path (empty for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
