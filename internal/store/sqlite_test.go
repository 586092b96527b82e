package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(path, versionKey string, chunks int) *Entry {
	e := &Entry{
		Path:       path,
		VersionKey: versionKey,
		Fingerprint: Fingerprint{
			ContentHash: "hash-of-" + path,
			MtimeNS:     1700000000000000000,
			Size:        4096,
		},
		IndexedAt: time.Now(),
	}
	for i := 0; i < chunks; i++ {
		e.Chunks = append(e.Chunks, StoredChunk{
			Index:     i,
			Text:      "chunk text",
			Hash:      "chunk-hash",
			Embedding: []float32{float32(i), 0.5, -0.25},
		})
	}
	return e
}

func TestSQLiteStore_PutGetRoundTrip(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	want := testEntry("/docs/a.md", "model:d8:p1:c1", 3)
	require.NoError(t, s.Put(context.Background(), want))

	got, err := s.Get(context.Background(), "/docs/a.md", "model:d8:p1:c1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	require.Len(t, got.Chunks, 3)
	assert.Equal(t, want.Chunks[1].Embedding, got.Chunks[1].Embedding)
	assert.Equal(t, want.Chunks[2].Index, got.Chunks[2].Index)
}

func TestSQLiteStore_MissingEntryIsNilNil(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(context.Background(), "/nope.md", "key")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_VersionKeysAreIsolated(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Given: the same path indexed under two version keys
	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key-a", 2)))
	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key-b", 5)))

	// Then: each key sees only its own entry
	a, err := s.Get(context.Background(), "/doc.md", "key-a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Len(t, a.Chunks, 2)

	b, err := s.Get(context.Background(), "/doc.md", "key-b")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Len(t, b.Chunks, 5)
}

func TestSQLiteStore_PutReplacesExistingEntry(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 5)))
	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 2)))

	got, err := s.Get(context.Background(), "/doc.md", "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Chunks, 2, "old chunks must not leak into the new entry")
}

func TestSQLiteStore_TouchFingerprint(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 2)))

	fp := Fingerprint{ContentHash: "hash-of-/doc.md", MtimeNS: 1800000000000000000, Size: 4096}
	require.NoError(t, s.TouchFingerprint(context.Background(), "/doc.md", "key", fp))

	got, err := s.Get(context.Background(), "/doc.md", "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fp, got.Fingerprint)
	assert.Len(t, got.Chunks, 2, "chunks untouched")
}

func TestSQLiteStore_CorruptEntryIsQuarantined(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 2)))

	// Corrupt the embedding blob directly
	_, err = s.db.Exec(`UPDATE chunks SET embedding = X'0102' WHERE idx = 0`)
	require.NoError(t, err)

	// When: the corrupt entry is read
	got, err := s.Get(context.Background(), "/doc.md", "key")
	require.NoError(t, err, "corruption is a miss, not a failure")
	assert.Nil(t, got)

	// Then: the entry was removed so the next Put starts clean
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count))
	assert.Zero(t, count)
}

func TestSQLiteStore_ChunkCountMismatchIsQuarantined(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 3)))

	_, err = s.db.Exec(`DELETE FROM chunks WHERE idx = 1`)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "/doc.md", "key")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_RemoveAllVersions(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key-a", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key-b", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/other.md", "key-a", 1)))

	n, err := s.RemoveAllVersions(context.Background(), "/doc.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(context.Background(), "/doc.md", "key-a")
	require.NoError(t, err)
	assert.Nil(t, got)

	other, err := s.Get(context.Background(), "/other.md", "key-a")
	require.NoError(t, err)
	assert.NotNil(t, other, "other paths untouched")
}

func TestSQLiteStore_ListOrphaned(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/a.md", "current", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/a.md", "stale-1", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/b.md", "stale-2", 1)))

	orphans, err := s.ListOrphaned(context.Background(), "current")
	require.NoError(t, err)
	assert.Equal(t, []OrphanRef{
		{Path: "/a.md", VersionKey: "stale-1"},
		{Path: "/b.md", VersionKey: "stale-2"},
	}, orphans)

	// Listing never deletes
	entry, err := s.Get(context.Background(), "/a.md", "stale-1")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	none, err := s.ListOrphaned(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Len(t, none, 2, "only the given key counts as current")
}

func TestSQLiteStore_RemoveOrphaned(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/a.md", "current", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/b.md", "stale-1", 1)))
	require.NoError(t, s.Put(context.Background(), testEntry("/c.md", "stale-2", 1)))

	n, err := s.RemoveOrphaned(context.Background(), "current")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, []string{"current"}, stats.VersionKeys)
}

func TestSQLiteStore_Stats(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(context.Background(), testEntry("/a.md", "key-a", 2)))
	require.NoError(t, s.Put(context.Background(), testEntry("/b.md", "key-b", 3)))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, []string{"key-a", "key-b"}, stats.VersionKeys)
	assert.Equal(t, map[string]int{"key-a": 1, "key-b": 1}, stats.EntriesByKey)
	assert.Equal(t, 1, stats.Orphaned("key-a"))
	assert.Zero(t, stats.SizeBytes, "in-memory store has no file size")
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), testEntry("/doc.md", "key", 2)))
	require.NoError(t, s.Close())

	// Reopen and read back
	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.Get(context.Background(), "/doc.md", "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Chunks, 2)
}

func TestSQLiteStore_ClosedRejectsOperations(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "/doc.md", "key")
	assert.Error(t, err)
	assert.Error(t, s.Put(context.Background(), testEntry("/doc.md", "key", 1)))
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 0.125, 3.1415927}
	got, ok := decodeVector(encodeVector(vec))
	require.True(t, ok)
	assert.Equal(t, vec, got)
}
