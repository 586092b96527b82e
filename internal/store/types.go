// Package store persists indexed document entries in SQLite.
//
// Entries are keyed by (path, version_key): the same document indexed under
// different embedding configurations occupies independent rows, so a config
// change never corrupts or shadows existing caches. Embeddings are stored as
// little-endian float32 blobs.
package store

import (
	"encoding/binary"
	"math"
	"time"
)

// Fingerprint captures the on-disk identity of a document at index time.
type Fingerprint struct {
	// ContentHash is the hex-encoded SHA-256 of the document bytes.
	// It is the authority on whether content changed.
	ContentHash string

	// MtimeNS is the file modification time in nanoseconds since epoch.
	// Together with Size it serves the no-IO fast path: a matching
	// (mtime, size) pair means the content hash can be trusted unread.
	MtimeNS int64

	// Size is the file size in bytes.
	Size int64
}

// StoredChunk is one chunk row of an entry, with its embedding.
type StoredChunk struct {
	// Index is the chunk's position within the document, 0-based.
	Index int

	// Text is the chunk content.
	Text string

	// Hash is the hex-encoded SHA-256 of Text, used for embedding reuse.
	Hash string

	// Embedding is the unit-normalized vector for Text.
	Embedding []float32
}

// Entry is a fully indexed document under one version key.
type Entry struct {
	Path        string
	VersionKey  string
	Fingerprint Fingerprint
	Chunks      []StoredChunk
	IndexedAt   time.Time
}

// OrphanRef identifies an entry stored under a non-current version key.
type OrphanRef struct {
	Path       string `json:"path"`
	VersionKey string `json:"version_key"`
}

// Stats summarizes cache contents.
type Stats struct {
	// Entries is the number of (path, version_key) rows.
	Entries int

	// Chunks is the total number of stored chunks.
	Chunks int

	// VersionKeys lists the distinct version keys present.
	VersionKeys []string

	// EntriesByKey is the entry count per version key.
	EntriesByKey map[string]int

	// SizeBytes is the database file size. Zero for in-memory stores.
	SizeBytes int64
}

// Orphaned returns the number of entries stored under version keys other
// than currentKey.
func (s Stats) Orphaned(currentKey string) int {
	return s.Entries - s.EntriesByKey[currentKey]
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian blob into a float32 vector.
// Returns false when the blob length is not a multiple of 4.
func decodeVector(blob []byte) ([]float32, bool) {
	if len(blob)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, true
}
