package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kortix-ai/kb-fusion/internal/chunk"
	"github.com/kortix-ai/kb-fusion/internal/config"
	"github.com/kortix-ai/kb-fusion/internal/embed"
	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
	"github.com/kortix-ai/kb-fusion/internal/store"
)

// Status describes what EnsureIndexed did for a document.
type Status string

const (
	// StatusUnchanged means the stored entry was already current.
	StatusUnchanged Status = "unchanged"

	// StatusRefreshed means the file was touched but content did not change;
	// only the stored fingerprint was updated.
	StatusRefreshed Status = "refreshed"

	// StatusIndexed means the document was indexed for the first time under
	// the active version key.
	StatusIndexed Status = "indexed"

	// StatusReindexed means changed content was re-chunked and re-embedded.
	StatusReindexed Status = "reindexed"
)

// Result reports the outcome of one EnsureIndexed call.
type Result struct {
	Path     string        `json:"path"`
	Status   Status        `json:"status"`
	Chunks   int           `json:"chunks"`
	Reused   int           `json:"reused"`
	Embedded int           `json:"embedded"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Indexer brings documents into the cache under one version key.
type Indexer struct {
	cfg        *config.Config
	store      *store.SQLiteStore
	embedder   embed.Embedder
	versionKey string
	logger     *slog.Logger
}

// New creates an Indexer bound to the store and embedder.
func New(cfg *config.Config, st *store.SQLiteStore, embedder embed.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		cfg:        cfg,
		store:      st,
		embedder:   embedder,
		versionKey: VersionKey(cfg),
		logger:     logger,
	}
}

// VersionKey returns the active version key.
func (ix *Indexer) VersionKey() string {
	return ix.versionKey
}

// EnsureIndexed makes the cache entry for path current, doing the least work
// that restores freshness:
//
//  1. Stored (mtime, size) matches the file: nothing to do, no content read.
//  2. File was touched but the content hash is unchanged: refresh the stored
//     fingerprint so the next call takes the fast path again.
//  3. Content changed or no entry exists: re-chunk, embed (reusing stored
//     embeddings for chunks whose text survived the edit), and atomically
//     replace the entry.
//
// Concurrent calls for the same path are serialized with a cross-process
// file lock; the loser of the race re-checks and usually finds fresh work
// already done.
func (ix *Indexer) EnsureIndexed(ctx context.Context, path string) (*Result, error) {
	started := time.Now()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeInvalidPath,
			fmt.Sprintf("cannot resolve path: %s", path), nil)
	}

	entry, err := ix.store.Get(ctx, abs, ix.versionKey)
	if err != nil {
		return nil, err
	}

	// Fast path: stat only, no content read.
	if entry != nil {
		fp, err := StatFingerprint(abs)
		if err != nil {
			return nil, err
		}
		if fp.MtimeNS == entry.Fingerprint.MtimeNS && fp.Size == entry.Fingerprint.Size {
			return &Result{
				Path:    abs,
				Status:  StatusUnchanged,
				Chunks:  len(entry.Chunks),
				Elapsed: time.Since(started),
			}, nil
		}
	}

	content, fp, err := ReadDocument(abs)
	if err != nil {
		return nil, err
	}

	// Touched but identical content: refresh the fingerprint only.
	if entry != nil && fp.ContentHash == entry.Fingerprint.ContentHash {
		if err := ix.store.TouchFingerprint(ctx, abs, ix.versionKey, fp); err != nil {
			return nil, err
		}
		return &Result{
			Path:    abs,
			Status:  StatusRefreshed,
			Chunks:  len(entry.Chunks),
			Elapsed: time.Since(started),
		}, nil
	}

	lock := newPathLock(ix.cfg.Cache.Dir, abs)
	if err := lock.Lock(); err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeCacheStore, err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have indexed this content while we waited.
	entry, err = ix.store.Get(ctx, abs, ix.versionKey)
	if err != nil {
		return nil, err
	}
	if entry != nil && fp.ContentHash == entry.Fingerprint.ContentHash {
		if fp.MtimeNS != entry.Fingerprint.MtimeNS || fp.Size != entry.Fingerprint.Size {
			if err := ix.store.TouchFingerprint(ctx, abs, ix.versionKey, fp); err != nil {
				return nil, err
			}
		}
		return &Result{
			Path:    abs,
			Status:  StatusUnchanged,
			Chunks:  len(entry.Chunks),
			Elapsed: time.Since(started),
		}, nil
	}

	result, err := ix.reindex(ctx, abs, content, fp, entry)
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(started)

	ix.logger.Info("index_complete",
		slog.String("path", abs),
		slog.String("status", string(result.Status)),
		slog.Int("chunks", result.Chunks),
		slog.Int("reused", result.Reused),
		slog.Int("embedded", result.Embedded),
		slog.Duration("elapsed", result.Elapsed))

	return result, nil
}

// reindex chunks content, embeds what cannot be reused, and atomically
// replaces the stored entry. Callers hold the path lock.
func (ix *Indexer) reindex(ctx context.Context, path, content string, fp store.Fingerprint, prev *store.Entry) (*Result, error) {
	chunks, err := chunk.Split(content, chunk.Params{
		ChunkSize: ix.cfg.Chunking.ChunkSize,
		Overlap:   ix.cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	// Embeddings from the previous entry, keyed by chunk text hash.
	// Chunks whose text survived the edit keep their vectors.
	reusable := make(map[string][]float32)
	if prev != nil {
		for _, c := range prev.Chunks {
			reusable[c.Hash] = c.Embedding
		}
	}

	stored := make([]store.StoredChunk, len(chunks))
	var (
		pendingTexts  []string
		pendingHashes []string
		pending       = make(map[string][]int) // hash -> positions awaiting a vector
		reused        int
	)
	for i, c := range chunks {
		stored[i] = store.StoredChunk{Index: c.Index, Text: c.Text, Hash: c.Hash}
		if vec, ok := reusable[c.Hash]; ok {
			stored[i].Embedding = vec
			reused++
			continue
		}
		if _, seen := pending[c.Hash]; !seen {
			pendingTexts = append(pendingTexts, c.Text)
			pendingHashes = append(pendingHashes, c.Hash)
		}
		pending[c.Hash] = append(pending[c.Hash], i)
	}

	if len(pendingTexts) > 0 {
		vecs, err := ix.embedder.EmbedBatch(ctx, pendingTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(pendingTexts) {
			return nil, kberrors.EmbeddingError(
				fmt.Sprintf("embedder returned %d vectors for %d texts",
					len(vecs), len(pendingTexts)), nil)
		}
		for j, hash := range pendingHashes {
			if len(vecs[j]) != ix.cfg.Embeddings.Dimensions {
				return nil, kberrors.DimensionMismatchError(
					ix.cfg.Embeddings.Dimensions, len(vecs[j]))
			}
			for _, pos := range pending[hash] {
				stored[pos].Embedding = vecs[j]
			}
		}
	}

	entry := &store.Entry{
		Path:        path,
		VersionKey:  ix.versionKey,
		Fingerprint: fp,
		Chunks:      stored,
		IndexedAt:   time.Now(),
	}
	if err := ix.store.Put(ctx, entry); err != nil {
		return nil, err
	}

	status := StatusIndexed
	if prev != nil {
		status = StatusReindexed
	}
	return &Result{
		Path:     path,
		Status:   status,
		Chunks:   len(stored),
		Reused:   reused,
		Embedded: len(pendingTexts),
	}, nil
}
