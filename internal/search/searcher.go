// Package search answers semantic queries against indexed documents.
//
// Scoring is cosine similarity. Stored and query vectors are unit-normalized
// by the embedding layer, so cosine reduces to a dot product.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/kortix-ai/kb-fusion/internal/embed"
	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
	"github.com/kortix-ai/kb-fusion/internal/index"
	"github.com/kortix-ai/kb-fusion/internal/store"
)

// DefaultTopK is the number of results per query when the caller passes k <= 0.
const DefaultTopK = 5

// Result is one scored chunk for one query.
type Result struct {
	// Query is the query this result answers.
	Query string `json:"query"`

	// Path is the document the chunk belongs to.
	Path string `json:"path"`

	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int `json:"chunk_index"`

	// Score is the cosine similarity in [-1, 1].
	Score float64 `json:"score"`

	// Text is the full chunk content.
	Text string `json:"text"`

	// Snippet is a short query-focused excerpt of Text.
	Snippet string `json:"snippet"`
}

// Searcher runs semantic queries against stored entries.
type Searcher struct {
	store      *store.SQLiteStore
	embedder   embed.Embedder
	versionKey string
	logger     *slog.Logger
}

// New creates a Searcher bound to the store, embedder, and version key.
func New(st *store.SQLiteStore, embedder embed.Embedder, versionKey string, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		store:      st,
		embedder:   embedder,
		versionKey: versionKey,
		logger:     logger,
	}
}

// Search scores every chunk of the indexed document at path against each
// query and returns the top k results per query, aligned with the input
// order. Duplicate queries are embedded and scored once and share results.
//
// The document must already be indexed under the active version key;
// otherwise a NotIndexedError is returned. k <= 0 selects DefaultTopK;
// k larger than the chunk count returns every chunk.
func (s *Searcher) Search(ctx context.Context, path string, queries []string, k int) ([][]Result, error) {
	if len(queries) == 0 {
		return [][]Result{}, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeInvalidPath, "cannot resolve path: "+path, nil)
	}

	entry, err := s.store.Get(ctx, abs, s.versionKey)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, kberrors.NotIndexedError(abs)
	}
	if err := s.verifyFresh(ctx, abs, entry); err != nil {
		return nil, err
	}

	started := time.Now()

	// Embed each distinct query once, in a single batch.
	unique := make([]string, 0, len(queries))
	seen := make(map[string]int, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; !ok {
			seen[q] = len(unique)
			unique = append(unique, q)
		}
	}

	vectors, err := s.embedder.EmbedBatch(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(unique) {
		return nil, kberrors.EmbeddingError(
			fmt.Sprintf("embedder returned %d vectors for %d queries",
				len(vectors), len(unique)), nil)
	}

	perUnique := make([][]Result, len(unique))
	for i, q := range unique {
		perUnique[i], err = s.scoreQuery(entry, q, vectors[i], k)
		if err != nil {
			return nil, err
		}
	}

	results := make([][]Result, len(queries))
	for i, q := range queries {
		results[i] = perUnique[seen[q]]
	}

	s.logger.Debug("search_complete",
		slog.String("path", abs),
		slog.Int("queries", len(queries)),
		slog.Int("unique_queries", len(unique)),
		slog.Int("chunks", len(entry.Chunks)),
		slog.Duration("elapsed", time.Since(started)))

	return results, nil
}

// verifyFresh rejects entries that no longer describe the file on disk.
// Search never indexes: a stale entry is a NotIndexedError, not a trigger
// for silent re-embedding. A touched file with identical content only has
// its stored fingerprint refreshed.
func (s *Searcher) verifyFresh(ctx context.Context, abs string, entry *store.Entry) error {
	fp, err := index.StatFingerprint(abs)
	if err != nil {
		return err
	}
	if fp.MtimeNS == entry.Fingerprint.MtimeNS && fp.Size == entry.Fingerprint.Size {
		return nil
	}

	_, full, err := index.ReadDocument(abs)
	if err != nil {
		return err
	}
	if full.ContentHash != entry.Fingerprint.ContentHash {
		return kberrors.NotIndexedError(abs).WithDetail("reason", "content changed since indexing")
	}

	// Same content, new mtime: restore the fast path for future lookups.
	return s.store.TouchFingerprint(ctx, abs, s.versionKey, full)
}

// scoreQuery ranks the entry's chunks for one query vector.
// Ties break toward the earlier chunk, keeping ordering deterministic.
func (s *Searcher) scoreQuery(entry *store.Entry, query string, qvec []float32, k int) ([]Result, error) {
	scored := make([]Result, 0, len(entry.Chunks))
	for _, c := range entry.Chunks {
		if len(c.Embedding) != len(qvec) {
			return nil, kberrors.DimensionMismatchError(len(qvec), len(c.Embedding))
		}
		scored = append(scored, Result{
			Query:      query,
			Path:       entry.Path,
			ChunkIndex: c.Index,
			Score:      dot(qvec, c.Embedding),
			Text:       c.Text,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Snippet = Snippet(scored[i].Text, query, DefaultSnippetChars)
	}
	return scored, nil
}

// dot computes the dot product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
