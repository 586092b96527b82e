// Package kb is the public entry point for kb-fusion: a durable per-document
// cache of text chunks and embeddings with content-change detection and
// cosine semantic search.
//
// A Client owns the cache database and an embedding provider. The typical
// flow is a single call to SemanticSearch, which brings the document's cache
// entry up to date and then answers the queries:
//
//	client, err := kb.Open(cfg, logger)
//	if err != nil { ... }
//	defer client.Close()
//
//	results, err := client.SemanticSearch(ctx, "notes.md", []string{"how is invalidation handled?"}, 5)
package kb

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/kortix-ai/kb-fusion/internal/config"
	"github.com/kortix-ai/kb-fusion/internal/embed"
	"github.com/kortix-ai/kb-fusion/internal/index"
	"github.com/kortix-ai/kb-fusion/internal/search"
	"github.com/kortix-ai/kb-fusion/internal/store"
	"github.com/kortix-ai/kb-fusion/internal/sweep"
)

// CacheDBName is the cache database file name under the cache directory.
const CacheDBName = "cache.db"

// Client is a handle on one cache directory and embedding configuration.
// It is safe for concurrent use.
type Client struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	embedder embed.Embedder
	indexer  *index.Indexer
	searcher *search.Searcher
	sweeper  *sweep.Sweeper
}

// Open creates a Client from cfg. The cache directory and database are
// created on first use. A nil logger falls back to slog.Default.
func Open(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(filepath.Join(cfg.Cache.Dir, CacheDBName))
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	indexer := index.New(cfg, st, embedder, logger)
	return &Client{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		indexer:  indexer,
		searcher: search.New(st, embedder, indexer.VersionKey(), logger),
		sweeper:  sweep.New(st, logger),
	}, nil
}

// EnsureIndexed makes the cache entry for path current, re-embedding only
// what actually changed. See index.Indexer.EnsureIndexed for the exact
// freshness rules.
func (c *Client) EnsureIndexed(ctx context.Context, path string) (*index.Result, error) {
	return c.indexer.EnsureIndexed(ctx, path)
}

// SemanticSearch indexes path if needed, then returns the top k chunks per
// query, aligned with the input query order.
func (c *Client) SemanticSearch(ctx context.Context, path string, queries []string, k int) ([][]search.Result, error) {
	if len(queries) == 0 {
		return [][]search.Result{}, nil
	}
	if _, err := c.indexer.EnsureIndexed(ctx, path); err != nil {
		return nil, err
	}
	return c.searcher.Search(ctx, path, queries, k)
}

// Search answers queries against an already indexed document without
// touching the filesystem. Returns a NotIndexedError when the document has
// no entry under the active version key.
func (c *Client) Search(ctx context.Context, path string, queries []string, k int) ([][]search.Result, error) {
	return c.searcher.Search(ctx, path, queries, k)
}

// SweepPath removes every cache entry for path, across all version keys.
func (c *Client) SweepPath(ctx context.Context, path string) (int, error) {
	return c.sweeper.RemovePath(ctx, path)
}

// SweepOrphans removes entries written under version keys other than the
// active one.
func (c *Client) SweepOrphans(ctx context.Context) (int, error) {
	return c.sweeper.RemoveOrphans(ctx, c.indexer.VersionKey())
}

// ListOrphans enumerates entries written under version keys other than the
// active one, without removing anything.
func (c *Client) ListOrphans(ctx context.Context) ([]store.OrphanRef, error) {
	return c.store.ListOrphaned(ctx, c.indexer.VersionKey())
}

// Stats reports cache contents.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	return c.store.Stats(ctx)
}

// VersionKey returns the active version key.
func (c *Client) VersionKey() string {
	return c.indexer.VersionKey()
}

// Config returns the client's configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Close releases the embedder and database.
func (c *Client) Close() error {
	embErr := c.embedder.Close()
	if err := c.store.Close(); err != nil {
		return err
	}
	return embErr
}
