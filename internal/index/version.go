// Package index keeps the durable cache in sync with documents on disk.
//
// EnsureIndexed is the single entry point: given a document path it decides,
// using stored fingerprints, whether the cached entry is current, refreshable,
// or stale, and re-chunks and re-embeds only when content actually changed.
package index

import (
	"fmt"

	"github.com/kortix-ai/kb-fusion/internal/config"
)

// VersionKey identifies one embedding configuration. Entries written under
// different keys never interact: changing the model, dimension, or any
// version-affecting algorithm orphans old entries instead of corrupting them.
func VersionKey(cfg *config.Config) string {
	return fmt.Sprintf("%s:d%d:p%d:c%d",
		cfg.Embeddings.Model,
		cfg.Embeddings.Dimensions,
		config.PreprocVersion,
		config.ChunkerVersion)
}
