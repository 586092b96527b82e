package embed

import (
	"fmt"

	"github.com/kortix-ai/kb-fusion/internal/config"
	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

// New creates the embedder selected by cfg, wrapped with an in-process LRU
// so repeated texts within a run are embedded once.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	case "static":
		inner = NewStaticEmbedder(cfg.Dimensions)
	default:
		return nil, kberrors.ConfigError(
			fmt.Sprintf("unknown embeddings.provider %q (use: openai, static)", cfg.Provider), nil)
	}

	return NewCachedEmbedder(inner, cfg.QueryCacheSize), nil
}
