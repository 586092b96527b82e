package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

// DefaultOpenAIBaseURL is the production OpenAI API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// BaseURL is the API endpoint. Defaults to DefaultOpenAIBaseURL.
	BaseURL string

	// APIKey authenticates requests. Falls back to the OPENAI_API_KEY
	// environment variable when empty.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the expected embedding dimension. Sent with each request
	// and enforced on each response.
	Dimensions int

	// BatchSize is the maximum number of texts per request. Larger inputs are
	// split into concurrent microbatches.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// OpenAIEmbedder generates embeddings using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, kberrors.ConfigError(
			"OpenAI API key missing: set embeddings api_key or OPENAI_API_KEY", nil)
	}
	if cfg.Model == "" {
		return nil, kberrors.ConfigError("embeddings.model must not be empty", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, kberrors.ConfigError(
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Indexing runs are short-lived; a short idle timeout releases
	// connections promptly after the process is interrupted.
	transport := &http.Transport{
		MaxIdleConns:        maxConcurrentBatches,
		MaxIdleConnsPerHost: maxConcurrentBatches,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

type embeddingsRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting inputs larger
// than the configured batch size into concurrent microbatches. Any microbatch
// failure fails the whole call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, kberrors.EmbeddingError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if len(texts) <= e.config.BatchSize {
		return e.embedRequest(ctx, texts)
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := e.embedRequest(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedRequest performs one POST /v1/embeddings call.
func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingsRequest{
		Model:          e.config.Model,
		Input:          texts,
		Dimensions:     e.config.Dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, kberrors.EmbeddingError("failed to encode embeddings request", err)
	}

	url := e.config.BaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, kberrors.EmbeddingError("failed to create embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, kberrors.EmbeddingError(
			fmt.Sprintf("embeddings request to %s failed", e.config.BaseURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embeddings API returned status %d", resp.StatusCode)
		var apiErr apiErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, apiErr.Error.Message)
		}
		return nil, kberrors.EmbeddingError(msg, nil)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, kberrors.EmbeddingError("failed to decode embeddings response", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, kberrors.EmbeddingError(
			fmt.Sprintf("embeddings response has %d vectors for %d inputs",
				len(parsed.Data), len(texts)), nil)
	}

	// The API is allowed to reorder items; index restores input order.
	vecs := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, kberrors.EmbeddingError(
				fmt.Sprintf("embeddings response index %d out of range", item.Index), nil)
		}
		if len(item.Embedding) != e.config.Dimensions {
			return nil, kberrors.DimensionMismatchError(e.config.Dimensions, len(item.Embedding))
		}
		vecs[item.Index] = normalizeVector(item.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, kberrors.EmbeddingError(
				fmt.Sprintf("embeddings response missing vector for input %d", i), nil)
		}
	}

	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the embedder can serve requests.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases pooled connections.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
