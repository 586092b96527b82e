// Package chunk derives overlapping text chunks from document content.
// Chunking is a pure function of (text, parameters): identical inputs always
// yield identical chunk sequences, which is what makes content-addressed
// embedding reuse and cache fingerprinting sound.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

// Params configures chunk derivation. Sizes are in words.
type Params struct {
	// ChunkSize is the target number of words per chunk.
	ChunkSize int

	// Overlap is the number of words shared by adjacent chunks.
	// Must be smaller than ChunkSize.
	Overlap int
}

// Chunk is one ordered unit of a document's text.
type Chunk struct {
	// Index is the chunk's position within the document, 0-based.
	Index int

	// Text is the chunk's content: words joined by single spaces.
	Text string

	// Hash is the hex-encoded SHA-256 of Text. Unchanged chunks keep their
	// hash across re-indexing, so their embeddings can be reused.
	Hash string
}

// Split derives the ordered chunk sequence for text.
//
// The document is tokenized into whitespace-separated words; chunks are
// sliding windows of ChunkSize words advancing by ChunkSize-Overlap. An empty
// or whitespace-only document yields no chunks. A document shorter than one
// window yields a single chunk holding the whole document.
func Split(text string, params Params) ([]Chunk, error) {
	if params.ChunkSize <= 0 {
		return nil, kberrors.ConfigError(
			fmt.Sprintf("chunk size must be positive, got %d", params.ChunkSize), nil)
	}
	if params.Overlap < 0 || params.Overlap >= params.ChunkSize {
		return nil, kberrors.ConfigError(
			fmt.Sprintf("chunk overlap (%d) must be in [0, chunk size %d)",
				params.Overlap, params.ChunkSize), nil)
	}

	words := tokenize(text)
	if len(words) == 0 {
		return []Chunk{}, nil
	}

	stride := params.ChunkSize - params.Overlap
	chunks := make([]Chunk, 0, (len(words)+stride-1)/stride)

	for start := 0; start < len(words); start += stride {
		end := start + params.ChunkSize
		if end > len(words) {
			end = len(words)
		}

		chunkText := strings.Join(words[start:end], " ")
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  chunkText,
			Hash:  HashText(chunkText),
		})

		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// HashText returns the hex-encoded SHA-256 of text.
// This is the content-addressing key for embedding reuse.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// tokenize splits text into whitespace-separated words. Runs of whitespace
// (including newlines) collapse, so formatting-only edits do not change the
// chunk sequence.
func tokenize(text string) []string {
	return strings.Fields(text)
}
