package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeNotIndexed, CategoryIO},
		{ErrCodeEmbeddingFailed, CategoryNetwork},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestKBError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeNotIndexed, "document not indexed: /tmp/doc.md", nil)
	assert.Equal(t, "[ERR_201_NOT_INDEXED] document not indexed: /tmp/doc.md", err.Error())
}

func TestKBError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := EmbeddingError("embed batch failed", cause)

	// The provider error propagates unchanged on the chain.
	assert.ErrorIs(t, err, cause)
}

func TestKBError_IsMatchesByCode(t *testing.T) {
	a := NotIndexedError("/tmp/a.md")
	b := NotIndexedError("/tmp/b.md")

	assert.ErrorIs(t, a, b, "errors with same code should match")
	assert.NotErrorIs(t, a, ConfigError("bad", nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestCorruptEntryError_IsWarningSeverity(t *testing.T) {
	err := CorruptEntryError("/tmp/doc.md", "m:d8:p1:c1", errors.New("short blob"))

	assert.Equal(t, SeverityWarning, err.Severity)
	assert.Equal(t, "/tmp/doc.md", err.Details["path"])
	assert.Equal(t, "m:d8:p1:c1", err.Details["version_key"])
}

func TestHelpers_ClassifyWrappedErrors(t *testing.T) {
	// Given: KBErrors wrapped in plain fmt errors
	notIndexed := fmt.Errorf("search: %w", NotIndexedError("/tmp/doc.md"))
	embedding := fmt.Errorf("index: %w", EmbeddingError("boom", nil))
	mismatch := fmt.Errorf("index: %w", DimensionMismatchError(768, 512))
	corrupt := fmt.Errorf("get: %w", CorruptEntryError("/tmp/doc.md", "v", nil))

	// Then: classification helpers see through the wrapping
	assert.True(t, IsNotIndexed(notIndexed))
	assert.True(t, IsEmbeddingError(embedding))
	assert.True(t, IsEmbeddingError(mismatch))
	assert.True(t, IsCorruptEntry(corrupt))
	assert.False(t, IsNotIndexed(embedding))
}

func TestGetCode_ReturnsEmptyForPlainErrors(t *testing.T) {
	require.Empty(t, GetCode(errors.New("plain")))
	assert.Equal(t, ErrCodeNotIndexed, GetCode(NotIndexedError("/tmp/x")))
}
