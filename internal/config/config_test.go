package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	assert.Equal(t, 220, cfg.Chunking.ChunkSize)
	assert.Equal(t, 20, cfg.Chunking.ChunkOverlap)
	assert.NotEmpty(t, cfg.Cache.Dir)

	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config file in a temp dir, no user config
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	yaml := `
embeddings:
  model: text-embedding-3-large
  dimensions: 3072
chunking:
  chunk_size: 300
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbfusion.yaml"), []byte(yaml), 0o644))

	// When: loading config from that dir
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: file values override defaults, unset values keep defaults
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.Model)
	assert.Equal(t, 3072, cfg.Embeddings.Dimensions)
	assert.Equal(t, 300, cfg.Chunking.ChunkSize)
	assert.Equal(t, 20, cfg.Chunking.ChunkOverlap, "unset overlap keeps default")
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	yaml := "chunking:\n  chunk_size: 300\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbfusion.yaml"), []byte(yaml), 0o644))

	t.Setenv("KBFUSION_CHUNK_SIZE", "150")
	t.Setenv("KBFUSION_MODEL", "env-model")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Chunking.ChunkSize)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_MissingProjectFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 220, cfg.Chunking.ChunkSize)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbfusion.yaml"), []byte("chunking: ["), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, kberrors.IsConfigError(err))
}

func TestValidate_OverlapMustBeSmallerThanChunkSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 220, 20, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"negative overlap", 100, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Chunking.ChunkSize = tt.size
			cfg.Chunking.ChunkOverlap = tt.overlap

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, kberrors.IsConfigError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_UnknownProviderFails(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, kberrors.IsConfigError(err))
}
