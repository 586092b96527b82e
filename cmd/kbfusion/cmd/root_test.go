package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestVersionCommand(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev", strings.TrimSpace(out))
}

func TestIndexAndSearchCommands(t *testing.T) {
	isolate(t)
	cacheDir := t.TempDir()

	doc := filepath.Join(t.TempDir(), "notes.md")
	content := strings.Repeat("chunk embeddings are cached per document and version key. ", 30)
	require.NoError(t, os.WriteFile(doc, []byte(content), 0o644))

	// When: the document is indexed offline
	out, err := runCLI(t, "index", doc, "--offline", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed")

	// And: indexed again without changes
	out, err = runCLI(t, "index", doc, "--offline", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged")

	// Then: search returns scored snippets
	out, err = runCLI(t, "search", doc, "cached embeddings", "--offline", "--cache-dir", cacheDir, "-k", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "query: cached embeddings")
	assert.Contains(t, out, "0.")
}

func TestSearchCommand_NoIndexFailsWhenAbsent(t *testing.T) {
	isolate(t)

	doc := filepath.Join(t.TempDir(), "absent.md")
	require.NoError(t, os.WriteFile(doc, []byte("some words"), 0o644))

	_, err := runCLI(t, "search", doc, "query", "--offline",
		"--cache-dir", t.TempDir(), "--no-index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_201_NOT_INDEXED")
}

func TestSweepCommand_RequiresTarget(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "sweep", "--offline", "--cache-dir", t.TempDir())
	require.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, ".kbfusion.yaml")

	data, err := os.ReadFile(".kbfusion.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size")

	// Second init refuses to clobber
	_, err = runCLI(t, "init")
	require.Error(t, err)

	_, err = runCLI(t, "init", "--force")
	require.NoError(t, err)
}

func TestStatusCommand_JSON(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "status", "--offline", "--cache-dir", t.TempDir(), "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version_key"`)
	assert.Contains(t, out, `"entries": 0`)
}
