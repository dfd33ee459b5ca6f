package mustache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLPartials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("greeting: \"Hello, {{name}}!\"\nfarewell: \"Bye, {{name}}.\"\n"), 0o644))

	sp, err := LoadYAMLPartials(path)
	require.NoError(t, err)

	tmpl, err := New().WithPartials(sp).CompileString(`{{>greeting}} {{>farewell}}`)
	require.NoError(t, err)

	out, err := tmpl.Render(map[string]string{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world! Bye, world.", out)
}

func TestLoadYAMLPartialsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [\n"), 0o644))

	_, err := LoadYAMLPartials(path)
	assert.Error(t, err)
}

func TestLoadYAMLPartialsMissingFile(t *testing.T) {
	_, err := LoadYAMLPartials(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
