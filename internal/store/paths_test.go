package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	// Given a data dir with every seeded file plus telemetry
	dir := t.TempDir()
	seeded := []string{
		CatalogFile, CatalogFile + "-wal", "keyword.db",
		VectorFile, VectorFile + ".meta",
	}
	for _, name := range append(seeded, TelemetryFile) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keyword.bleve", "store"), 0o755))

	// When resetting
	require.NoError(t, Reset(dir))

	// Then seeded indexes are gone and telemetry survives
	for _, name := range append(seeded, "keyword.bleve") {
		assert.NoFileExists(t, filepath.Join(dir, name))
		assert.NoDirExists(t, filepath.Join(dir, name))
	}
	assert.FileExists(t, filepath.Join(dir, TelemetryFile))
}

func TestReset_EmptyDir(t *testing.T) {
	assert.NoError(t, Reset(t.TempDir()))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("d", "catalog.db"), CatalogPath("d"))
	assert.Equal(t, filepath.Join("d", "vectors.hnsw"), VectorPath("d"))
}
