package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Files kept under the data directory.
const (
	CatalogFile   = "catalog.db"
	VectorFile    = "vectors.hnsw"
	TelemetryFile = "telemetry.db"
	// ExpansionCacheDir holds the badger expansion cache.
	ExpansionCacheDir = "expansion-cache"
)

// CatalogPath returns the catalog database path under dataDir.
func CatalogPath(dataDir string) string {
	return filepath.Join(dataDir, CatalogFile)
}

// VectorPath returns the HNSW graph path under dataDir.
func VectorPath(dataDir string) string {
	return filepath.Join(dataDir, VectorFile)
}

// Reset removes every seeded index under dataDir: the catalog, both
// keyword backends and the vector graph. Telemetry and the expansion
// cache are kept. Missing files are not an error.
func Reset(dataDir string) error {
	paths := []string{
		CatalogPath(dataDir),
		KeywordIndexPath(dataDir, KeywordBackendBleve),
		KeywordIndexPath(dataDir, KeywordBackendSQLite),
		VectorPath(dataDir),
		VectorPath(dataDir) + ".meta",
	}
	for _, base := range paths {
		// SQLite WAL files go with their database.
		for _, p := range []string{base, base + "-wal", base + "-shm"} {
			if err := os.RemoveAll(p); err != nil {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
	}
	return nil
}
