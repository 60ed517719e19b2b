package store

import (
	"fmt"
	"path/filepath"
)

// Keyword index backends.
const (
	KeywordBackendBleve  = "bleve"
	KeywordBackendSQLite = "sqlite"
)

// KeywordIndexPath returns where backend keeps its index under dataDir.
func KeywordIndexPath(dataDir, backend string) string {
	if backend == KeywordBackendSQLite {
		return filepath.Join(dataDir, "keyword.db")
	}
	return filepath.Join(dataDir, "keyword.bleve")
}

// NewKeywordIndex opens the keyword index for backend under dataDir. An
// empty dataDir opens an in-memory index.
func NewKeywordIndex(dataDir, backend string) (KeywordIndex, error) {
	var path string
	if dataDir != "" {
		path = KeywordIndexPath(dataDir, backend)
	}

	switch backend {
	case KeywordBackendBleve, "":
		return NewBleveTextStore(path)
	case KeywordBackendSQLite:
		return NewSQLiteTextStore(path)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: bleve, sqlite)", backend)
	}
}
