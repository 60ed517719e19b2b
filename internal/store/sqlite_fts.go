package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// SQLiteTextStore is a KeywordIndex on SQLite FTS5. Unlike Bleve it
// tolerates concurrent readers in other processes.
type SQLiteTextStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	closed    bool
	stopWords map[string]struct{}
}

var _ KeywordIndex = (*SQLiteTextStore)(nil)

// NewSQLiteTextStore opens or creates the index at path; an empty path is
// in-memory. A database failing its integrity check is removed and
// recreated empty.
func NewSQLiteTextStore(path string) (*SQLiteTextStore, error) {
	if path != "" {
		if validErr := checkSQLiteIntegrity(path, "vehicles_fts"); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w", path, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
	}

	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	// id and summary are stored but not searchable. text holds
	// pre-tokenized terms so both backends agree on tokenization.
	_, err = db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vehicles_fts USING fts5(
		id UNINDEXED,
		text,
		summary UNINDEXED,
		tokenize='unicode61'
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteTextStore{db: db, stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

// Index adds or replaces documents in one transaction.
func (s *SQLiteTextStore) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 has no REPLACE.
	del, err := tx.PrepareContext(ctx, `DELETE FROM vehicles_fts WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO vehicles_fts(id, text, summary) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer ins.Close()

	for _, doc := range docs {
		summary, err := json.Marshal(doc.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary for %s: %w", doc.ID, err)
		}
		text := strings.Join(FilterStopWords(Tokenize(doc.Text), s.stopWords), " ")

		if _, err := del.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to replace document %s: %w", doc.ID, err)
		}
		if _, err := ins.ExecContext(ctx, doc.ID, text, string(summary)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// KeywordSearch matches any term of text or synonyms. Scores are negated
// bm25() so higher is better.
func (s *SQLiteTextStore) KeywordSearch(ctx context.Context, text string, synonyms []string, limit int) ([]retrieval.KeywordHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	terms := searchTerms(text, synonyms, s.stopWords)
	if len(terms) == 0 || limit <= 0 {
		return []retrieval.KeywordHit{}, nil
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, summary, bm25(vehicles_fts) AS score
		FROM vehicles_fts
		WHERE vehicles_fts MATCH ?
		ORDER BY score, id
		LIMIT ?`, strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]retrieval.KeywordHit, 0, limit)
	for rows.Next() {
		var (
			id, raw string
			score   float64
		)
		if err := rows.Scan(&id, &raw, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var summary vehicle.Summary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			slog.Debug("keyword_summary_decode_failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		hits = append(hits, retrieval.KeywordHit{ID: id, Score: -score, Summary: summary})
	}
	return hits, rows.Err()
}

// Delete removes documents by ID.
func (s *SQLiteTextStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vehicles_fts WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *SQLiteTextStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM vehicles_fts`).Scan(&n)
	return n, err
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteTextStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
