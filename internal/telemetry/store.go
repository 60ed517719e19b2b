package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// MaxZeroResultQueries bounds the persisted zero-result history.
const MaxZeroResultQueries = 100

// SQLiteMetricsStore implements Store on a database/sql handle. The
// driver is the caller's choice; the schema only uses portable SQLite.
type SQLiteMetricsStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteMetricsStore)(nil)

// NewSQLiteMetricsStore wraps db, creating the tables if needed.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := InitSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	-- Degraded stage counts (aggregated daily)
	CREATE TABLE IF NOT EXISTS stage_degraded_stats (
		date TEXT NOT NULL,
		stage TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, stage)
	);

	-- Query terms with frequency
	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	-- Zero-result queries (bounded FIFO)
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- End-to-end latency histogram
	CREATE TABLE IF NOT EXISTS search_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// execBatch runs query once per argument row inside one transaction.
func (s *SQLiteMetricsStore) execBatch(query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// saveDaily adds counts to a (date, key) keyed table.
func (s *SQLiteMetricsStore) saveDaily(table, keyColumn, date string, counts map[string]int64) error {
	rows := make([][]any, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, []any{date, key, count})
	}
	upsert := fmt.Sprintf(`INSERT INTO %[1]s (date, %[2]s, count) VALUES (?, ?, ?)
		ON CONFLICT(date, %[2]s) DO UPDATE SET count = count + excluded.count`, table, keyColumn)
	if err := s.execBatch(upsert, rows); err != nil {
		return fmt.Errorf("save %s counts: %w", table, err)
	}
	return nil
}

// getDaily sums counts per key over an inclusive date range.
func (s *SQLiteMetricsStore) getDaily(table, keyColumn, from, to string) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := s.scanEach(fmt.Sprintf(`SELECT %[2]s, SUM(count) FROM %[1]s
		WHERE date >= ? AND date <= ? GROUP BY %[2]s`, table, keyColumn),
		[]any{from, to},
		func(rows *sql.Rows) error {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			counts[key] = count
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read %s counts: %w", table, err)
	}
	return counts, nil
}

// scanEach runs query and calls fn for every row.
func (s *SQLiteMetricsStore) scanEach(query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveLatencyCounts adds to the daily latency histogram.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	flat := make(map[string]int64, len(counts))
	for k, v := range counts {
		flat[string(k)] = v
	}
	return s.saveDaily("search_latency_stats", "bucket", date, flat)
}

// GetLatencyCounts returns the latency histogram for a date range.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	flat, err := s.getDaily("search_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(flat))
	for k, v := range flat {
		counts[LatencyBucket(k)] = v
	}
	return counts, nil
}

// SaveStageCounts adds to the daily degraded-stage counts.
func (s *SQLiteMetricsStore) SaveStageCounts(date string, counts map[Stage]int64) error {
	flat := make(map[string]int64, len(counts))
	for k, v := range counts {
		flat[string(k)] = v
	}
	return s.saveDaily("stage_degraded_stats", "stage", date, flat)
}

// GetStageCounts returns degraded-stage counts for a date range.
func (s *SQLiteMetricsStore) GetStageCounts(from, to string) (map[Stage]int64, error) {
	flat, err := s.getDaily("stage_degraded_stats", "stage", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[Stage]int64, len(flat))
	for k, v := range flat {
		counts[Stage(k)] = v
	}
	return counts, nil
}

// UpsertTermCounts adds to term frequency counts.
func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	rows := make([][]any, 0, len(terms))
	for term, count := range terms {
		rows = append(rows, []any{term, count})
	}
	err := s.execBatch(`INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = CURRENT_TIMESTAMP`, rows)
	if err != nil {
		return fmt.Errorf("save term counts: %w", err)
	}
	return nil
}

// GetTopTerms returns the most frequent terms, ties broken alphabetically.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	var terms []TermCount
	err := s.scanEach(`SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`,
		[]any{limit},
		func(rows *sql.Rows) error {
			var tc TermCount
			if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
				return err
			}
			terms = append(terms, tc)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read top terms: %w", err)
	}
	return terms, nil
}

// AddZeroResultQuery records a query and keeps the newest MaxZeroResultQueries.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	err := s.execBatch(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		[][]any{{query, timestamp.UTC().Format(time.RFC3339)}})
	if err != nil {
		return fmt.Errorf("save zero-result query: %w", err)
	}
	_, err = s.db.Exec(`DELETE FROM zero_result_queries
		WHERE id <= (SELECT MAX(id) FROM zero_result_queries) - ?`, MaxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries returns recent zero-result queries, newest first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	var queries []string
	err := s.scanEach(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`,
		[]any{limit},
		func(rows *sql.Rows) error {
			var q string
			if err := rows.Scan(&q); err != nil {
				return err
			}
			queries = append(queries, q)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("read zero-result queries: %w", err)
	}
	return queries, nil
}

// Close is a no-op; the caller owns db.
func (s *SQLiteMetricsStore) Close() error {
	return nil
}
