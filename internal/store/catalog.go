package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// ErrNotFound is returned by Get for an unknown vehicle ID.
var ErrNotFound = errors.New("vehicle not found")

// SQLiteCatalog is the structured vehicle table used by the filter
// sub-search.
type SQLiteCatalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ retrieval.StructuredStore = (*SQLiteCatalog)(nil)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id          TEXT PRIMARY KEY,
	year        INTEGER NOT NULL DEFAULT 0,
	make        TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	trim        TEXT NOT NULL DEFAULT '',
	body_type   TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL DEFAULT 0,
	condition   TEXT NOT NULL DEFAULT '',
	mileage     INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	listed_at   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_vehicles_make ON vehicles(make COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_vehicles_price ON vehicles(price);
CREATE INDEX IF NOT EXISTS idx_vehicles_listed ON vehicles(listed_at DESC);
`

// NewSQLiteCatalog opens or creates the catalog at path; an empty path is
// in-memory.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Upsert inserts or replaces records in one transaction.
func (c *SQLiteCatalog) Upsert(ctx context.Context, records []vehicle.Record) error {
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO vehicles
		(id, year, make, model, trim, body_type, price, condition, mileage, description, listed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var listed string
		if !r.ListedAt.IsZero() {
			listed = r.ListedAt.UTC().Format(time.RFC3339)
		}
		_, err := stmt.ExecContext(ctx, r.ID, r.Year, r.Make, r.Model, r.Trim, r.BodyType,
			r.Price, r.Condition, r.Mileage, r.Description, listed)
		if err != nil {
			return fmt.Errorf("failed to upsert vehicle %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// FilterSearch returns vehicles matching every set filter, newest listing
// first. Text filters compare case-insensitively. A limit of zero or less
// means no limit.
func (c *SQLiteCatalog) FilterSearch(ctx context.Context, f retrieval.Filters, limit int) ([]retrieval.FilterHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	where, args := filterClause(f)
	q := "SELECT " + recordColumns + " FROM vehicles" + where + " ORDER BY listed_at DESC, id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("filter search failed: %w", err)
	}
	defer rows.Close()

	var hits []retrieval.FilterHit
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, retrieval.FilterHit{ID: r.ID, Summary: r.ToSummary()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter search failed: %w", err)
	}
	if hits == nil {
		hits = []retrieval.FilterHit{}
	}
	return hits, nil
}

func filterClause(f retrieval.Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}

	if f.PriceMin != nil {
		add("price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price <= ?", *f.PriceMax)
	}
	if f.YearMin != nil {
		add("year >= ?", *f.YearMin)
	}
	if f.YearMax != nil {
		add("year <= ?", *f.YearMax)
	}
	if f.MileageMax != nil {
		add("mileage <= ?", *f.MileageMax)
	}
	if f.Make != "" {
		add("make = ? COLLATE NOCASE", f.Make)
	}
	if f.Condition != "" {
		add("condition = ? COLLATE NOCASE", f.Condition)
	}
	if f.BodyType != "" {
		add("body_type = ? COLLATE NOCASE", f.BodyType)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const recordColumns = "id, year, make, model, trim, body_type, price, condition, mileage, description, listed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (vehicle.Record, error) {
	var (
		r      vehicle.Record
		listed string
	)
	err := row.Scan(&r.ID, &r.Year, &r.Make, &r.Model, &r.Trim, &r.BodyType,
		&r.Price, &r.Condition, &r.Mileage, &r.Description, &listed)
	if err != nil {
		return r, err
	}
	if listed != "" {
		if t, err := time.Parse(time.RFC3339, listed); err == nil {
			r.ListedAt = t
		}
	}
	return r, nil
}

// Get returns one record, or ErrNotFound.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (vehicle.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return vehicle.Record{}, ErrClosed
	}

	row := c.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM vehicles WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vehicle.Record{}, ErrNotFound
	}
	if err != nil {
		return vehicle.Record{}, fmt.Errorf("failed to get vehicle %s: %w", id, err)
	}
	return r, nil
}

// Count returns the number of catalog records.
func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrClosed
	}
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n)
	return n, err
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
