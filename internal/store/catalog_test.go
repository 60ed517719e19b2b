package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

func ptr[T any](v T) *T { return &v }

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	err = c.Upsert(context.Background(), []vehicle.Record{
		{ID: "civic", Summary: vehicle.Summary{Year: 2021, Make: "Honda", Model: "Civic", BodyType: "sedan", Price: 21000, Condition: "used", Mileage: 30000}, ListedAt: base},
		{ID: "accord", Summary: vehicle.Summary{Year: 2023, Make: "Honda", Model: "Accord", BodyType: "sedan", Price: 29000, Condition: "new"}, ListedAt: base.Add(48 * time.Hour)},
		{ID: "f150", Summary: vehicle.Summary{Year: 2019, Make: "Ford", Model: "F-150", BodyType: "truck", Price: 32000, Condition: "used", Mileage: 60000}, Description: "Crew cab", ListedAt: base.Add(24 * time.Hour)},
	})
	require.NoError(t, err)
	return c
}

func ids(hits []retrieval.FilterHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestSQLiteCatalog_FilterSearch(t *testing.T) {
	tests := []struct {
		name    string
		filters retrieval.Filters
		want    []string
	}{
		{"no filters returns newest first", retrieval.Filters{}, []string{"accord", "f150", "civic"}},
		{"make is case-insensitive", retrieval.Filters{Make: "honda"}, []string{"accord", "civic"}},
		{"price range", retrieval.Filters{PriceMin: ptr(25000.0), PriceMax: ptr(30000.0)}, []string{"accord"}},
		{"year floor", retrieval.Filters{YearMin: ptr(2020)}, []string{"accord", "civic"}},
		{"year ceiling", retrieval.Filters{YearMax: ptr(2020)}, []string{"f150"}},
		{"mileage cap", retrieval.Filters{MileageMax: ptr(40000)}, []string{"accord", "civic"}},
		{"body type and condition", retrieval.Filters{BodyType: "Sedan", Condition: "USED"}, []string{"civic"}},
		{"nothing matches", retrieval.Filters{Make: "Tesla"}, []string{}},
	}

	c := newTestCatalog(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := c.FilterSearch(context.Background(), tt.filters, 0)

			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(hits))
		})
	}
}

func TestSQLiteCatalog_FilterSearchLimitAndSummary(t *testing.T) {
	c := newTestCatalog(t)

	hits, err := c.FilterSearch(context.Background(), retrieval.Filters{Make: "Ford"}, 1)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "F-150", hits[0].Summary.Model)
	assert.Equal(t, "Crew cab", hits[0].Summary.Snippet)
}

func TestSQLiteCatalog_UpsertReplaces(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, []vehicle.Record{{ID: "civic", Summary: vehicle.Summary{Make: "Honda", Model: "Civic", Price: 19500}}}))

	r, err := c.Get(ctx, "civic")
	require.NoError(t, err)
	assert.InDelta(t, 19500, r.Price, 0.01)
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteCatalog_GetRoundTripsListedAt(t *testing.T) {
	c := newTestCatalog(t)

	r, err := c.Get(context.Background(), "accord")

	require.NoError(t, err)
	assert.True(t, r.ListedAt.Equal(time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)))
}

func TestSQLiteCatalog_GetMissing(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCatalog_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(context.Background(), []vehicle.Record{{ID: "x", Summary: vehicle.Summary{Make: "Kia"}}}))
	require.NoError(t, c.Close())

	reopened, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteCatalog_Closed(t *testing.T) {
	c, err := NewSQLiteCatalog("")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.FilterSearch(context.Background(), retrieval.Filters{}, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
