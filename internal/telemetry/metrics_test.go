package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{999 * time.Millisecond, BucketP1000},
		{4 * time.Second, BucketP5000},
		{5 * time.Second, BucketOver5s},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"red", "ford", "truck"}, ExtractTerms("  Red FORD a truck "))
	assert.Nil(t, ExtractTerms("a b"))
}

// =============================================================================
// Recording
// =============================================================================

func TestPipelineMetrics_RecordSearch(t *testing.T) {
	// Given: an in-memory collector
	m := NewPipelineMetrics(nil, Config{})
	defer m.Close()

	// When: recording a mix of requests
	m.RecordSearch(SearchEvent{Query: "red truck", ResultCount: 5, Latency: 50 * time.Millisecond})
	m.RecordSearch(SearchEvent{Query: "Red  Truck", ResultCount: 0, Latency: 2 * time.Second,
		Degraded: []Stage{StageExpansion, StageRerank}})
	m.RecordSearch(SearchEvent{Query: "boat", Failed: true, Latency: 6 * time.Second,
		Degraded: []Stage{StageVector, StageKeyword, StageFilter}})

	// Then: the snapshot reflects every dimension
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.FailedQueries)
	assert.Equal(t, int64(2), s.ZeroResultCount)
	assert.Equal(t, []string{"Red  Truck", "boat"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.DegradedCounts[StageRerank])
	assert.Equal(t, int64(1), s.DegradedCounts[StageFilter])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP100])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP5000])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketOver5s])
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "red", Count: 2}, s.TopTerms[0])
	assert.InDelta(t, 66.67, s.ZeroResultPercentage(), 0.01)
	assert.InDelta(t, 1.0/3, s.DegradedRate(StageExpansion), 1e-9)
}

func TestPipelineMetrics_EmptySnapshot(t *testing.T) {
	s := NewPipelineMetrics(nil, Config{}).Snapshot()

	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Zero(t, s.DegradedRate(StageRerank))
}

func TestPipelineMetrics_IgnoredAfterClose(t *testing.T) {
	m := NewPipelineMetrics(nil, Config{})
	require.NoError(t, m.Close())

	m.RecordSearch(SearchEvent{Query: "late"})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestPipelineMetrics_ConcurrentRecord(t *testing.T) {
	m := NewPipelineMetrics(nil, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSearch(SearchEvent{Query: "suv", ResultCount: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}

// =============================================================================
// Flushing
// =============================================================================

func TestPipelineMetrics_FlushWritesDeltas(t *testing.T) {
	// Given: a collector backed by SQLite
	store := setupTestStore(t)
	m := NewPipelineMetrics(store, Config{})
	today := time.Now().Format("2006-01-02")

	// When: flushing twice with one request in between each
	m.RecordSearch(SearchEvent{Query: "blue sedan", ResultCount: 0, Degraded: []Stage{StageRerank}})
	require.NoError(t, m.Flush())
	m.RecordSearch(SearchEvent{Query: "blue coupe", ResultCount: 3})
	require.NoError(t, m.Close())

	// Then: each request is persisted exactly once
	latency, err := store.GetLatencyCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latency[BucketP100])

	stages, err := store.GetStageCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stages[StageRerank])

	terms, err := store.GetTopTerms(1)
	require.NoError(t, err)
	assert.Equal(t, TermCount{Term: "blue", Count: 2}, terms[0])

	zero, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"blue sedan"}, zero)
}

type failingStore struct {
	Store
	failTerms bool
	latency   map[LatencyBucket]int64
	terms     map[string]int64
}

func (f *failingStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	for k, v := range counts {
		f.latency[k] += v
	}
	return nil
}

func (f *failingStore) SaveStageCounts(string, map[Stage]int64) error { return nil }

func (f *failingStore) UpsertTermCounts(terms map[string]int64) error {
	if f.failTerms {
		return errors.New("disk full")
	}
	for k, v := range terms {
		f.terms[k] += v
	}
	return nil
}

func (f *failingStore) AddZeroResultQuery(string, time.Time) error { return nil }

func TestPipelineMetrics_FailedFlushKeepsUnwrittenCounts(t *testing.T) {
	// Given: a store that rejects term writes once
	store := &failingStore{failTerms: true, latency: map[LatencyBucket]int64{}, terms: map[string]int64{}}
	m := NewPipelineMetrics(store, Config{})
	m.RecordSearch(SearchEvent{Query: "wagon", ResultCount: 1})

	// When: the first flush fails part way and the second succeeds
	require.Error(t, m.Flush())
	store.failTerms = false
	require.NoError(t, m.Flush())

	// Then: latency written once, terms written after retry
	assert.Equal(t, int64(1), store.latency[BucketP100])
	assert.Equal(t, int64(1), store.terms["wagon"])
}
