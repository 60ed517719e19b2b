// Package telemetry aggregates search pipeline metrics in memory and
// optionally persists daily aggregates. All data stays local.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Stages
// =============================================================================

// Stage names a pipeline stage that can degrade.
type Stage string

const (
	StageExpansion Stage = "expansion"
	StageVector    Stage = "vector"
	StageKeyword   Stage = "keyword"
	StageFilter    Stage = "filter"
	StageRerank    Stage = "reranking"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP100   LatencyBucket = "p100"   // <100ms
	BucketP500   LatencyBucket = "p500"   // 100-500ms
	BucketP1000  LatencyBucket = "p1000"  // 500ms-1s
	BucketP5000  LatencyBucket = "p5000"  // 1-5s
	BucketOver5s LatencyBucket = "over5s" // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketOver5s
	}
}

// =============================================================================
// Search Event
// =============================================================================

// SearchEvent is one completed (or failed) search request.
type SearchEvent struct {
	RequestID       string
	Query           string
	ResultCount     int
	TotalCandidates int
	Latency         time.Duration
	Degraded        []Stage
	Failed          bool
	Timestamp       time.Time
}

// IsZeroResult reports whether the request returned nothing.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer; non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
		return result
	}
	copy(result, b.items[b.head:])
	copy(result[b.capacity-b.head:], b.items[:b.head])
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// =============================================================================
// Terms
// =============================================================================

// ExtractTerms lowercases the query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable view of the collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	FailedQueries       int64                   `json:"failed_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	DegradedCounts      map[Stage]int64         `json:"degraded_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries in percent.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// DegradedRate returns the fraction of queries in which stage degraded.
func (s *Snapshot) DegradedRate(stage Stage) float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.DegradedCounts[stage]) / float64(s.TotalQueries)
}

// =============================================================================
// Store
// =============================================================================

// Store persists daily aggregates. Save methods add to existing counts.
type Store interface {
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	SaveStageCounts(date string, counts map[Stage]int64) error
	GetStageCounts(from, to string) (map[Stage]int64, error)

	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)

	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)

	Close() error
}

// =============================================================================
// Pipeline Metrics
// =============================================================================

// Config configures PipelineMetrics.
type Config struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables auto-flush
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// pending holds counts not yet flushed to the store.
type pending struct {
	latencies map[LatencyBucket]int64
	stages    map[Stage]int64
	terms     map[string]int64
	zero      []zeroResult
}

type zeroResult struct {
	query string
	at    time.Time
}

func newPending() pending {
	return pending{
		latencies: make(map[LatencyBucket]int64),
		stages:    make(map[Stage]int64),
		terms:     make(map[string]int64),
	}
}

// PipelineMetrics collects search telemetry. Safe for concurrent use.
type PipelineMetrics struct {
	mu sync.Mutex

	totalQueries    int64
	failedQueries   int64
	zeroResultCount int64
	exactRepeats    int64
	degraded        map[Stage]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	recentQueries   *lru.Cache[string, struct{}]
	startTime       time.Time

	unflushed pending

	store       Store
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewPipelineMetrics creates a collector. A nil store keeps metrics in memory only.
func NewPipelineMetrics(store Store, cfg Config) *PipelineMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &PipelineMetrics{
		degraded:      make(map[Stage]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recentQueries: recent,
		startTime:     time.Now(),
		unflushed:     newPending(),
		store:         store,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *PipelineMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// RecordSearch captures one request.
func (m *PipelineMetrics) RecordSearch(event SearchEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.totalQueries++
	if event.Failed {
		m.failedQueries++
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.unflushed.terms[term]++
	}

	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
		at := event.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		m.unflushed.zero = append(m.unflushed.zero, zeroResult{query: event.Query, at: at})
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.unflushed.latencies[bucket]++

	for _, s := range event.Degraded {
		m.degraded[s]++
		m.unflushed.stages[s]++
	}

	h := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(h); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(h, struct{}{})
}

func hashQuery(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the current metrics.
func (m *PipelineMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	degraded := make(map[Stage]int64, len(m.degraded))
	for k, v := range m.degraded {
		degraded[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		FailedQueries:       m.failedQueries,
		ZeroResultCount:     m.zeroResultCount,
		ZeroResultQueries:   m.zeroResults.Items(),
		DegradedCounts:      degraded,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.startTime,
	}
}

// Flush writes counts gathered since the previous flush to the store.
// Whatever a failed flush did not write is kept for the next one.
func (m *PipelineMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if err := m.write(&batch); err != nil {
		m.mu.Lock()
		m.unflushed.merge(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

// write clears each part of p once it is stored.
func (m *PipelineMetrics) write(p *pending) error {
	today := time.Now().Format("2006-01-02")

	if len(p.latencies) > 0 {
		if err := m.store.SaveLatencyCounts(today, p.latencies); err != nil {
			return err
		}
		p.latencies = nil
	}
	if len(p.stages) > 0 {
		if err := m.store.SaveStageCounts(today, p.stages); err != nil {
			return err
		}
		p.stages = nil
	}
	if err := m.store.UpsertTermCounts(p.terms); err != nil {
		return err
	}
	p.terms = nil
	for len(p.zero) > 0 {
		z := p.zero[0]
		if err := m.store.AddZeroResultQuery(z.query, z.at); err != nil {
			return err
		}
		p.zero = p.zero[1:]
	}
	return nil
}

func (p *pending) merge(other pending) {
	for k, v := range other.latencies {
		p.latencies[k] += v
	}
	for k, v := range other.stages {
		p.stages[k] += v
	}
	for k, v := range other.terms {
		p.terms[k] += v
	}
	p.zero = append(other.zero, p.zero...)
}

// Close stops auto-flush and flushes once more.
func (m *PipelineMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
