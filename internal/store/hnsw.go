package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	Dimensions int
	M          int // max connections per layer (default 16)
	EfSearch   int // query-time search width (default 20)
}

// HNSWVectorStore is an in-process cosine similarity index over vehicle
// embeddings. Replaced vectors are orphaned in the graph rather than
// deleted; see Stats.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap     map[string]uint64
	keyMap    map[uint64]string
	summaries map[string]vehicle.Summary
	nextKey   uint64

	closed bool
}

var _ retrieval.VectorStore = (*HNSWVectorStore)(nil)

// hnswMetadata is the gob-encoded sidecar persisted next to the graph.
type hnswMetadata struct {
	IDMap     map[string]uint64
	Summaries map[string]vehicle.Summary
	NextKey   uint64
	Config    VectorStoreConfig
}

// NewHNSWVectorStore creates an empty store.
func NewHNSWVectorStore(cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWVectorStore{
		graph:     newGraph(cfg),
		config:    cfg,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		summaries: make(map[string]vehicle.Summary),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// OpenHNSWVectorStore loads the store at path, or returns an empty one if
// nothing has been saved there yet.
func OpenHNSWVectorStore(path string, cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	s, err := NewHNSWVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path + ".meta"); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := s.Load(path); err != nil {
		return nil, err
	}
	if s.config.Dimensions != cfg.Dimensions {
		return nil, DimensionMismatchError{Expected: cfg.Dimensions, Got: s.config.Dimensions}
	}
	return s, nil
}

// Add inserts items, replacing any with the same ID.
func (s *HNSWVectorStore) Add(_ context.Context, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, it := range items {
		if len(it.Vector) != s.config.Dimensions {
			return DimensionMismatchError{Expected: s.config.Dimensions, Got: len(it.Vector)}
		}
	}

	for _, it := range items {
		// Orphan the old node; deleting from the graph can break it when
		// the node is the entry point.
		if existing, ok := s.idMap[it.ID]; ok {
			delete(s.keyMap, existing)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		normalizeVectorInPlace(vec)
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[it.ID] = key
		s.keyMap[key] = it.ID
		s.summaries[it.ID] = it.Summary
	}
	return nil
}

// SimilaritySearch returns up to limit vehicles by descending cosine similarity.
func (s *HNSWVectorStore) SimilaritySearch(_ context.Context, embedding []float32, limit int) ([]retrieval.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(embedding) != s.config.Dimensions {
		return nil, DimensionMismatchError{Expected: s.config.Dimensions, Got: len(embedding)}
	}
	if s.graph.Len() == 0 || limit <= 0 {
		return []retrieval.VectorHit{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeVectorInPlace(query)

	// Ask for enough extra neighbours to cover orphaned nodes.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(query, limit+orphans)

	hits := make([]retrieval.VectorHit, 0, min(limit, len(nodes)))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, retrieval.VectorHit{
			ID:         id,
			Similarity: float64(1 - s.graph.Distance(query, node.Value)),
			Summary:    s.summaries[id],
		})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Delete removes vehicles by ID.
func (s *HNSWVectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.summaries, id)
		}
	}
	return nil
}

// Contains reports whether id is indexed.
func (s *HNSWVectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.idMap[id]
	return !s.closed && ok
}

// Count returns the number of live vectors.
func (s *HNSWVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// HNSWStats reports live and orphaned graph nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns graph statistics.
func (s *HNSWVectorStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	nodes := s.graph.Len()
	return HNSWStats{ValidIDs: len(s.idMap), GraphNodes: nodes, Orphans: nodes - len(s.idMap)}
}

// Save writes the graph to path and the ID and summary maps to path.meta,
// each through a temp file and rename.
func (s *HNSWVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, Summaries: s.summaries, NextKey: s.nextKey, Config: s.config}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the store's contents with what Save wrote at path.
func (s *HNSWVectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	graph := newGraph(meta.Config)
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.graph = graph
	s.config = meta.Config
	s.idMap = meta.IDMap
	s.summaries = meta.Summaries
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	if s.summaries == nil {
		s.summaries = make(map[string]vehicle.Summary)
	}
	return nil
}

func readHNSWMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata
	file, err := os.Open(path)
	if err != nil {
		return meta, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}

// Close releases the graph.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
