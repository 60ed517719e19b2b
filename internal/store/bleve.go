package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

const (
	listingTokenizerName  = "otto_listing_tokenizer"
	listingStopFilterName = "otto_listing_stop"
	listingAnalyzerName   = "otto_listing"
)

func init() {
	_ = registry.RegisterTokenizer(listingTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return listingTokenizer{}, nil
	})
	_ = registry.RegisterTokenFilter(listingStopFilterName, func(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
		return listingStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
	})
}

// BleveTextStore is a KeywordIndex backed by Bleve's BM25 scorer.
// Bleve holds an exclusive lock on the index, so only one process can
// open it at a time.
type BleveTextStore struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveTextStore)(nil)

type bleveDocument struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// NewBleveTextStore opens or creates the index at path. An empty path
// creates an in-memory index. A corrupted index is cleared and recreated
// empty.
func NewBleveTextStore(path string) (*BleveTextStore, error) {
	indexMapping, err := listingMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if validErr := validateBleveIndex(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w", path, err)
			}
		}

		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		} else if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w", rmErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	return &BleveTextStore{index: idx, path: path}, nil
}

// validateBleveIndex reports an error if an existing index directory is
// missing or has an unreadable index_meta.json.
func validateBleveIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func listingMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(listingAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     listingTokenizerName,
		"token_filters": []string{listingStopFilterName},
	})
	if err != nil {
		return nil, err
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = listingAnalyzerName
	text.Store = false

	summary := bleve.NewTextFieldMapping()
	summary.Index = false
	summary.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("summary", summary)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = listingAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces documents.
func (b *BleveTextStore) Index(_ context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		summary, err := json.Marshal(doc.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary for %s: %w", doc.ID, err)
		}
		if err := batch.Index(doc.ID, bleveDocument{Text: doc.Text, Summary: string(summary)}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// KeywordSearch runs text and each synonym as match queries on the text
// field, OR-combined. Scores are BM25.
func (b *BleveTextStore) KeywordSearch(ctx context.Context, text string, synonyms []string, limit int) ([]retrieval.KeywordHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	var disjuncts []query.Query
	for _, s := range append([]string{text}, synonyms...) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		m := bleve.NewMatchQuery(s)
		m.SetField("text")
		disjuncts = append(disjuncts, m)
	}
	if len(disjuncts) == 0 || limit <= 0 {
		return []retrieval.KeywordHit{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(disjuncts...), limit, 0, false)
	req.Fields = []string{"summary"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]retrieval.KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var s vehicle.Summary
		if raw, ok := hit.Fields["summary"].(string); ok {
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				slog.Debug("keyword_summary_decode_failed",
					slog.String("id", hit.ID),
					slog.String("error", err.Error()))
			}
		}
		hits = append(hits, retrieval.KeywordHit{ID: hit.ID, Score: hit.Score, Summary: s})
	}
	return hits, nil
}

// Delete removes documents by ID.
func (b *BleveTextStore) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveTextStore) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.index.DocCount()
	return int(n), err
}

// Close closes the index.
func (b *BleveTextStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// listingTokenizer adapts Tokenize to Bleve.
type listingTokenizer struct{}

func (listingTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lower[offset:], token)
		if start == -1 {
			// Joined forms of hyphenated words don't appear verbatim.
			start = offset
		} else {
			start += offset
			offset = start + len(token)
		}
		end := min(start+len(token), len(text))
		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

type listingStopFilter struct {
	stopWords map[string]struct{}
}

func (f listingStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
