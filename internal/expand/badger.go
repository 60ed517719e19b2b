package expand

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const badgerKeyPrefix = "expansion:"

// BadgerCache persists expansions in BadgerDB so they survive restarts.
// Entries carry a native badger TTL.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

var _ Cache = (*BadgerCache)(nil)

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

// Infof is demoted to debug; badger is chatty at info.
func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerCache opens (creating if needed) a badger cache at dir.
// An empty dir opens an in-memory database.
func OpenBadgerCache(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open expansion cache: %w", err)
	}

	return &BadgerCache{db: db, ttl: ttl, logger: logger}, nil
}

// Get returns the cached expansion. Read errors are logged and reported
// as a miss.
func (c *BadgerCache) Get(key string) (ExpandedQuery, bool) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			c.logger.Warn("expansion_cache_read_failed", slog.String("error", err.Error()))
		}
		return ExpandedQuery{}, false
	}

	q, err := decodeExpansion(data)
	if err != nil {
		c.logger.Warn("expansion_cache_decode_failed", slog.String("error", err.Error()))
		return ExpandedQuery{}, false
	}
	return q, true
}

// Set stores value with the cache TTL. Write errors are logged; a lost
// write only costs a future LLM call.
func (c *BadgerCache) Set(key string, value ExpandedQuery) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("expansion_cache_encode_failed", slog.String("error", err.Error()))
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(badgerKeyPrefix+key), data).WithTTL(c.ttl))
	})
	if err != nil {
		c.logger.Warn("expansion_cache_write_failed", slog.String("error", err.Error()))
	}
}

// Close closes the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// decodeExpansion restores integral filter values as int64 so a cached
// value matches what ParsePayload produced.
func decodeExpansion(data []byte) (ExpandedQuery, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var q ExpandedQuery
	if err := dec.Decode(&q); err != nil {
		return ExpandedQuery{}, err
	}
	for k, v := range q.ExtractedFilters {
		q.ExtractedFilters[k] = normalizeNumber(v)
	}
	if q.Synonyms == nil {
		q.Synonyms = []string{}
	}
	if q.ExtractedFilters == nil {
		q.ExtractedFilters = map[string]any{}
	}
	return q, nil
}
