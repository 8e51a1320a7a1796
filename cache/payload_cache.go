// Package cache memoizes fetched portal payloads so repeated import runs
// within the same day do not hit the provider again.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// PayloadCache is a BadgerDB-backed cache of raw portal payloads
type PayloadCache struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// DefaultTTL is how long a cached payload stays valid. The portal
// publishes at most one new day of data, so a day is enough.
const DefaultTTL = 24 * time.Hour

// Open creates or opens the cache at the given directory
func Open(path string) (*PayloadCache, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithValueLogFileSize(16 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload cache: %w", err)
	}
	return &PayloadCache{db: db}, nil
}

// Key builds the cache key for a metering point and fetch day
func Key(pod string, day time.Time) string {
	return fmt.Sprintf("payload:%s:%s", pod, day.Format("2006-01-02"))
}

// Get returns the cached payload for a key, if present and unexpired
func (c *PayloadCache) Get(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false, nil
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed for %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores a payload under a key with the given TTL
func (c *PayloadCache) Set(key string, payload []byte, ttl time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache write failed for %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database
func (c *PayloadCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
