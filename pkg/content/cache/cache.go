package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/content"
)

// DefaultTTL bounds how stale a cached size may become when content is
// changed behind the server's back.
const DefaultTTL = 30 * time.Second

// Config configures the stat cache.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the cache entirely in memory.
	InMemory bool

	// TTL is the lifetime of a cached size. Zero uses DefaultTTL.
	TTL time.Duration

	// Metrics is optional; nil disables collection.
	Metrics CacheMetrics
}

// StatCache wraps a ContentStore and remembers GetContentSize results.
//
// Admission under smallest-target-first measures every request before it is
// queued; against a remote store that is one round trip per connection. The
// cache answers repeated lookups locally until the entry expires or the
// content is written or deleted through this store.
//
// Only successful lookups are cached. Not-found and access errors always go
// to the backing store so new content becomes visible immediately.
type StatCache struct {
	content.ContentStore

	db      *badger.DB
	ttl     time.Duration
	metrics CacheMetrics
}

// New opens the cache database and wraps store.
func New(store content.ContentStore, cfg Config) (*StatCache, error) {
	if store == nil {
		return nil, fmt.Errorf("stat cache requires a backing store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("stat cache path is required unless in_memory is set")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)    // Values are 8 bytes

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open stat cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopCacheMetrics{}
	}

	return &StatCache{
		ContentStore: store,
		db:           db,
		ttl:          ttl,
		metrics:      metrics,
	}, nil
}

func keySize(id content.ContentID) ([]byte, error) {
	clean, err := content.ParseID(string(id))
	if err != nil {
		return nil, err
	}
	return []byte("size:" + string(clean)), nil
}

// GetContentSize returns the cached size or asks the backing store.
func (c *StatCache) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key, err := keySize(id)
	if err != nil {
		return 0, fmt.Errorf("content %s: %w", id, err)
	}

	var size uint64
	found := false
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt size entry for %s", id)
			}
			size = binary.BigEndian.Uint64(val)
			found = true
			return nil
		})
	})
	if err != nil {
		// Fall through to the backing store.
		logger.Warn("Stat cache lookup failed for %s: %v", id, err)
	}
	if found {
		c.metrics.RecordHit()
		return size, nil
	}

	c.metrics.RecordMiss()
	start := time.Now()
	size, err = c.ContentStore.GetContentSize(ctx, id)
	c.metrics.ObserveBackendLookup(time.Since(start))
	if err != nil {
		return 0, err
	}

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, size)
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, val).WithTTL(c.ttl))
	})
	if err != nil {
		logger.Warn("Stat cache store failed for %s: %v", id, err)
	}

	return size, nil
}

func (c *StatCache) writable() (content.WritableContentStore, error) {
	w, ok := c.ContentStore.(content.WritableContentStore)
	if !ok {
		return nil, errors.New("backing content store is read-only")
	}
	return w, nil
}

func (c *StatCache) invalidate(id content.ContentID) {
	key, err := keySize(id)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		logger.Warn("Stat cache invalidation failed for %s: %v", id, err)
		return
	}
	c.metrics.RecordInvalidation()
}

// WriteContent writes through to the backing store and drops the cached size.
func (c *StatCache) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	w, err := c.writable()
	if err != nil {
		return err
	}
	if err := w.WriteContent(ctx, id, data); err != nil {
		return err
	}
	c.invalidate(id)
	return nil
}

// Delete removes content from the backing store and drops the cached size.
func (c *StatCache) Delete(ctx context.Context, id content.ContentID) error {
	w, err := c.writable()
	if err != nil {
		return err
	}
	if err := w.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(id)
	return nil
}

// Close closes the cache database and then the backing store.
func (c *StatCache) Close() error {
	dbErr := c.db.Close()
	storeErr := c.ContentStore.Close()
	if dbErr != nil {
		return fmt.Errorf("failed to close stat cache: %w", dbErr)
	}
	return storeErr
}
