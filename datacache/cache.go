// Package datacache is a keyed, time-boxed cache of per-brand location
// datasets. Entries are written only here; expiry is lazy, checked on read.
package datacache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/goware/singleflight"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/frangeo/frangeo/locmodel"
)

const DefaultTTL = time.Hour

type entry struct {
	dataset   *locmodel.Dataset
	fetchedAt time.Time
}

type Cache struct {
	fetcher Fetcher
	ttl     time.Duration

	entries *xsync.MapOf[string, entry]
	group   singleflight.Group[string, *locmodel.Dataset]

	now func() time.Time
	log *slog.Logger
}

func New(fetcher Fetcher, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: xsync.NewMapOf[string, entry](),
		now:     time.Now,
		log:     log.With("component", "datacache"),
	}
}

func (c *Cache) fresh(e entry, ttl time.Duration) bool {
	return c.now().Sub(e.fetchedAt) < ttl
}

// Get returns the cached dataset when present and unexpired, otherwise it
// fetches, decodes and stores a fresh one. Concurrent calls for the same
// key share a single fetch. On failure nothing is written and any prior
// entry is left as is; falling back to stale data is the caller's call, via
// GetCached.
func (c *Cache) Get(ctx context.Context, key string) (*locmodel.Dataset, error) {
	return c.GetWithTTL(ctx, key, c.ttl)
}

// GetWithTTL is Get with the freshness window overridden for this call.
func (c *Cache) GetWithTTL(ctx context.Context, key string, ttl time.Duration) (*locmodel.Dataset, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if e, ok := c.entries.Load(key); ok && c.fresh(e, ttl) {
		return e.dataset, nil
	}

	ds, err, _ := c.group.Do(key, func() (*locmodel.Dataset, error) {
		// the winner of the flight may have stored it already
		if e, ok := c.entries.Load(key); ok && c.fresh(e, ttl) {
			return e.dataset, nil
		}

		body, err := c.fetcher.FetchDataset(ctx, key)
		if err != nil {
			return nil, err
		}

		ds, err := decodeDataset(key, body)
		if err != nil {
			return nil, err
		}

		c.entries.Store(key, entry{dataset: ds, fetchedAt: c.now()})
		c.log.Info("dataset cached", "key", key, "records", len(ds.Records))
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// GetCached returns whatever entry exists for the key, expired or not,
// without fetching. Explicit stale fallback only.
func (c *Cache) GetCached(key string) (*locmodel.Dataset, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return e.dataset, true
}

// Put stores a dataset directly, bypassing the fetcher. Used to prime the
// cache from a snapshot file.
func (c *Cache) Put(key string, ds *locmodel.Dataset) {
	c.entries.Store(key, entry{dataset: ds, fetchedAt: c.now()})
}

func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
}

func (c *Cache) Clear() {
	c.entries.Clear()
}

func (c *Cache) Len() int {
	return c.entries.Size()
}

func decodeDataset(key string, body []byte) (*locmodel.Dataset, error) {
	var ds locmodel.Dataset
	if err := json.Unmarshal(body, &ds); err != nil {
		return nil, &ParseError{Key: key, Err: err}
	}
	if ds.Records == nil {
		return nil, &ParseError{Key: key, Err: fmt.Errorf("document has no locations array")}
	}
	ds.Key = key
	return &ds, nil
}
