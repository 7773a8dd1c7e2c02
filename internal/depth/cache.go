package depth

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// purgeInterval is the fixed interval the cache is wholly cleared on,
// regardless of per-entry TTL.
const purgeInterval = 60 * time.Second

// CacheVal is one cached depth reply: the time it was computed and the
// serialized JSON result.
type CacheVal struct {
	Time   float64
	Result []byte
}

// Cache buckets depth replies by request fingerprint
// (command_code || request_body_bytes), expiring entries after
// cacheTimeout and additionally purging everything every 60 seconds.
type Cache struct {
	lru *lru.LRU[string, CacheVal]
}

// NewCache constructs a cache whose entries lazily expire after
// cacheTimeout.
func NewCache(cacheTimeout time.Duration) *Cache {
	return &Cache{lru: lru.NewLRU[string, CacheVal](4096, nil, cacheTimeout)}
}

// Get returns the cached value for fingerprint, if present and not yet
// expired.
func (c *Cache) Get(fingerprint string) (CacheVal, bool) {
	return c.lru.Get(fingerprint)
}

// Set stores result under fingerprint, stamped with the current time.
func (c *Cache) Set(fingerprint string, nowSeconds float64, result []byte) {
	c.lru.Add(fingerprint, CacheVal{Time: nowSeconds, Result: result})
}

// Purge clears every cached entry.
func (c *Cache) Purge() { c.lru.Purge() }

// RunPurgeTimer clears the cache every 60 seconds until t is dying.
func (c *Cache) RunPurgeTimer(t *tomb.Tomb) error {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			c.Purge()
			log.Debug().Msg("depth cache purged")
		}
	}
}
