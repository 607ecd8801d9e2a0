package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

const (
	defaultTagCacheSize = 256
	defaultTagCacheTTL  = 10 * time.Minute
)

// CachedTagStore keeps recently used application tags in an expiring LRU.
// Lookups that fail are not cached.
type CachedTagStore struct {
	next  domain.ApplicationTagStore
	cache *expirable.LRU[string, *domain.ApplicationTag]
	log   *logrus.Logger
}

// NewCachedTagStore wraps next with a cache sized by cfg.
func NewCachedTagStore(next domain.ApplicationTagStore, cfg domain.CacheConfig, logger *logrus.Logger) *CachedTagStore {
	size := cfg.TagCacheSize
	if size <= 0 {
		size = defaultTagCacheSize
	}
	ttl := cfg.TagCacheTTL
	if ttl <= 0 {
		ttl = defaultTagCacheTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedTagStore{
		next:  next,
		cache: expirable.NewLRU[string, *domain.ApplicationTag](size, nil, ttl),
		log:   logger,
	}
}

// GetApplicationTag returns the cached tag or loads it from the wrapped store.
func (c *CachedTagStore) GetApplicationTag(ctx context.Context, name string) (*domain.ApplicationTag, error) {
	if tag, ok := c.cache.Get(name); ok {
		return tag, nil
	}

	tag, err := c.next.GetApplicationTag(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache.Add(name, tag)
	c.log.WithField("tag", name).Debug("Application tag cached")
	return tag, nil
}

// Invalidate drops a tag, e.g. after it was saved with new versions.
func (c *CachedTagStore) Invalidate(name string) {
	c.cache.Remove(name)
}

// Len returns the number of cached tags.
func (c *CachedTagStore) Len() int {
	return c.cache.Len()
}
