// cache.go - In-memory cache for compliance templates

package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

const CACHE_TTL = 5 * time.Minute // Cache expires after 5 minutes

type cachedTemplate struct {
	template *ComplianceTemplate // nil records "user has no template"
	loadedAt time.Time
}

// TemplateCache fronts a TemplateStore so every analysis does not hit the
// database for the user's template. Writes go through the cache and
// invalidate the entry.
type TemplateCache struct {
	store   TemplateStore
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cachedTemplate
	gen     uint64 // bumped on every invalidation
	now     func() time.Time
}

func NewTemplateCache(store TemplateStore, ttl time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = CACHE_TTL
	}
	return &TemplateCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]cachedTemplate),
		now:     time.Now,
	}
}

// Get retrieves the template from cache or loads from the store. A missing
// template returns (nil, nil). The store is queried without holding the
// lock; concurrent misses for one user may each load.
func (c *TemplateCache) Get(ctx context.Context, userID string) (*ComplianceTemplate, error) {
	c.mu.RLock()
	entry, exists := c.entries[userID]
	gen := c.gen
	c.mu.RUnlock()

	if exists && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.template, nil
	}

	tpl, err := c.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c.mu.Lock()
	// a write that landed during the load already dropped this entry
	if c.gen == gen {
		c.entries[userID] = cachedTemplate{template: tpl, loadedAt: c.now()}
	}
	c.mu.Unlock()
	return tpl, nil
}

// Put stores the template and drops the cached entry
func (c *TemplateCache) Put(ctx context.Context, tpl *ComplianceTemplate) error {
	if err := c.store.Put(ctx, tpl); err != nil {
		return err
	}
	c.Invalidate(tpl.UserID)
	return nil
}

// Delete removes the template and drops the cached entry
func (c *TemplateCache) Delete(ctx context.Context, userID string) error {
	defer c.Invalidate(userID)
	return c.store.Delete(ctx, userID)
}

// Invalidate removes cache for a specific user
func (c *TemplateCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, userID)
}

// Clear removes all cached data
func (c *TemplateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cachedTemplate)
}
