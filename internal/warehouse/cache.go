package warehouse

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of schemas kept by a Cached provider.
const DefaultCacheSize = 64

// Cached memoizes SchemaText per database. Switching back to a database
// already seen in the session does not hit the warehouse again.
type Cached struct {
	provider SchemaProvider
	cache    *lru.Cache[string, string]
}

// NewCached wraps provider with an LRU cache of the given size.
func NewCached(provider SchemaProvider, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &Cached{provider: provider, cache: cache}, nil
}

// SchemaText returns the cached schema or fetches it. Errors are not cached.
func (c *Cached) SchemaText(ctx context.Context, database string) (string, error) {
	if schema, ok := c.cache.Get(database); ok {
		return schema, nil
	}
	schema, err := c.provider.SchemaText(ctx, database)
	if err != nil {
		return "", err
	}
	c.cache.Add(database, schema)
	return schema, nil
}

// Invalidate drops the cached schema of database.
func (c *Cached) Invalidate(database string) {
	c.cache.Remove(database)
}

// Purge drops every cached schema.
func (c *Cached) Purge() {
	c.cache.Purge()
}
