package cache

import (
	"context"
	"sync"
)

// MemoryCache is the in-process Cache used by the dev console and tests.
type MemoryCache struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{scopes: make(map[string]map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, scope Scope, field string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fields, ok := c.scopes[scope.Key()]
	if !ok {
		return "", false, nil
	}
	val, ok := fields[field]
	return val, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, scope Scope, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := scope.Key()
	if c.scopes[key] == nil {
		c.scopes[key] = make(map[string]string)
	}
	c.scopes[key][field] = value
	return nil
}

func (c *MemoryCache) Clear(_ context.Context, scope Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scopes, scope.Key())
	return nil
}
