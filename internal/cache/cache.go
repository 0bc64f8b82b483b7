// Package cache holds recently answered questions so an identical
// question in the same session skips the network round trip.
package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"CampusChat/internal/api"
)

// Cache is a TTL store of chat responses keyed by question + session.
type Cache struct {
	store *gocache.Cache
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{store: gocache.New(ttl, 2*ttl)}
}

// Key derives the cache key for a question within a session.
func Key(question, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(question))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached response for key, if present and unexpired.
func (c *Cache) Get(key string) (*api.ChatResponse, bool) {
	val, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	resp, ok := val.(*api.ChatResponse)
	return resp, ok
}

// Set stores a response under key with the default TTL.
func (c *Cache) Set(key string, resp *api.ChatResponse) {
	c.store.Set(key, resp, gocache.DefaultExpiration)
}
