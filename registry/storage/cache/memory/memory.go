// Package memory provides an in process cache of remote item lookups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mavenhub/registry/registry/repository"
)

type entry struct {
	res     repository.RepoResource
	expires time.Time
}

// InfoCache keeps lookups in a map until they expire. Expired entries are
// dropped when read.
type InfoCache struct {
	mu      sync.Mutex
	entries map[repository.RepoPath]entry
	clock   clock.Clock
}

var _ repository.InfoCache = &InfoCache{}

// NewInfoCache returns an empty cache. A nil clock uses the system clock.
func NewInfoCache(clk clock.Clock) *InfoCache {
	if clk == nil {
		clk = clock.New()
	}
	return &InfoCache{entries: make(map[repository.RepoPath]entry), clock: clk}
}

// Get implements repository.InfoCache.
func (c *InfoCache) Get(_ context.Context, p repository.RepoPath) (repository.RepoResource, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[p]
	if !ok {
		return repository.RepoResource{}, false, nil
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, p)
		return repository.RepoResource{}, false, nil
	}
	return e.res, true, nil
}

// Set implements repository.InfoCache.
func (c *InfoCache) Set(_ context.Context, res repository.RepoResource, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[res.RepoPath] = entry{res: res, expires: c.clock.Now().Add(ttl)}
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *InfoCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
