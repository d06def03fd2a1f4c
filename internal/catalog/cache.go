// Package catalog serves the read-mostly challenge catalog from memory.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/todaymission/backend/internal/models"
)

// ErrSourceUnavailable indicates the cache has no backing source.
var ErrSourceUnavailable = errors.New("catalog source unavailable")

// Source loads the full challenge catalog.
type Source interface {
	ListChallenges(ctx context.Context) ([]models.Challenge, error)
}

// CachingSource wraps a Source with a TTL-based in-memory cache.
type CachingSource struct {
	base Source
	ttl  time.Duration
	now  func() time.Time

	mu         sync.RWMutex
	challenges []models.Challenge
	expires    time.Time
}

// NewCachingSource returns a Source that caches the catalog for ttl.
func NewCachingSource(base Source, ttl time.Duration) *CachingSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingSource{base: base, ttl: ttl, now: time.Now}
}

// ListChallenges returns the cached catalog when fresh, otherwise it reloads
// it from the underlying source. Failed loads are not cached.
func (c *CachingSource) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	if c == nil || c.base == nil {
		return nil, ErrSourceUnavailable
	}

	now := c.now()

	c.mu.RLock()
	challenges, expires := c.challenges, c.expires
	c.mu.RUnlock()
	if challenges != nil && now.Before(expires) {
		return challenges, nil
	}

	challenges, err := c.base.ListChallenges(ctx)
	if err != nil {
		return nil, err
	}
	if challenges == nil {
		challenges = []models.Challenge{}
	}

	c.mu.Lock()
	c.challenges = challenges
	c.expires = now.Add(c.ttl)
	c.mu.Unlock()

	return challenges, nil
}
