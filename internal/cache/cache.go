// Package cache holds the most recent statistics snapshot so repeated
// dashboard loads do not re-run the aggregate queries.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shutterscope/shutterscope/internal/models"
)

// SnapshotCache stores at most one statistics snapshot.
type SnapshotCache interface {
	Get(ctx context.Context) (*models.Statistics, bool)
	Set(ctx context.Context, stats *models.Statistics)
	Invalidate(ctx context.Context)
	Close() error
	Name() string
}

type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	stats   *models.Statistics
	expires time.Time
}

// NewMemory returns a process-local cache. A non-positive ttl disables it.
func NewMemory(ttl time.Duration) SnapshotCache {
	return &memoryCache{ttl: ttl, now: time.Now}
}

func (c *memoryCache) Get(ctx context.Context) (*models.Statistics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil || !c.now().Before(c.expires) {
		return nil, false
	}
	return clone(c.stats), true
}

func (c *memoryCache) Set(ctx context.Context, stats *models.Statistics) {
	if c.ttl <= 0 || stats == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = clone(stats)
	c.expires = c.now().Add(c.ttl)
}

func (c *memoryCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = nil
}

func (c *memoryCache) Close() error { return nil }

func (c *memoryCache) Name() string { return "memory" }

// clone copies the snapshot so callers never share the cached slice.
func clone(s *models.Statistics) *models.Statistics {
	out := *s
	out.ResponseCodeStats = append([]models.ResponseCodeStat(nil), s.ResponseCodeStats...)
	if out.ResponseCodeStats == nil {
		out.ResponseCodeStats = []models.ResponseCodeStat{}
	}
	return &out
}
