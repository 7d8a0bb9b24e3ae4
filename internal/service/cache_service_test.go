package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

// memoryCache mimics the Redis repository: JSON values and glob deletes.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	delErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, patterns ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return 0, c.delErr
	}
	removed := 0
	for key := range c.entries {
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, key); ok {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	return removed, nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	hit, err := svc.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, repo.has("k"))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.NoError(t, nilSvc.Invalidate(context.Background(), "k"))
}

func TestCacheServiceRoundTripUsesDefaultTTL(t *testing.T) {
	repo := newMemoryCache()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var dest []string
	hit, err := svc.Get(ctx, "registration:user:u1:waitlist", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "registration:user:u1:waitlist", []string{"s1"}, 0))
	assert.Equal(t, 30*time.Second, repo.ttls["registration:user:u1:waitlist"])

	hit, err = svc.Get(ctx, "registration:user:u1:waitlist", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"s1"}, dest)

	assert.Equal(t, 1.0, counterValue(t, metrics, "cache_hits_total", nil))
	assert.Equal(t, 1.0, counterValue(t, metrics, "cache_misses_total", nil))
}

func TestCacheServiceGetError(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	for _, key := range []string{"registration:user:u1:waitlist", "registration:user:u2:waitlist", "registration:section:s1:waitlist"} {
		require.NoError(t, svc.Set(ctx, key, 1, 0))
	}

	require.NoError(t, svc.Invalidate(ctx, "registration:user:u1:*", "registration:section:s1:*"))
	assert.False(t, repo.has("registration:user:u1:waitlist"))
	assert.False(t, repo.has("registration:section:s1:waitlist"))
	assert.True(t, repo.has("registration:user:u2:waitlist"))

	repo.delErr = errors.New("redis down")
	assert.Error(t, svc.Invalidate(ctx, "registration:user:*"))
	assert.NoError(t, svc.Invalidate(ctx))
}
