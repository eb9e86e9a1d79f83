package partner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProfileTTLReal = 300 * time.Second
	ProfileTTLMock = 60 * time.Second
)

// ProfileCache stores student profiles for a short time. A miss or a cache
// failure only costs a partner round trip.
type ProfileCache interface {
	Get(ctx context.Context, key string) (*StudentProfile, bool)
	Set(ctx context.Context, key string, profile *StudentProfile, ttl time.Duration)
}

// RedisCache keeps profiles as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to the Redis server at url (redis://...).
func NewRedisCache(ctx context.Context, url string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{client: client, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*StudentProfile, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Profile cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var profile StudentProfile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		return nil, false
	}
	return &profile, true
}

func (c *RedisCache) Set(ctx context.Context, key string, profile *StudentProfile, ttl time.Duration) {
	data, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Profile cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is an in-process TTL map used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

type memoryEntry struct {
	profile   StudentProfile
	expiresAt time.Time
}

func NewMemoryCache(c clock.Clock) *MemoryCache {
	return &MemoryCache{clock: c, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*StudentProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	profile := e.profile
	return &profile, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, profile *StudentProfile, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{profile: *profile, expiresAt: c.clock.Now().Add(ttl)}
}

// CachedProvider caches StudentProfile results of another provider.
type CachedProvider struct {
	ExternalProfileProvider
	cache ProfileCache
	ttl   time.Duration
}

func NewCachedProvider(p ExternalProfileProvider, cache ProfileCache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{ExternalProfileProvider: p, cache: cache, ttl: ttl}
}

func (p *CachedProvider) StudentProfile(ctx context.Context, email string) (*StudentProfile, error) {
	key := "pbl:student_profile:" + strings.ToLower(strings.TrimSpace(email))
	if profile, ok := p.cache.Get(ctx, key); ok {
		return profile, nil
	}

	profile, err := p.ExternalProfileProvider.StudentProfile(ctx, email)
	if err != nil {
		return nil, err
	}

	p.cache.Set(ctx, key, profile, p.ttl)
	return profile, nil
}
