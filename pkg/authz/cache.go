package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/strideworks/stride/pkg/observability"
)

// DefaultContextTTL is how long a cached user context stays valid when no
// invalidation arrives.
const DefaultContextTTL = 5 * time.Minute

// ContextCache stores derived user contexts between permission checks. A Get
// miss is (nil, nil); backend failures on the read/write path are swallowed
// so an unavailable cache degrades to building from storage.
type ContextCache interface {
	Get(ctx context.Context, userID string) (*UserContext, error)
	Set(ctx context.Context, uc *UserContext) error
	Invalidate(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// LayeredCache is a redis-backed ContextCache with an in-process expirable
// LRU in front of redis outages. Reads prefer redis so that invalidations
// from other instances win; the local tier only answers when redis cannot.
type LayeredCache struct {
	redis   *redis.Client
	local   *expirable.LRU[string, *UserContext]
	ttl     time.Duration
	metrics *observability.Metrics
}

// LayeredCacheConfig configures a LayeredCache. Redis may be nil for
// local-only operation (tests, single-instance deployments).
type LayeredCacheConfig struct {
	Redis     *redis.Client
	TTL       time.Duration
	LocalSize int
	Metrics   *observability.Metrics
}

// NewLayeredCache creates the two-tier context cache.
func NewLayeredCache(cfg LayeredCacheConfig) *LayeredCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	size := cfg.LocalSize
	if size <= 0 {
		size = 10000
	}
	return &LayeredCache{
		redis:   cfg.Redis,
		local:   expirable.NewLRU[string, *UserContext](size, nil, ttl),
		ttl:     ttl,
		metrics: cfg.Metrics,
	}
}

func contextCacheKey(userID string) string {
	return fmt.Sprintf("authz:usercontext:%s", userID)
}

// Get returns the cached context for the user, or nil on a miss. A definitive
// redis miss is authoritative: another instance may have invalidated the key,
// so the local copy is dropped rather than served. The local tier answers
// only when redis errors or is not configured.
func (c *LayeredCache) Get(ctx context.Context, userID string) (*UserContext, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, contextCacheKey(userID)).Bytes()
		switch {
		case err == nil:
			uc, derr := decodeUserContext(data)
			if derr == nil {
				c.hit("redis")
				c.local.Add(userID, uc)
				return uc, nil
			}
			// Corrupt payload. Treat as a distributed miss and let the
			// rebuild overwrite it.
			c.cacheError("redis", "decode")
			c.local.Remove(userID)
			return nil, nil
		case err == redis.Nil:
			c.miss("redis")
			c.local.Remove(userID)
			return nil, nil
		default:
			c.cacheError("redis", "get")
		}
	}

	if uc, ok := c.local.Get(userID); ok {
		c.hit("local")
		return uc, nil
	}
	c.miss("local")
	return nil, nil
}

// Set writes the context to both tiers. Redis failures are swallowed; the
// local tier always gets the value.
func (c *LayeredCache) Set(ctx context.Context, uc *UserContext) error {
	if uc == nil {
		return nil
	}
	c.local.Add(uc.UserID, uc)

	if c.redis != nil {
		data, err := json.Marshal(uc)
		if err != nil {
			return fmt.Errorf("failed to marshal user context: %w", err)
		}
		if err := c.redis.Set(ctx, contextCacheKey(uc.UserID), data, c.ttl).Err(); err != nil {
			c.cacheError("redis", "set")
		}
	}
	return nil
}

// Invalidate drops the user's cached context from both tiers. The local drop
// always happens; a redis failure is returned for visibility but the caller
// treats it as advisory, since the entry will age out within the TTL.
func (c *LayeredCache) Invalidate(ctx context.Context, userID string) error {
	c.local.Remove(userID)

	if c.redis != nil {
		if err := c.redis.Del(ctx, contextCacheKey(userID)).Err(); err != nil {
			c.cacheError("redis", "del")
			return fmt.Errorf("failed to invalidate cached context for user %s: %w", userID, err)
		}
	}
	return nil
}

// Clear drops every cached context. Redis removal iterates with SCAN to
// avoid blocking the server on a large keyspace.
func (c *LayeredCache) Clear(ctx context.Context) error {
	c.local.Purge()

	if c.redis != nil {
		iter := c.redis.Scan(ctx, 0, contextCacheKey("*"), 100).Iterator()
		for iter.Next(ctx) {
			if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
				c.cacheError("redis", "del")
				return fmt.Errorf("failed to clear context cache: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			c.cacheError("redis", "scan")
			return fmt.Errorf("failed to scan context cache: %w", err)
		}
	}
	return nil
}

// decodeUserContext deserializes a cached context and rebuilds the scope
// maps from the assignment list. JSON round-trips can leave the maps and the
// assignments disagreeing (older writers, partial payloads); the assignment
// list is the source of truth.
func decodeUserContext(data []byte) (*UserContext, error) {
	var uc UserContext
	if err := json.Unmarshal(data, &uc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user context: %w", err)
	}
	normalizeScopeMaps(&uc)
	return &uc, nil
}

// normalizeScopeMaps re-derives TenantRoles, WorkspaceRoles and TeamRoles
// from RoleAssignments. Platform rows carry no map entry.
func normalizeScopeMaps(uc *UserContext) {
	uc.TenantRoles = make(map[string][]Role)
	uc.WorkspaceRoles = make(map[string][]Role)
	uc.TeamRoles = make(map[string][]Role)

	for _, a := range uc.RoleAssignments {
		if a.ScopeID == nil {
			continue
		}
		switch a.ScopeType {
		case ScopeTenant:
			uc.TenantRoles[*a.ScopeID] = append(uc.TenantRoles[*a.ScopeID], a.Role)
		case ScopeWorkspace:
			uc.WorkspaceRoles[*a.ScopeID] = append(uc.WorkspaceRoles[*a.ScopeID], a.Role)
		case ScopeTeam:
			uc.TeamRoles[*a.ScopeID] = append(uc.TeamRoles[*a.ScopeID], a.Role)
		}
	}
}

func (c *LayeredCache) hit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *LayeredCache) miss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (c *LayeredCache) cacheError(tier, op string) {
	if c.metrics != nil {
		c.metrics.CacheErrorsTotal.WithLabelValues(tier, op).Inc()
	}
}
