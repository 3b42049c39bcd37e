// Package cache holds read-through caches for saved arrangements.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bitfantasy/precast/internal/qc/entity"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "qc:arrangement:"

// ArrangementCache caches saved arrangements per scope.
// Set is for writers after a commit and always overwrites. Fill is for
// read-through loads and never replaces an existing entry, so a slow reader
// cannot put back an order that a concurrent save already replaced.
type ArrangementCache interface {
	Get(ctx context.Context, scope entity.Scope) ([]string, bool)
	Set(ctx context.Context, scope entity.Scope, ids []string)
	Fill(ctx context.Context, scope entity.Scope, ids []string)
}

// RedisCache is shared by every service instance.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis 创建 Redis 排序缓存
func NewRedis(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, scope entity.Scope) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, keyPrefix+scope.Key()).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (c *RedisCache) Set(ctx context.Context, scope entity.Scope, ids []string) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, keyPrefix+scope.Key(), raw, c.ttl)
}

func (c *RedisCache) Fill(ctx context.Context, scope entity.Scope, ids []string) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	c.rdb.SetNX(ctx, keyPrefix+scope.Key(), raw, c.ttl)
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return errors.New("redis not configured")
	}
	return c.rdb.Ping(ctx).Err()
}

// LocalCache is an in-process cache for single-instance deployments.
type LocalCache struct {
	c *gocache.Cache
}

// NewLocal 创建进程内排序缓存
func NewLocal(ttl time.Duration) *LocalCache {
	return &LocalCache{c: gocache.New(ttl, 2*ttl)}
}

func (c *LocalCache) Get(_ context.Context, scope entity.Scope) ([]string, bool) {
	v, ok := c.c.Get(keyPrefix + scope.Key())
	if !ok {
		return nil, false
	}
	ids, ok := v.([]string)
	if !ok {
		return nil, false
	}
	return append([]string(nil), ids...), true
}

func (c *LocalCache) Set(_ context.Context, scope entity.Scope, ids []string) {
	c.c.SetDefault(keyPrefix+scope.Key(), append([]string(nil), ids...))
}

func (c *LocalCache) Fill(_ context.Context, scope entity.Scope, ids []string) {
	// Add fails when the key exists
	_ = c.c.Add(keyPrefix+scope.Key(), append([]string(nil), ids...), gocache.DefaultExpiration)
}
