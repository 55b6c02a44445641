package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/cyberinferno/sleuthnet/protocol"
)

// LoadFunc reads the case listing from the content source.
type LoadFunc func(ctx context.Context) ([]protocol.CaseInfo, error)

// ListingCache keeps the case listing between lobby requests. Concurrent
// misses share a single load, and a failed load is never cached.
type ListingCache interface {
	// Listing returns the cached case listing, or calls load and stores
	// the result when the listing is missing or expired.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - load: Reads the listing from the source on a miss
	//
	// Returns:
	//   - The case listing; callers may modify the returned slice
	//   - An error if the listing could not be loaded
	Listing(ctx context.Context, load LoadFunc) ([]protocol.CaseInfo, error)

	// Invalidate drops the listing so the next call reloads it.
	Invalidate(ctx context.Context) error
}

const listingKey = "cases"

// MemoryCache is an in-process ListingCache backed by go-cache.
type MemoryCache struct {
	cache *cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewMemoryCache creates a MemoryCache that keeps a listing for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: cache.New(ttl, ttl),
		ttl:   ttl,
	}
}

// Listing implements ListingCache.
func (c *MemoryCache) Listing(ctx context.Context, load LoadFunc) ([]protocol.CaseInfo, error) {
	if cases, ok := c.cached(); ok {
		return slices.Clone(cases), nil
	}

	val, err, _ := c.group.Do(listingKey, func() (any, error) {
		// Another caller may have stored the listing while we waited.
		if cases, ok := c.cached(); ok {
			return cases, nil
		}

		cases, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(listingKey, cases, c.ttl)
		return cases, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(val.([]protocol.CaseInfo)), nil
}

func (c *MemoryCache) cached() ([]protocol.CaseInfo, bool) {
	val, found := c.cache.Get(listingKey)
	if !found {
		return nil, false
	}

	cases, ok := val.([]protocol.CaseInfo)
	return cases, ok
}

// Invalidate implements ListingCache.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(listingKey)
	return nil
}

// RedisCache is a ListingCache shared between server processes through
// redis. The listing is stored CBOR-encoded under a single key.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisCache creates a RedisCache storing the listing under prefix+"cases".
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	listings := NewRedisCache(client, "sleuth:catalog:", time.Minute)
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, key: prefix + listingKey, ttl: ttl}
}

// Listing implements ListingCache. A redis outage degrades to loading from
// the source on every call.
func (c *RedisCache) Listing(ctx context.Context, load LoadFunc) ([]protocol.CaseInfo, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err == nil {
		var cases []protocol.CaseInfo
		if err := cbor.Unmarshal(raw, &cases); err != nil {
			return nil, fmt.Errorf("decode cached listing: %w", err)
		}

		return cases, nil
	}

	if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	val, err, _ := c.group.Do(c.key, func() (any, error) {
		cases, err := load(ctx)
		if err != nil {
			return nil, err
		}

		data, err := cbor.Marshal(cases)
		if err != nil {
			return nil, fmt.Errorf("encode listing: %w", err)
		}

		// The listing is still served if redis is unavailable.
		_ = c.client.Set(ctx, c.key, data, c.ttl).Err()
		return cases, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(val.([]protocol.CaseInfo)), nil
}

// Invalidate implements ListingCache.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", c.key, err)
	}

	return nil
}
