package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "catalog:"

// CachedReader fronts a Reader with Redis so hot product lookups skip the database.
// Product rows are static for the engine; entries simply expire after ttl.
type CachedReader struct {
	next   Reader
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedReader wraps next. A nil client disables caching.
func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration) *CachedReader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedReader{next: next, client: client, ttl: ttl}
}

func (c *CachedReader) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.fetch(ctx, productKey(id), &p, func(ctx context.Context) (any, error) {
		return c.next.GetProduct(ctx, id)
	})
	return p, err
}

func (c *CachedReader) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	result := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var missing []int64
	if c.client != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = productKey(id)
		}
		values, err := c.client.MGet(ctx, keys...).Result()
		if err != nil {
			return c.next.GetProducts(ctx, ids)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var p Product
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			result[p.ID] = p
		}
	} else {
		missing = ids
	}
	if len(missing) == 0 {
		return result, nil
	}
	loaded, err := c.next.GetProducts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range loaded {
		result[id] = p
		c.store(ctx, productKey(id), p)
	}
	return result, nil
}

// GetBranch always reads through: write paths gate on branch status, and a
// deactivated branch must stop transacting at once.
func (c *CachedReader) GetBranch(ctx context.Context, id int64) (Branch, error) {
	return c.next.GetBranch(ctx, id)
}

func (c *CachedReader) DefaultWarehouse(ctx context.Context) (Branch, error) {
	var b Branch
	err := c.fetch(ctx, cacheKeyPrefix+"branch:default_warehouse", &b, func(ctx context.Context) (any, error) {
		return c.next.DefaultWarehouse(ctx)
	})
	return b, err
}

// Invalidate drops every cached catalog entry.
func (c *CachedReader) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *CachedReader) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if c.client != nil {
		// Any Redis failure other than a hit falls through to the store.
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
				return nil
			}
		}
	}
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, json.RawMessage(raw))
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func (c *CachedReader) store(ctx context.Context, key string, value any) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}

func productKey(id int64) string {
	return cacheKeyPrefix + "product:" + strconv.FormatInt(id, 10)
}
