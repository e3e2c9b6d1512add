package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisPrefix = "visibility:answer:"

// RedisCache implements Cache using go-redis. Redis expires entries itself.
type RedisCache struct {
	client *redis.Client
}

// NewRedis connects to the Redis server at redisURL.
func NewRedis(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	c := &RedisCache{client: redis.NewClient(opts)}
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}
	return c, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, redisPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "redis: get cached answer")
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, answer string, ttl time.Duration) error {
	return eris.Wrap(c.client.Set(ctx, redisPrefix+key, answer, ttl).Err(), "redis: set cached answer")
}

// Purge removes every cached answer when all is set. Expired keys are
// already gone, so a plain purge is a no-op.
func (c *RedisCache) Purge(ctx context.Context, all bool) (int, error) {
	if !all {
		return 0, nil
	}
	removed := 0
	iter := c.client.Scan(ctx, 0, redisPrefix+"*", 500).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := flush(); err != nil {
				return removed, eris.Wrap(err, "redis: purge answers")
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, eris.Wrap(err, "redis: scan answers")
	}
	if err := flush(); err != nil {
		return removed, eris.Wrap(err, "redis: purge answers")
	}
	return removed, nil
}
