package admission

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// 检查上限并加一，返回 1 表示准入
var acquireScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
return 1
`)

// 不允许减到负数，返回 -1 表示下溢
var releaseScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n <= 0 then
	return -1
end
return redis.call("DECR", KEYS[1])
`)

// RedisCounter 多实例共享的计数器
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(key string) string {
	return c.prefix + key
}

func (c *RedisCounter) Acquire(ctx context.Context, key string, limit int64) (bool, error) {
	n, err := acquireScript.Run(ctx, c.client, []string{c.key(key)}, limit).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisCounter) Release(ctx context.Context, key string) error {
	n, err := releaseScript.Run(ctx, c.client, []string{c.key(key)}).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrUnderflow
	}
	return nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string, value int64) error {
	if value <= 0 {
		return c.client.Del(ctx, c.key(key)).Err()
	}
	return c.client.Set(ctx, c.key(key), value, 0).Err()
}

func (c *RedisCounter) Current(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
