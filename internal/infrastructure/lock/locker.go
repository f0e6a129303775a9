package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Releaser 已获取的锁
type Releaser interface {
	Unlock(ctx context.Context) error
}

// Locker 按 key 串行化的互斥锁
// owner 用于标识持有者，便于排查是哪个请求占着锁
type Locker interface {
	Acquire(ctx context.Context, key, owner string) (Releaser, error)
}

type RedisLockerOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// RedisLocker 多实例部署使用
type RedisLocker struct {
	client *redis.Client
	opts   RedisLockerOptions
}

func NewRedisLocker(client *redis.Client, opts RedisLockerOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 30
	}
	return &RedisLocker{client: client, opts: opts}
}

func (l *RedisLocker) Acquire(ctx context.Context, key, owner string) (Releaser, error) {
	dl := NewDistributedLock(l.client, key, owner, l.opts.TTL)
	if err := dl.Lock(ctx, l.opts.RetryInterval, l.opts.MaxRetries); err != nil {
		return nil, err
	}
	return dl, nil
}
