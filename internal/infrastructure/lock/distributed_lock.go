package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 多实例部署时，同一账户的扣费、同一外呼任务的主叫号码轮换必须串行：
//
//   实例1: 读余额=5 -> 扣4 -> 写1
//   实例2: 读余额=5 -> 扣4 -> 写1      两笔扣费只生效一笔
//
// 加锁：SET key owner NX PX ttl
//   - NX 保证互斥
//   - PX 防止持有者崩溃后死锁
//   - owner 为本次持有者的唯一标识，释放时校验
//
// 释放：Lua 脚本原子地"比较 owner + 删除"，避免锁过期后误删他人的锁
//
// 锁只缩小冲突窗口，正确性最终由数据库 FOR UPDATE 和版本号 CAS 保证。
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock 单个 key 的 Redis 锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞获取，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，锁已过期或被他人持有时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// AccountKey 账户维度锁：不同账户可以并发扣费，同一账户串行
func AccountKey(accountID int64) string {
	return fmt.Sprintf("ledger:lock:account:%d", accountID)
}

// CampaignKey 外呼任务维度锁
func CampaignKey(campaignID int64) string {
	return fmt.Sprintf("ani:lock:campaign:%d", campaignID)
}

// RateCardKey 同一费率卡新增费率时做重叠校验，需要串行
func RateCardKey(rateCardID int64) string {
	return fmt.Sprintf("ratecard:lock:%d", rateCardID)
}
