package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/metrics"

	"github.com/google/uuid"
)

// withLock 持有 key 对应的锁执行 fn
// 锁获取失败按存储不可用处理，调用方可以重试
func withLock(ctx context.Context, locker lock.Locker, scope, key string, fn func() error) error {
	m := metrics.GetMetrics()
	owner := uuid.NewString()

	start := time.Now()
	releaser, err := locker.Acquire(ctx, key, owner)
	m.LockAcquireDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.LockAcquireTotal.WithLabelValues(scope, "failed").Inc()
		return fmt.Errorf("%w: 获取锁失败 key=%s: %w", ErrStorageUnavailable, key, err)
	}
	m.LockAcquireTotal.WithLabelValues(scope, "success").Inc()

	defer func() {
		// 业务 ctx 可能已取消，释放锁用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaser.Unlock(unlockCtx); err != nil {
			if errors.Is(err, lock.ErrLockExpired) {
				log.Printf("[Lock] 锁在释放前已过期: key=%s, owner=%s", key, owner)
				return
			}
			log.Printf("[Lock] 释放锁失败: key=%s, owner=%s, err=%v", key, owner, err)
		}
	}()

	return fn()
}

var businessErrors = []error{
	ErrRateNotFound,
	ErrNoRateCard,
	ErrInsufficientCredit,
	ErrCapacityExceeded,
	ErrConfiguration,
	ErrStorageUnavailable,
	ErrIdempotencyConflict,
	ErrInvalidArgument,
	ErrAccountNotFound,
	ErrAdmissionUnderflow,
	ErrNotFound,
	ErrConflict,
}

// classify 业务错误原样返回，其余视为存储错误
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storageErr(op, err)
}
