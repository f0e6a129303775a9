package admission

import (
	"context"
	"errors"
)

var ErrUnderflow = errors.New("并发计数已为 0，无法释放")

// Counter 按 key 计数的在途呼叫计数器
// Acquire 的"检查上限 + 加一"必须是原子的
type Counter interface {
	// Acquire 当前值 < limit 时加一并返回 true
	Acquire(ctx context.Context, key string, limit int64) (bool, error)
	// Release 减一，已为 0 时返回 ErrUnderflow 且不变
	Release(ctx context.Context, key string) error
	// Reset 直接覆盖计数，用于重启后从在途会话重建
	Reset(ctx context.Context, key string, value int64) error
	Current(ctx context.Context, key string) (int64, error)
}
