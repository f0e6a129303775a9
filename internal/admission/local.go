package admission

import (
	"context"
	"sync"
)

// LocalCounter 进程内计数器
type LocalCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{counts: make(map[string]int64)}
}

func (c *LocalCounter) Acquire(ctx context.Context, key string, limit int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[key] >= limit {
		return false, nil
	}
	c.counts[key]++
	return true, nil
}

func (c *LocalCounter) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.counts[key]
	if n <= 0 {
		return ErrUnderflow
	}
	if n == 1 {
		delete(c.counts, key)
		return nil
	}
	c.counts[key] = n - 1
	return nil
}

func (c *LocalCounter) Reset(ctx context.Context, key string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value <= 0 {
		delete(c.counts, key)
		return nil
	}
	c.counts[key] = value
	return nil
}

func (c *LocalCounter) Current(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key], nil
}
