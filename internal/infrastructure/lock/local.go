package lock

import (
	"context"
	"sync"
)

// LocalLocker 进程内按 key 加锁，单实例部署和测试使用
// 每个 key 一个容量为 1 的 channel，引用计数归零后回收
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key, owner string) (Releaser, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localRelease{l: l, key: key, s: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localRelease struct {
	once sync.Once
	l    *LocalLocker
	key  string
	s    *slot
}

func (r *localRelease) Unlock(ctx context.Context) error {
	r.once.Do(func() {
		<-r.s.ch
		r.l.unref(r.key, r.s)
	})
	return nil
}
