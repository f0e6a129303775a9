package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.Acquire(ctx, AccountKey(1), "t")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			_ = r.Unlock(ctx)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("同一 key 同时持有者 = %d, want 1", maxSeen)
	}
	if len(l.slots) != 0 {
		t.Fatalf("slots 未回收: %d", len(l.slots))
	}
}

func TestLocalLockerDifferentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, AccountKey(1), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer r1.Unlock(ctx)

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	r2, err := l.Acquire(ctx2, AccountKey(2), "b")
	if err != nil {
		t.Fatalf("不同 key 不应阻塞: %v", err)
	}
	_ = r2.Unlock(ctx)
}

func TestLocalLockerRespectsContext(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	r, err := l.Acquire(ctx, CampaignKey(7), "a")
	if err != nil {
		t.Fatal(err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx2, CampaignKey(7), "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	_ = r.Unlock(ctx)
	_ = r.Unlock(ctx) // 重复释放无副作用

	r3, err := l.Acquire(ctx, CampaignKey(7), "c")
	if err != nil {
		t.Fatalf("释放后应可再次获取: %v", err)
	}
	_ = r3.Unlock(ctx)
}
