package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAniRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ani.ConfigureCampaign(ctx, &CampaignRequest{CampaignID: 7, RotationEnabled: true, CallerIDPrefix: "555123"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 10; i++ {
		got, err := env.ani.NextCallerID(ctx, 7)
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("555123%04d", i); got != want {
			t.Fatalf("第 %d 次 = %s, want %s", i, got, want)
		}
	}

	var last string
	for i := 11; i <= 100; i++ {
		last, _ = env.ani.NextCallerID(ctx, 7)
	}
	if last != "5551230000" {
		t.Fatalf("第 100 次 = %s, want 5551230000", last)
	}
}

func TestAniStaticCallerID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.ani.ConfigureCampaign(ctx, &CampaignRequest{CampaignID: 1, StaticCallerID: "18005550000"})
	for i := 0; i < 3; i++ {
		if got, _ := env.ani.NextCallerID(ctx, 1); got != "18005550000" {
			t.Fatalf("got %s", got)
		}
	}
	state, _ := env.store.Campaigns().GetByCampaignID(ctx, 1)
	if state.RotationCounter != 0 {
		t.Fatalf("关闭轮换时计数器不应变化: %d", state.RotationCounter)
	}
}

func TestAniConcurrentUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _ = env.ani.ConfigureCampaign(ctx, &CampaignRequest{CampaignID: 3, RotationEnabled: true, CallerIDPrefix: "777"})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := env.ani.NextCallerID(ctx, 3)
			if err != nil {
				t.Errorf("NextCallerID: %v", err)
				return
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("50 次并发轮换得到 %d 个不同号码", len(seen))
	}
	state, _ := env.store.Campaigns().GetByCampaignID(ctx, 3)
	if state.RotationCounter != 50 {
		t.Fatalf("counter = %d, want 50", state.RotationCounter)
	}
}

func TestAniErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.ani.NextCallerID(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.ani.ConfigureCampaign(ctx, &CampaignRequest{CampaignID: 1, RotationEnabled: true}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
