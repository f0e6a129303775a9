package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"voipbilling/internal/model"
	"voipbilling/pkg/money"
)

func TestFinancialSummary(t *testing.T) {
	env, acc := setupRated(t, "5")
	ctx := context.Background()

	for _, ev := range []*model.CallEvent{
		terminated("c1", acc.ID, "12125551234", 61), // 120s, 2.4
		terminated("c2", acc.ID, "13105551234", 30), // 60s, 0.6
	} {
		if _, err := env.rating.HandleCallTerminated(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	failed := terminated("c3", acc.ID, "13105551234", 0)
	failed.Status = model.CallStatusNoAnswer
	if _, err := env.rating.HandleCallTerminated(ctx, failed); err != nil {
		t.Fatal(err)
	}

	sum, err := env.summary.GetFinancialSummary(ctx, acc.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalCalls != 3 || sum.AnsweredCalls != 2 {
		t.Fatalf("calls = %d/%d, want 3/2", sum.TotalCalls, sum.AnsweredCalls)
	}
	if !sum.TotalMinutes.Equal(money.MustParse("3")) {
		t.Fatalf("minutes = %s, want 3", sum.TotalMinutes)
	}
	if money.Format(sum.TotalSpent) != "3.0000" || money.Format(sum.Balance) != "7.0000" {
		t.Fatalf("spent/balance = %s/%s", sum.TotalSpent, sum.Balance)
	}
	if money.Format(sum.AvailableBalance) != "12.0000" {
		t.Fatalf("available = %s, want 12.0000", sum.AvailableBalance)
	}
	if len(sum.RecentCalls) != 3 {
		t.Fatalf("recent = %d, want 3", len(sum.RecentCalls))
	}

	future := time.Now().Add(time.Hour)
	sum, _ = env.summary.GetFinancialSummary(ctx, acc.ID, &future)
	if sum.TotalCalls != 0 || !sum.TotalSpent.IsZero() {
		t.Fatalf("since 之后无话单: %+v", sum)
	}
	if len(sum.RecentCalls) != 0 {
		t.Fatalf("recent = %d, want 0", len(sum.RecentCalls))
	}

	// c1 开始于 61s 前，不在窗口内
	cutoff := time.Now().Add(-45 * time.Second)
	sum, _ = env.summary.GetFinancialSummary(ctx, acc.ID, &cutoff)
	if sum.TotalCalls != 2 || len(sum.RecentCalls) != 2 {
		t.Fatalf("calls/recent = %d/%d, want 2/2", sum.TotalCalls, len(sum.RecentCalls))
	}
	for _, r := range sum.RecentCalls {
		if r.CallID == "c1" {
			t.Fatal("recent 不应包含 since 之前的话单")
		}
	}
}

func TestCallHistoryAndTransactions(t *testing.T) {
	env, acc := setupRated(t, "0")
	ctx := context.Background()

	for i, id := range []string{"c1", "c2", "c3"} {
		ev := terminated(id, acc.ID, "12125551234", 10)
		ev.StartedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if _, err := env.rating.HandleCallTerminated(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	history, err := env.summary.GetCallHistory(ctx, acc.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].CallID != "c3" || history[1].CallID != "c2" {
		t.Fatalf("history 顺序错误: %v", history)
	}

	page, err := env.summary.ListTransactions(ctx, acc.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	// 1 笔充值 + 3 笔扣费
	if page.Total != 4 || len(page.List) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.List[0].Reference != "c3" {
		t.Fatalf("流水应按 ID 倒序: %s", page.List[0].Reference)
	}

	if _, err := env.summary.GetCallHistory(ctx, 9999, 10); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestCallEventDispatch(t *testing.T) {
	env, acc := setupRated(t, "0")
	ctx := context.Background()

	start := &model.CallEvent{Type: model.CallEventStarting, CallID: "live-1", AccountID: acc.ID}
	if err := env.events.Dispatch(ctx, start); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.admission.Current(ctx, acc.ID); n != 1 {
		t.Fatalf("current = %d, want 1", n)
	}

	// Terminated 计费并释放名额，随后的 Ended 是空操作
	if err := env.events.Dispatch(ctx, terminated("live-1", acc.ID, "12125551234", 30)); err != nil {
		t.Fatal(err)
	}
	if err := env.events.Dispatch(ctx, &model.CallEvent{Type: model.CallEventEnded, CallID: "live-1", AccountID: acc.ID}); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.admission.Current(ctx, acc.ID); n != 0 {
		t.Fatalf("current = %d, want 0", n)
	}

	if err := env.events.Dispatch(ctx, &model.CallEvent{Type: "CALL_RINGING"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
