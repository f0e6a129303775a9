package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"voipbilling/internal/model"
	"voipbilling/pkg/money"
)

func post(t *testing.T, fn func(context.Context, *PostRequest) (*PostResult, error), accountID int64, amount, ref string) *PostResult {
	t.Helper()
	res, err := fn(context.Background(), &PostRequest{AccountID: accountID, Amount: money.MustParse(amount), Reference: ref})
	if err != nil {
		t.Fatalf("入账 %s %s 失败: %v", ref, amount, err)
	}
	return res
}

func TestLedgerDebitIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "0", 1, nil)
	post(t, env.ledger.PostCredit, acc.ID, "10", "recharge-1")

	first := post(t, env.ledger.PostDebit, acc.ID, "1.5", "call-1")
	second := post(t, env.ledger.PostDebit, acc.ID, "1.5", "call-1")

	if first.Replayed || !second.Replayed {
		t.Fatalf("replayed = %v/%v, want false/true", first.Replayed, second.Replayed)
	}
	if first.Transaction.TransactionNo != second.Transaction.TransactionNo {
		t.Fatal("重复扣费返回了不同的流水")
	}
	if got := env.balance(t, acc.ID); got != "8.5000" {
		t.Fatalf("balance = %s, want 8.5000", got)
	}

	_, total, _ := env.store.Transactions().ListByAccountID(ctx, acc.ID, 1, 10)
	if total != 2 {
		t.Fatalf("流水数 = %d, want 2", total)
	}

	// 同一幂等键不同金额
	_, err := env.ledger.PostDebit(ctx, &PostRequest{AccountID: acc.ID, Amount: money.MustParse("2"), Reference: "call-1"})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestLedgerCreditLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "10.00", 1, nil)

	// 余额调整到 -5.00
	post(t, env.ledger.PostAdjustment, acc.ID, "-5.00", "adj-1")
	if got := env.balance(t, acc.ID); got != "-5.0000" {
		t.Fatalf("balance = %s, want -5.0000", got)
	}

	_, err := env.ledger.PostDebit(ctx, &PostRequest{AccountID: acc.ID, Amount: money.MustParse("5.01"), Reference: "call-big"})
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("err = %v, want ErrInsufficientCredit", err)
	}
	if got := env.balance(t, acc.ID); got != "-5.0000" {
		t.Fatalf("拒绝后余额被修改: %s", got)
	}
	if trans, _ := env.store.Transactions().GetByReference(ctx, acc.ID, model.TransactionTypeDebit, "call-big"); trans != nil {
		t.Fatal("拒绝后不应写入流水")
	}

	post(t, env.ledger.PostDebit, acc.ID, "4.99", "call-ok")
	if got := env.balance(t, acc.ID); got != "-9.9900" {
		t.Fatalf("balance = %s, want -9.9900", got)
	}
}

func TestLedgerAdjustmentSkipsCreditCheck(t *testing.T) {
	env := newTestEnv(t)
	acc := env.mustAccount(t, 1, "0", 1, nil)

	res := post(t, env.ledger.PostAdjustment, acc.ID, "-3", "adj-1")
	if res.Transaction.Sign != -1 || money.Format(res.Transaction.Amount) != "3.0000" {
		t.Fatalf("sign/amount = %d/%s", res.Transaction.Sign, res.Transaction.Amount)
	}
	if got := env.balance(t, acc.ID); got != "-3.0000" {
		t.Fatalf("balance = %s, want -3.0000", got)
	}
}

func TestLedgerInvalidArguments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "0", 1, nil)

	tests := []struct {
		name string
		fn   func(context.Context, *PostRequest) (*PostResult, error)
		req  *PostRequest
		want error
	}{
		{"金额为 0", env.ledger.PostCredit, &PostRequest{AccountID: acc.ID, Amount: money.Zero, Reference: "r"}, ErrInvalidArgument},
		{"金额为负", env.ledger.PostDebit, &PostRequest{AccountID: acc.ID, Amount: money.MustParse("-1"), Reference: "r"}, ErrInvalidArgument},
		{"超过 4 位小数", env.ledger.PostCredit, &PostRequest{AccountID: acc.ID, Amount: money.MustParse("1").Div(money.MustParse("3")), Reference: "r"}, ErrInvalidArgument},
		{"缺少 reference", env.ledger.PostRefund, &PostRequest{AccountID: acc.ID, Amount: money.MustParse("1")}, ErrInvalidArgument},
		{"调账为 0", env.ledger.PostAdjustment, &PostRequest{AccountID: acc.ID, Amount: money.Zero, Reference: "r"}, ErrInvalidArgument},
		{"账户不存在", env.ledger.PostCredit, &PostRequest{AccountID: 999, Amount: money.MustParse("1"), Reference: "r"}, ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLedgerReplayReproducesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "100", 1, nil)

	post(t, env.ledger.PostCredit, acc.ID, "50", "c1")
	post(t, env.ledger.PostDebit, acc.ID, "12.3456", "d1")
	post(t, env.ledger.PostRefund, acc.ID, "2.0001", "r1")
	post(t, env.ledger.PostAdjustment, acc.ID, "-70", "a1")
	post(t, env.ledger.PostDebit, acc.ID, "0.0001", "d2")

	report, err := env.ledger.ReplayBalance(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Consistent || report.TransactionCount != 5 {
		t.Fatalf("report = %+v", report)
	}
	if money.Format(report.ReplayedBalance) != env.balance(t, acc.ID) {
		t.Fatalf("replayed = %s, stored = %s", report.ReplayedBalance, env.balance(t, acc.ID))
	}
	if got := env.balance(t, acc.ID); got != "-30.3456" {
		t.Fatalf("balance = %s, want -30.3456", got)
	}
}

func TestLedgerReplayDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "0", 1, nil)
	post(t, env.ledger.PostCredit, acc.ID, "10", "c1")

	// 绕过账本直接改余额
	a, _ := env.store.Accounts().GetByID(ctx, acc.ID)
	if err := env.store.Accounts().UpdateBalance(ctx, acc.ID, money.MustParse("11"), a.Version); err != nil {
		t.Fatal(err)
	}

	report, err := env.ledger.ReplayBalance(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Consistent {
		t.Fatalf("余额被篡改后应不一致: %+v", report)
	}
}

func TestLedgerConcurrentDebits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, 1, "0", 1, nil)
	post(t, env.ledger.PostCredit, acc.ID, "10", "c1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.ledger.PostDebit(ctx, &PostRequest{
				AccountID: acc.ID,
				Amount:    money.MustParse("1"),
				Reference: fmt.Sprintf("call-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientCredit):
				refused++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 10 || refused != 20 {
		t.Fatalf("ok/refused = %d/%d, want 10/20", ok, refused)
	}
	if got := env.balance(t, acc.ID); got != "0.0000" {
		t.Fatalf("balance = %s, want 0.0000", got)
	}
	report, _ := env.ledger.ReplayBalance(ctx, acc.ID)
	if !report.Consistent {
		t.Fatalf("并发扣费后回放不一致: %+v", report)
	}
}

func TestLedgerWritesOutboxEvent(t *testing.T) {
	env := newTestEnv(t)
	acc := env.mustAccount(t, 1, "0", 1, nil)

	post(t, env.ledger.PostCredit, acc.ID, "10", "c1")
	post(t, env.ledger.PostCredit, acc.ID, "10", "c1")

	if n := env.pendingTopics(t)["ledger_posted"]; n != 1 {
		t.Fatalf("ledger 事件数 = %d, want 1", n)
	}
}
