package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voipbilling/internal/config"
	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/metrics"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
	"voipbilling/pkg/idgen"
	"voipbilling/pkg/money"

	"github.com/shopspring/decimal"
)

// LedgerService 账本，账户余额唯一的写入口
//
// 每次入账：
//  1. 账户维度加锁（Redis / 进程内）
//  2. 存储事务内 FOR UPDATE 读账户，校验幂等键和授信额度
//  3. 版本号 CAS 更新余额，追加一条流水和一条 outbox 消息
type LedgerService struct {
	store  repository.Store
	locker lock.Locker
	cfg    *config.Config
}

func NewLedgerService(store repository.Store, locker lock.Locker, cfg *config.Config) *LedgerService {
	return &LedgerService{
		store:  store,
		locker: locker,
		cfg:    cfg,
	}
}

// PostRequest 入账请求
// Reference 为幂等键：扣费时是 CallID，充值时是支付单号
type PostRequest struct {
	AccountID int64           `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" binding:"required"`
	Remark    string          `json:"remark"`
}

// PostResult Replayed 为 true 表示命中幂等键，返回的是原流水
type PostResult struct {
	Transaction *model.AccountTransaction `json:"transaction"`
	Replayed    bool                      `json:"replayed"`
}

// txHook 与入账在同一个存储事务内执行，返回错误则整体回滚
type txHook func(tx repository.Repositories, trans *model.AccountTransaction) error

func (s *LedgerService) PostDebit(ctx context.Context, req *PostRequest) (*PostResult, error) {
	return s.post(ctx, model.TransactionTypeDebit, req, nil)
}

func (s *LedgerService) PostCredit(ctx context.Context, req *PostRequest) (*PostResult, error) {
	return s.post(ctx, model.TransactionTypeCredit, req, nil)
}

func (s *LedgerService) PostRefund(ctx context.Context, req *PostRequest) (*PostResult, error) {
	return s.post(ctx, model.TransactionTypeRefund, req, nil)
}

// PostAdjustment 金额带符号，不做授信校验
func (s *LedgerService) PostAdjustment(ctx context.Context, req *PostRequest) (*PostResult, error) {
	return s.post(ctx, model.TransactionTypeAdjustment, req, nil)
}

func (s *LedgerService) post(ctx context.Context, txType string, req *PostRequest, within txHook) (*PostResult, error) {
	m := metrics.GetMetrics()

	sign, magnitude, err := s.validate(txType, req)
	if err != nil {
		m.LedgerPostTotal.WithLabelValues(txType, "invalid").Inc()
		return nil, err
	}

	// 幂等快速路径，不加锁
	existing, err := s.store.Transactions().GetByReference(ctx, req.AccountID, txType, req.Reference)
	if err != nil {
		return nil, storageErr("查询流水失败", err)
	}
	if existing != nil {
		if err := sameRequest(existing, sign, magnitude); err != nil {
			return nil, err
		}
		m.LedgerPostTotal.WithLabelValues(txType, "replayed").Inc()
		return &PostResult{Transaction: existing, Replayed: true}, nil
	}

	result := &PostResult{}
	err = withLock(ctx, s.locker, "account", lock.AccountKey(req.AccountID), func() error {
		return s.store.Transaction(ctx, func(tx repository.Repositories) error {
			// 加锁后再次检查幂等
			existing, err := tx.Transactions().GetByReference(ctx, req.AccountID, txType, req.Reference)
			if err != nil {
				return storageErr("查询流水失败", err)
			}
			if existing != nil {
				if err := sameRequest(existing, sign, magnitude); err != nil {
					return err
				}
				result.Transaction, result.Replayed = existing, true
				return nil
			}

			account, err := tx.Accounts().GetByIDForUpdate(ctx, req.AccountID)
			if err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) {
					return ErrAccountNotFound
				}
				return storageErr("查询账户失败", err)
			}

			delta := magnitude
			if sign < 0 {
				delta = magnitude.Neg()
			}
			after := money.Round(account.Balance.Add(delta))

			if txType == model.TransactionTypeDebit && after.LessThan(account.CreditLimit.Neg()) {
				return fmt.Errorf("%w: 可用额度 %s，需扣 %s",
					ErrInsufficientCredit, money.Format(account.AvailableBalance()), money.Format(magnitude))
			}

			if err := tx.Accounts().UpdateBalance(ctx, account.ID, after, account.Version); err != nil {
				return storageErr("更新余额失败", err)
			}

			trans := &model.AccountTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				AccountID:     account.ID,
				Type:          txType,
				Reference:     req.Reference,
				Amount:        magnitude,
				Sign:          sign,
				BalanceBefore: account.Balance,
				BalanceAfter:  after,
				Remark:        req.Remark,
			}
			if err := tx.Transactions().Create(ctx, trans); err != nil {
				return storageErr("记录流水失败", err)
			}

			if within != nil {
				if err := within(tx, trans); err != nil {
					return err
				}
			}

			msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.Ledger, trans.TransactionNo, &model.LedgerPostedEvent{
				TransactionNo: trans.TransactionNo,
				AccountID:     trans.AccountID,
				Type:          trans.Type,
				Amount:        trans.Amount,
				Sign:          trans.Sign,
				BalanceAfter:  trans.BalanceAfter,
				Reference:     trans.Reference,
				PostedAt:      time.Now().Format(time.RFC3339),
			})
			if err != nil {
				return fmt.Errorf("序列化入账事件失败: %w", err)
			}
			if err := tx.Outbox().Create(ctx, msg); err != nil {
				return storageErr("写入消息失败", err)
			}

			result.Transaction = trans
			return nil
		})
	})
	if err != nil {
		err = classify("入账失败", err)
		switch {
		case errors.Is(err, ErrInsufficientCredit):
			m.LedgerPostTotal.WithLabelValues(txType, "refused").Inc()
		default:
			m.LedgerPostTotal.WithLabelValues(txType, "error").Inc()
		}
		return nil, err
	}

	if result.Replayed {
		m.LedgerPostTotal.WithLabelValues(txType, "replayed").Inc()
		return result, nil
	}

	m.LedgerPostTotal.WithLabelValues(txType, "posted").Inc()
	amount, _ := result.Transaction.Amount.Float64()
	m.LedgerPostAmount.WithLabelValues(txType).Add(amount)

	t := result.Transaction
	log.Printf("[Ledger] 入账成功: txNo=%s, accountID=%d, type=%s, amount=%s, sign=%d, balance=%s->%s, ref=%s",
		t.TransactionNo, t.AccountID, t.Type, money.Format(t.Amount), t.Sign,
		money.Format(t.BalanceBefore), money.Format(t.BalanceAfter), t.Reference)
	return result, nil
}

// validate 返回方向和金额绝对值
func (s *LedgerService) validate(txType string, req *PostRequest) (int, decimal.Decimal, error) {
	if req == nil || req.AccountID <= 0 {
		return 0, decimal.Zero, invalidArg("账户ID无效")
	}
	if req.Reference == "" {
		return 0, decimal.Zero, invalidArg("reference 不能为空")
	}
	amount := req.Amount
	if !amount.Equal(money.Round(amount)) {
		return 0, decimal.Zero, invalidArg("金额最多 %d 位小数", money.Scale)
	}

	if txType == model.TransactionTypeAdjustment {
		if amount.IsZero() {
			return 0, decimal.Zero, invalidArg("调账金额不能为 0")
		}
		if amount.IsNegative() {
			return -1, amount.Neg(), nil
		}
		return 1, amount, nil
	}

	if !amount.IsPositive() {
		return 0, decimal.Zero, invalidArg("金额必须大于 0")
	}
	return model.SignOf(txType), amount, nil
}

func sameRequest(existing *model.AccountTransaction, sign int, magnitude decimal.Decimal) error {
	if existing.Sign != sign || !existing.Amount.Equal(magnitude) {
		return fmt.Errorf("%w: reference=%s 已入账 %s",
			ErrIdempotencyConflict, existing.Reference, money.Format(existing.SignedAmount()))
	}
	return nil
}

// ReconcileReport 余额回放结果
type ReconcileReport struct {
	AccountID        int64           `json:"account_id"`
	StoredBalance    decimal.Decimal `json:"stored_balance"`
	ReplayedBalance  decimal.Decimal `json:"replayed_balance"`
	TransactionCount int64           `json:"transaction_count"`
	BrokenAtID       int64           `json:"broken_at_id,omitempty"` // 第一条 before/after 不连续的流水
	Consistent       bool            `json:"consistent"`
}

const replayBatchSize = 500

// ReplayBalance 从 0 开始按 ID 顺序回放全部流水，与账户余额比对
// 回放期间持有账户锁，避免并发入账造成误报
func (s *LedgerService) ReplayBalance(ctx context.Context, accountID int64) (*ReconcileReport, error) {
	report := &ReconcileReport{AccountID: accountID, ReplayedBalance: money.Zero}

	err := withLock(ctx, s.locker, "account", lock.AccountKey(accountID), func() error {
		account, err := s.store.Accounts().GetByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return storageErr("查询账户失败", err)
		}
		report.StoredBalance = account.Balance

		running := money.Zero
		afterID := int64(0)
		for {
			batch, err := s.store.Transactions().ListAfter(ctx, accountID, afterID, replayBatchSize)
			if err != nil {
				return storageErr("查询流水失败", err)
			}
			for _, t := range batch {
				if report.BrokenAtID == 0 && !t.BalanceBefore.Equal(running) {
					report.BrokenAtID = t.ID
				}
				running = running.Add(t.SignedAmount())
				if report.BrokenAtID == 0 && !t.BalanceAfter.Equal(running) {
					report.BrokenAtID = t.ID
				}
				report.TransactionCount++
				afterID = t.ID
			}
			if len(batch) < replayBatchSize {
				break
			}
		}
		report.ReplayedBalance = running
		return nil
	})
	if err != nil {
		return nil, classify("余额回放失败", err)
	}

	report.Consistent = report.BrokenAtID == 0 && report.ReplayedBalance.Equal(report.StoredBalance)
	if !report.Consistent {
		metrics.GetMetrics().ReconcileMismatch.Inc()
		log.Printf("[Ledger] 余额回放不一致: accountID=%d, stored=%s, replayed=%s, brokenAt=%d",
			accountID, money.Format(report.StoredBalance), money.Format(report.ReplayedBalance), report.BrokenAtID)
	}
	return report, nil
}
