package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"voipbilling/internal/admission"
	"voipbilling/internal/metrics"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
	"voipbilling/pkg/money"
)

// AdmissionService 按账户限制在途呼叫数
//
// 计数在 Counter 中（进程内或 Redis），带 callID 的准入同时落一条 CallSession，
// 释放时只有真正删除了会话才减计数，重复的结束事件不会重复扣减。
type AdmissionService struct {
	store   repository.Store
	counter admission.Counter
}

func NewAdmissionService(store repository.Store, counter admission.Counter) *AdmissionService {
	return &AdmissionService{store: store, counter: counter}
}

func accountCounterKey(accountID int64) string {
	return strconv.FormatInt(accountID, 10)
}

// TryAdmit 准入一通呼叫
// 未分配费率卡返回 ErrNoRateCard，可用额度 <= 0 返回 ErrInsufficientCredit，达到上限返回 ErrCapacityExceeded
func (s *AdmissionService) TryAdmit(ctx context.Context, accountID int64, callID string) error {
	m := metrics.GetMetrics()

	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storageErr("查询账户失败", err)
	}

	if callID != "" {
		session, err := s.store.CallSessions().GetByCallID(ctx, callID)
		if err != nil {
			return storageErr("查询呼叫会话失败", err)
		}
		if session != nil {
			// 重复的开始事件
			return nil
		}
	}

	// 无法计费的呼叫不放行：没有费率卡，或可用额度已用完
	if account.RateCardID == nil {
		m.AdmissionTotal.WithLabelValues("no_rate_card").Inc()
		return ErrNoRateCard
	}
	if !account.AvailableBalance().IsPositive() {
		m.AdmissionTotal.WithLabelValues("no_credit").Inc()
		return fmt.Errorf("%w: 可用额度 %s", ErrInsufficientCredit, money.Format(account.AvailableBalance()))
	}

	ok, err := s.counter.Acquire(ctx, accountCounterKey(accountID), int64(account.ConcurrentCallsCap))
	if err != nil {
		return storageErr("并发计数失败", err)
	}
	if !ok {
		m.AdmissionTotal.WithLabelValues("rejected").Inc()
		return ErrCapacityExceeded
	}

	if callID != "" {
		err := s.store.CallSessions().Create(ctx, &model.CallSession{
			CallID:     callID,
			AccountID:  accountID,
			AdmittedAt: time.Now(),
		})
		if err != nil {
			// 计数已加，会话没落库，需要撤回
			if rerr := s.counter.Release(ctx, accountCounterKey(accountID)); rerr != nil {
				log.Printf("[Admission] 撤回计数失败: accountID=%d, callID=%s, err=%v", accountID, callID, rerr)
			}
			if errors.Is(err, repository.ErrDuplicate) {
				return nil
			}
			return storageErr("记录呼叫会话失败", err)
		}
	}

	m.AdmissionTotal.WithLabelValues("admitted").Inc()
	m.ActiveCalls.Inc()
	return nil
}

// Release 释放一通呼叫
// 带 callID 时以会话为准，未知会话直接忽略；计数已为 0 时返回 ErrAdmissionUnderflow
func (s *AdmissionService) Release(ctx context.Context, accountID int64, callID string) error {
	m := metrics.GetMetrics()

	if callID != "" {
		session, err := s.store.CallSessions().GetByCallID(ctx, callID)
		if err != nil {
			return storageErr("查询呼叫会话失败", err)
		}
		if session == nil {
			return nil
		}
		deleted, err := s.store.CallSessions().Delete(ctx, callID)
		if err != nil {
			return storageErr("删除呼叫会话失败", err)
		}
		if !deleted {
			return nil
		}
		accountID = session.AccountID
	}

	if err := s.counter.Release(ctx, accountCounterKey(accountID)); err != nil {
		if errors.Is(err, admission.ErrUnderflow) {
			m.AdmissionTotal.WithLabelValues("underflow").Inc()
			log.Printf("[Admission] 并发计数下溢: accountID=%d, callID=%s", accountID, callID)
			return ErrAdmissionUnderflow
		}
		return storageErr("并发计数失败", err)
	}

	m.AdmissionTotal.WithLabelValues("released").Inc()
	m.ActiveCalls.Dec()
	return nil
}

// Current 当前在途呼叫数
func (s *AdmissionService) Current(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.counter.Current(ctx, accountCounterKey(accountID))
	if err != nil {
		return 0, storageErr("查询并发计数失败", err)
	}
	return n, nil
}

const rebuildBatchSize = 500

// Rebuild 启动时按未结束的 CallSession 重置全部账户的计数
func (s *AdmissionService) Rebuild(ctx context.Context) error {
	counts, err := s.store.CallSessions().CountByAccount(ctx)
	if err != nil {
		return storageErr("统计呼叫会话失败", err)
	}

	var total int64
	afterID := int64(0)
	for {
		ids, err := s.store.Accounts().ListIDs(ctx, afterID, rebuildBatchSize)
		if err != nil {
			return storageErr("查询账户失败", err)
		}
		for _, id := range ids {
			n := counts[id]
			if err := s.counter.Reset(ctx, accountCounterKey(id), n); err != nil {
				return storageErr("重置并发计数失败", err)
			}
			total += n
			afterID = id
		}
		if len(ids) < rebuildBatchSize {
			break
		}
	}

	metrics.GetMetrics().ActiveCalls.Set(float64(total))
	log.Printf("[Admission] 并发计数已重建: 在途呼叫 %d 通", total)
	return nil
}

// ReleaseStale 释放准入时间早于 before 的会话，返回释放数量
// 用于补偿丢失的结束事件
func (s *AdmissionService) ReleaseStale(ctx context.Context, before time.Time, limit int) (int, error) {
	sessions, err := s.store.CallSessions().ListStale(ctx, before, limit)
	if err != nil {
		return 0, storageErr("查询过期会话失败", err)
	}

	released := 0
	for _, session := range sessions {
		err := s.Release(ctx, session.AccountID, session.CallID)
		if err != nil && !errors.Is(err, ErrAdmissionUnderflow) {
			log.Printf("[Admission] 释放过期会话失败: callID=%s, err=%v", session.CallID, err)
			continue
		}
		released++
		log.Printf("[Admission] 已释放过期会话: callID=%s, accountID=%d, admittedAt=%s",
			session.CallID, session.AccountID, session.AdmittedAt.Format(time.RFC3339))
	}
	return released, nil
}
