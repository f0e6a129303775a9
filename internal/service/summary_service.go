package service

import (
	"context"
	"time"

	"voipbilling/internal/model"
	"voipbilling/internal/repository"

	"github.com/shopspring/decimal"
)

const maxHistoryLimit = 500

// SummaryService 只读查询，供机器人和管理端展示
type SummaryService struct {
	store       repository.Store
	accounts    *AccountService
	recentLimit int
}

func NewSummaryService(store repository.Store, recentLimit int) *SummaryService {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &SummaryService{
		store:       store,
		accounts:    NewAccountService(store),
		recentLimit: recentLimit,
	}
}

type FinancialSummary struct {
	AccountID        int64               `json:"account_id"`
	Balance          decimal.Decimal     `json:"balance"`
	CreditLimit      decimal.Decimal     `json:"credit_limit"`
	AvailableBalance decimal.Decimal     `json:"available_balance"`
	TotalCalls       int64               `json:"total_calls"`
	AnsweredCalls    int64               `json:"answered_calls"`
	TotalMinutes     decimal.Decimal     `json:"total_minutes"` // 计费时长，保留 2 位
	TotalSpent       decimal.Decimal     `json:"total_spent"`
	RecentCalls      []*model.CallRecord `json:"recent_calls"`
}

// GetFinancialSummary since 为空时统计全部话单，RecentCalls 同样只取 since 之后的
func (s *SummaryService) GetFinancialSummary(ctx context.Context, accountID int64, since *time.Time) (*FinancialSummary, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.CallRecords().Stats(ctx, accountID, since)
	if err != nil {
		return nil, storageErr("统计话单失败", err)
	}
	recent, err := s.store.CallRecords().ListRecent(ctx, accountID, since, s.recentLimit)
	if err != nil {
		return nil, storageErr("查询话单失败", err)
	}

	return &FinancialSummary{
		AccountID:        account.ID,
		Balance:          account.Balance,
		CreditLimit:      account.CreditLimit,
		AvailableBalance: account.AvailableBalance(),
		TotalCalls:       stats.TotalCalls,
		AnsweredCalls:    stats.AnsweredCalls,
		TotalMinutes:     decimal.NewFromInt(stats.BillableSeconds).DivRound(sixty, 2),
		TotalSpent:       stats.TotalSpent,
		RecentCalls:      recent,
	}, nil
}

// GetCallHistory 最近的话单，按开始时间倒序
func (s *SummaryService) GetCallHistory(ctx context.Context, accountID int64, limit int) ([]*model.CallRecord, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.recentLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	list, err := s.store.CallRecords().ListRecent(ctx, accountID, nil, limit)
	if err != nil {
		return nil, storageErr("查询话单失败", err)
	}
	return list, nil
}

type TransactionPage struct {
	List     []*model.AccountTransaction `json:"list"`
	Total    int64                       `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

// ListTransactions 账户流水，按 ID 倒序分页
func (s *SummaryService) ListTransactions(ctx context.Context, accountID int64, page, pageSize int) (*TransactionPage, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	list, total, err := s.store.Transactions().ListByAccountID(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, storageErr("查询流水失败", err)
	}
	return &TransactionPage{List: list, Total: total, Page: page, PageSize: pageSize}, nil
}
