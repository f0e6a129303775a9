package repository

import (
	"context"
	"errors"
	"time"

	"voipbilling/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound       = errors.New("账户不存在")
	ErrOptimisticLock        = errors.New("乐观锁冲突，请重试")
	ErrDestinationNotFound   = errors.New("目的地不存在")
	ErrRateCardNotFound      = errors.New("费率卡不存在")
	ErrRateCardStatusInvalid = errors.New("费率卡状态不合法")
	ErrRateNotFound          = errors.New("费率不存在")
	ErrCampaignNotFound      = errors.New("外呼任务不存在")
	ErrDuplicate             = errors.New("记录已存在")
)

// Store 存储入口
// 非事务读写直接走 Repositories，需要原子性的读改写走 Transaction
type Store interface {
	Repositories
	// Transaction 在同一个存储事务内执行 fn，fn 返回错误时整体回滚
	Transaction(ctx context.Context, fn func(tx Repositories) error) error
}

type Repositories interface {
	Destinations() DestinationRepository
	RateCards() RateCardRepository
	Rates() RateRepository
	Accounts() AccountRepository
	Transactions() TransactionRepository
	CallRecords() CallRecordRepository
	CallSessions() CallSessionRepository
	Campaigns() CampaignRepository
	Outbox() OutboxRepository
}

type DestinationRepository interface {
	Create(ctx context.Context, d *model.Destination) error
	Update(ctx context.Context, d *model.Destination) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Destination, error)
	GetByCode(ctx context.Context, code string) (*model.Destination, error)
	ListByCodes(ctx context.Context, codes []string) ([]*model.Destination, error)
	List(ctx context.Context) ([]*model.Destination, error)
}

type RateCardRepository interface {
	Create(ctx context.Context, card *model.RateCard) error
	GetByID(ctx context.Context, id int64) (*model.RateCard, error)
	UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error
	List(ctx context.Context) ([]*model.RateCard, error)
}

type RateRepository interface {
	Create(ctx context.Context, rate *model.Rate) error
	GetByID(ctx context.Context, id int64) (*model.Rate, error)
	ListByCard(ctx context.Context, rateCardID int64) ([]*model.Rate, error)
	ListByCardAndDestination(ctx context.Context, rateCardID, destinationID int64) ([]*model.Rate, error)
	// FindByCodes 返回费率卡上目的地编码属于 codes 的全部费率（含 Destination）
	FindByCodes(ctx context.Context, rateCardID int64, codes []string) ([]*model.Rate, error)
	CountByDestination(ctx context.Context, destinationID int64) (int64, error)
}

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// GetByIDForUpdate 只能在 Transaction 内使用
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Account, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int) error
	UpdateConfig(ctx context.Context, account *model.Account) error
	ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, trans *model.AccountTransaction) error
	// GetByReference 未找到返回 nil, nil
	GetByReference(ctx context.Context, accountID int64, txType, reference string) (*model.AccountTransaction, error)
	ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error)
	// ListAfter 按 ID 升序，用于余额回放
	ListAfter(ctx context.Context, accountID, afterID int64, limit int) ([]*model.AccountTransaction, error)
}

type CallRecordRepository interface {
	Create(ctx context.Context, record *model.CallRecord) error
	// GetByCallID 未找到返回 nil, nil
	GetByCallID(ctx context.Context, callID string) (*model.CallRecord, error)
	// ListRecent since 非空时只返回该时间之后开始的话单
	ListRecent(ctx context.Context, accountID int64, since *time.Time, limit int) ([]*model.CallRecord, error)
	Stats(ctx context.Context, accountID int64, since *time.Time) (*model.CallStats, error)
}

type CallSessionRepository interface {
	Create(ctx context.Context, session *model.CallSession) error
	// GetByCallID 未找到返回 nil, nil
	GetByCallID(ctx context.Context, callID string) (*model.CallSession, error)
	// Delete 返回是否真的删除了记录
	Delete(ctx context.Context, callID string) (bool, error)
	CountByAccount(ctx context.Context) (map[int64]int64, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.CallSession, error)
}

type CampaignRepository interface {
	Create(ctx context.Context, state *model.CampaignAniState) error
	UpdateConfig(ctx context.Context, state *model.CampaignAniState) error
	GetByCampaignID(ctx context.Context, campaignID int64) (*model.CampaignAniState, error)
	// GetByCampaignIDForUpdate 只能在 Transaction 内使用
	GetByCampaignIDForUpdate(ctx context.Context, campaignID int64) (*model.CampaignAniState, error)
	UpdateCounter(ctx context.Context, campaignID int64, fromCounter, toCounter int) error
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
	GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
}
