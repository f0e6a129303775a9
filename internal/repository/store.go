package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GormStore 基于 MySQL 的存储实现
type GormStore struct {
	db *gorm.DB
	*gormRepositories
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:               db,
		gormRepositories: newGormRepositories(db),
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormRepositories(tx))
	})
}

type gormRepositories struct {
	destinations DestinationRepository
	rateCards    RateCardRepository
	rates        RateRepository
	accounts     AccountRepository
	transactions TransactionRepository
	callRecords  CallRecordRepository
	callSessions CallSessionRepository
	campaigns    CampaignRepository
	outbox       OutboxRepository
}

func newGormRepositories(db *gorm.DB) *gormRepositories {
	return &gormRepositories{
		destinations: NewDestinationRepository(db),
		rateCards:    NewRateCardRepository(db),
		rates:        NewRateRepository(db),
		accounts:     NewAccountRepository(db),
		transactions: NewTransactionRepository(db),
		callRecords:  NewCallRecordRepository(db),
		callSessions: NewCallSessionRepository(db),
		campaigns:    NewCampaignRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

func (r *gormRepositories) Destinations() DestinationRepository { return r.destinations }
func (r *gormRepositories) RateCards() RateCardRepository       { return r.rateCards }
func (r *gormRepositories) Rates() RateRepository               { return r.rates }
func (r *gormRepositories) Accounts() AccountRepository         { return r.accounts }
func (r *gormRepositories) Transactions() TransactionRepository { return r.transactions }
func (r *gormRepositories) CallRecords() CallRecordRepository   { return r.callRecords }
func (r *gormRepositories) CallSessions() CallSessionRepository { return r.callSessions }
func (r *gormRepositories) Campaigns() CampaignRepository       { return r.campaigns }
func (r *gormRepositories) Outbox() OutboxRepository            { return r.outbox }

// translateCreateErr 唯一键冲突统一转换为 ErrDuplicate（依赖 gorm.Config.TranslateError）
func translateCreateErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
