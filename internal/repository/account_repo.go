package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRepo struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, account *model.Account) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(account).Error)
}

func (r *accountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateBalance 以版本号做 CAS，写入的是调用方在同一事务内算出的新余额
func (r *accountRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance": balance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// UpdateConfig 只更新管理端字段，不触碰余额
func (r *accountRepo) UpdateConfig(ctx context.Context, account *model.Account) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"credit_limit":         account.CreditLimit,
			"concurrent_calls_cap": account.ConcurrentCallsCap,
			"rate_card_id":         account.RateCardID,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 值未变化时 MySQL 也返回 0 行，需要区分账户不存在
		if _, err := r.GetByID(ctx, account.ID); err != nil {
			return err
		}
	}

	return nil
}

func (r *accountRepo) ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
