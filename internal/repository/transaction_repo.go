package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"gorm.io/gorm"
)

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, trans *model.AccountTransaction) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(trans).Error)
}

func (r *transactionRepo) GetByReference(ctx context.Context, accountID int64, txType, reference string) (*model.AccountTransaction, error) {
	var trans model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND reference = ?", accountID, txType, reference).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *transactionRepo) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	var transactions []*model.AccountTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AccountTransaction{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *transactionRepo) ListAfter(ctx context.Context, accountID, afterID int64, limit int) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id > ?", accountID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
