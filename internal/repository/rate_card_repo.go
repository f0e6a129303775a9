package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"gorm.io/gorm"
)

type rateCardRepo struct {
	db *gorm.DB
}

func NewRateCardRepository(db *gorm.DB) RateCardRepository {
	return &rateCardRepo{db: db}
}

func (r *rateCardRepo) Create(ctx context.Context, card *model.RateCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *rateCardRepo) GetByID(ctx context.Context, id int64) (*model.RateCard, error) {
	var card model.RateCard
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func (r *rateCardRepo) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanRateCardTransitionTo(fromStatus, toStatus) {
		return ErrRateCardStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.RateCard{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrRateCardStatusInvalid
	}

	return nil
}

func (r *rateCardRepo) List(ctx context.Context) ([]*model.RateCard, error) {
	var cards []*model.RateCard
	err := r.db.WithContext(ctx).Order("id ASC").Find(&cards).Error
	return cards, err
}
