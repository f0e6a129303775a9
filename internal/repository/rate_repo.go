package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"gorm.io/gorm"
)

type rateRepo struct {
	db *gorm.DB
}

func NewRateRepository(db *gorm.DB) RateRepository {
	return &rateRepo{db: db}
}

func (r *rateRepo) Create(ctx context.Context, rate *model.Rate) error {
	return r.db.WithContext(ctx).Omit("Destination").Create(rate).Error
}

func (r *rateRepo) GetByID(ctx context.Context, id int64) (*model.Rate, error) {
	var rate model.Rate
	err := r.db.WithContext(ctx).Preload("Destination").Where("id = ?", id).First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateNotFound
		}
		return nil, err
	}
	return &rate, nil
}

func (r *rateRepo) ListByCard(ctx context.Context, rateCardID int64) ([]*model.Rate, error) {
	var rates []*model.Rate
	err := r.db.WithContext(ctx).
		Preload("Destination").
		Where("rate_card_id = ?", rateCardID).
		Order("id ASC").
		Find(&rates).Error
	return rates, err
}

func (r *rateRepo) ListByCardAndDestination(ctx context.Context, rateCardID, destinationID int64) ([]*model.Rate, error) {
	var rates []*model.Rate
	err := r.db.WithContext(ctx).
		Where("rate_card_id = ? AND destination_id = ?", rateCardID, destinationID).
		Order("id ASC").
		Find(&rates).Error
	return rates, err
}

func (r *rateRepo) FindByCodes(ctx context.Context, rateCardID int64, codes []string) ([]*model.Rate, error) {
	var rates []*model.Rate
	if len(codes) == 0 {
		return rates, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Destination").
		Joins("JOIN destination ON destination.id = rate.destination_id").
		Where("rate.rate_card_id = ? AND destination.code IN ?", rateCardID, codes).
		Order("rate.id ASC").
		Find(&rates).Error
	return rates, err
}

func (r *rateRepo) CountByDestination(ctx context.Context, destinationID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Rate{}).
		Where("destination_id = ?", destinationID).
		Count(&count).Error
	return count, err
}
