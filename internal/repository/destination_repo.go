package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"gorm.io/gorm"
)

type destinationRepo struct {
	db *gorm.DB
}

func NewDestinationRepository(db *gorm.DB) DestinationRepository {
	return &destinationRepo{db: db}
}

func (r *destinationRepo) Create(ctx context.Context, d *model.Destination) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(d).Error)
}

func (r *destinationRepo) Update(ctx context.Context, d *model.Destination) error {
	result := r.db.WithContext(ctx).
		Model(&model.Destination{}).
		Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"code":    d.Code,
			"name":    d.Name,
			"country": d.Country,
			"region":  d.Region,
		})
	if result.Error != nil {
		return translateCreateErr(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, d.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *destinationRepo) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Destination{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDestinationNotFound
	}
	return nil
}

func (r *destinationRepo) GetByID(ctx context.Context, id int64) (*model.Destination, error) {
	var d model.Destination
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDestinationNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *destinationRepo) GetByCode(ctx context.Context, code string) (*model.Destination, error) {
	var d model.Destination
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDestinationNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *destinationRepo) ListByCodes(ctx context.Context, codes []string) ([]*model.Destination, error) {
	var list []*model.Destination
	if len(codes) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&list).Error
	return list, err
}

func (r *destinationRepo) List(ctx context.Context) ([]*model.Destination, error) {
	var list []*model.Destination
	err := r.db.WithContext(ctx).Order("code ASC").Find(&list).Error
	return list, err
}
