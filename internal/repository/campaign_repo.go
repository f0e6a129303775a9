package repository

import (
	"context"
	"errors"

	"voipbilling/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type campaignRepo struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) Create(ctx context.Context, state *model.CampaignAniState) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(state).Error)
}

// UpdateConfig 不修改轮换计数
func (r *campaignRepo) UpdateConfig(ctx context.Context, state *model.CampaignAniState) error {
	result := r.db.WithContext(ctx).
		Model(&model.CampaignAniState{}).
		Where("campaign_id = ?", state.CampaignID).
		Updates(map[string]interface{}{
			"rotation_enabled": state.RotationEnabled,
			"static_caller_id": state.StaticCallerID,
			"caller_id_prefix": state.CallerIDPrefix,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByCampaignID(ctx, state.CampaignID); err != nil {
			return err
		}
	}
	return nil
}

func (r *campaignRepo) GetByCampaignID(ctx context.Context, campaignID int64) (*model.CampaignAniState, error) {
	var state model.CampaignAniState
	err := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &state, nil
}

func (r *campaignRepo) GetByCampaignIDForUpdate(ctx context.Context, campaignID int64) (*model.CampaignAniState, error) {
	var state model.CampaignAniState
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ?", campaignID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &state, nil
}

// UpdateCounter 以旧计数做 CAS，防止并发外呼复用同一后缀
func (r *campaignRepo) UpdateCounter(ctx context.Context, campaignID int64, fromCounter, toCounter int) error {
	result := r.db.WithContext(ctx).
		Model(&model.CampaignAniState{}).
		Where("campaign_id = ? AND rotation_counter = ?", campaignID, fromCounter).
		Update("rotation_counter", toCounter)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
