package repository

import (
	"context"
	"errors"
	"time"

	"voipbilling/internal/model"

	"gorm.io/gorm"
)

type callSessionRepo struct {
	db *gorm.DB
}

func NewCallSessionRepository(db *gorm.DB) CallSessionRepository {
	return &callSessionRepo{db: db}
}

func (r *callSessionRepo) Create(ctx context.Context, session *model.CallSession) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(session).Error)
}

func (r *callSessionRepo) GetByCallID(ctx context.Context, callID string) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.WithContext(ctx).Where("call_id = ?", callID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *callSessionRepo) Delete(ctx context.Context, callID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("call_id = ?", callID).Delete(&model.CallSession{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *callSessionRepo) CountByAccount(ctx context.Context) (map[int64]int64, error) {
	var rows []struct {
		AccountID int64
		Cnt       int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.CallSession{}).
		Select("account_id, COUNT(*) AS cnt").
		Group("account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.AccountID] = row.Cnt
	}
	return counts, nil
}

func (r *callSessionRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.CallSession, error) {
	var sessions []*model.CallSession
	err := r.db.WithContext(ctx).
		Where("admitted_at < ?", before).
		Order("admitted_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
