package repository

import (
	"context"
	"errors"
	"time"

	"voipbilling/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type callRecordRepo struct {
	db *gorm.DB
}

func NewCallRecordRepository(db *gorm.DB) CallRecordRepository {
	return &callRecordRepo{db: db}
}

func (r *callRecordRepo) Create(ctx context.Context, record *model.CallRecord) error {
	return translateCreateErr(r.db.WithContext(ctx).Create(record).Error)
}

func (r *callRecordRepo) GetByCallID(ctx context.Context, callID string) (*model.CallRecord, error) {
	var record model.CallRecord
	err := r.db.WithContext(ctx).Where("call_id = ?", callID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *callRecordRepo) ListRecent(ctx context.Context, accountID int64, since *time.Time, limit int) ([]*model.CallRecord, error) {
	var records []*model.CallRecord
	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if since != nil {
		query = query.Where("started_at >= ?", *since)
	}
	err := query.
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *callRecordRepo) Stats(ctx context.Context, accountID int64, since *time.Time) (*model.CallStats, error) {
	var row struct {
		TotalCalls      int64
		AnsweredCalls   int64
		BillableSeconds int64
		TotalSpent      decimal.Decimal
	}

	query := r.db.WithContext(ctx).Model(&model.CallRecord{}).Where("account_id = ?", accountID)
	if since != nil {
		query = query.Where("started_at >= ?", *since)
	}

	err := query.Select(
		"COUNT(*) AS total_calls, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS answered_calls, "+
			"COALESCE(SUM(billable_duration_seconds), 0) AS billable_seconds, "+
			"COALESCE(SUM(sell_amount), 0) AS total_spent",
		model.CallStatusAnswered,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &model.CallStats{
		TotalCalls:      row.TotalCalls,
		AnsweredCalls:   row.AnsweredCalls,
		BillableSeconds: row.BillableSeconds,
		TotalSpent:      row.TotalSpent,
	}, nil
}
