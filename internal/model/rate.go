package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RateCardStatusDraft    = "DRAFT"
	RateCardStatusActive   = "ACTIVE"
	RateCardStatusInactive = "INACTIVE"
)

var ValidRateCardTransitions = map[string][]string{
	RateCardStatusDraft:    {RateCardStatusActive},
	RateCardStatusActive:   {RateCardStatusInactive},
	RateCardStatusInactive: {RateCardStatusActive},
}

func CanRateCardTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRateCardTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// 费率价格单位，在费率卡层面固定，计费时不做推断
const (
	PriceUnitPerMinute = "PER_MINUTE"
	PriceUnitPerSecond = "PER_SECOND"
)

// RateCard 费率卡
type RateCard struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Currency  string    `gorm:"type:char(3);not null" json:"currency"`
	Status    string    `gorm:"type:varchar(20);index;not null" json:"status"`
	PriceUnit string    `gorm:"type:varchar(20);not null;default:PER_MINUTE" json:"price_unit"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RateCard) TableName() string {
	return "rate_card"
}

// Rate 费率行
// 同一费率卡、同一目的地的生效区间 [EffectiveFrom, EffectiveTo) 不允许重叠
type Rate struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RateCardID       int64           `gorm:"index:idx_card_dest;not null" json:"rate_card_id"`
	DestinationID    int64           `gorm:"index:idx_card_dest;not null" json:"destination_id"`
	Destination      *Destination    `gorm:"foreignKey:DestinationID" json:"destination,omitempty"`
	CostPrice        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_price"`
	SellPrice        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"sell_price"`
	BillingIncrement int             `gorm:"not null;default:60" json:"billing_increment"` // 秒，> 0
	MinimumDuration  int             `gorm:"not null;default:0" json:"minimum_duration"`   // 秒，>= 0
	EffectiveFrom    *time.Time      `json:"effective_from"`                               // 为空表示不限
	EffectiveTo      *time.Time      `json:"effective_to"`                                 // 为空表示不限，不含
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Rate) TableName() string {
	return "rate"
}

// ActiveAt 生效区间是否包含 at
func (r *Rate) ActiveAt(at time.Time) bool {
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// Overlaps 两个半开区间是否相交，nil 视为无穷
func (r *Rate) Overlaps(o *Rate) bool {
	// r.from < o.to && o.from < r.to
	if r.EffectiveFrom != nil && o.EffectiveTo != nil && !r.EffectiveFrom.Before(*o.EffectiveTo) {
		return false
	}
	if o.EffectiveFrom != nil && r.EffectiveTo != nil && !o.EffectiveFrom.Before(*r.EffectiveTo) {
		return false
	}
	return true
}
