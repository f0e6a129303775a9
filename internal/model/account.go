package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 计费账户
// 余额只允许通过账本（LedgerService）变动，其余字段由管理端配置
type Account struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`       // 可为负（授信）
	CreditLimit        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"credit_limit"`  // 授信额度 >= 0
	ConcurrentCallsCap int             `gorm:"not null;default:1" json:"concurrent_calls_cap"`             // 并发呼叫上限 >= 1
	RateCardID         *int64          `gorm:"index" json:"rate_card_id"`                                  // 为空则无法计费
	Version            int             `gorm:"not null;default:0" json:"version"`                          // 乐观锁版本号
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// AvailableBalance 可用额度 = 余额 + 授信额度
func (a *Account) AvailableBalance() decimal.Decimal {
	return a.Balance.Add(a.CreditLimit)
}
