package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeCredit     = "CREDIT"     // 充值入账
	TransactionTypeDebit      = "DEBIT"      // 通话扣费
	TransactionTypeAdjustment = "ADJUSTMENT" // 人工调账（可正可负）
	TransactionTypeRefund     = "REFUND"     // 退款
)

// ============================================================================
// 账户流水实体
// ============================================================================

// AccountTransaction 账户流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除，更正只能追加 ADJUSTMENT / REFUND
// 2. (account_id, type, reference) 唯一，reference 即幂等键（扣费时为 CallID）
// 3. BalanceAfter = BalanceBefore + Sign * Amount，按 ID 顺序回放可得到当前余额
type AccountTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     int64           `gorm:"uniqueIndex:uk_account_type_ref,priority:1;index;not null" json:"account_id"`
	Type          string          `gorm:"type:varchar(20);uniqueIndex:uk_account_type_ref,priority:2;not null" json:"type"`
	Reference     string          `gorm:"type:varchar(128);uniqueIndex:uk_account_type_ref,priority:3;not null" json:"reference"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"` // 金额绝对值，恒为正
	Sign          int             `gorm:"type:tinyint;not null" json:"sign"`          // +1 入账，-1 出账
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccountTransaction) TableName() string {
	return "account_transaction"
}

// SignedAmount 带符号的余额变动
func (t *AccountTransaction) SignedAmount() decimal.Decimal {
	if t.Sign < 0 {
		return t.Amount.Neg()
	}
	return t.Amount
}

// SignOf 固定方向的交易类型，ADJUSTMENT 的方向由金额决定，返回 0
func SignOf(txType string) int {
	switch txType {
	case TransactionTypeCredit, TransactionTypeRefund:
		return 1
	case TransactionTypeDebit:
		return -1
	default:
		return 0
	}
}
