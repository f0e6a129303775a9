package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CallStatusAnswered = "ANSWERED"
	CallStatusFailed   = "FAILED"
	CallStatusBusy     = "BUSY"
	CallStatusNoAnswer = "NO_ANSWER"
)

func IsValidCallStatus(s string) bool {
	switch s {
	case CallStatusAnswered, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer:
		return true
	}
	return false
}

// CallRecord 话单（CDR）
// 每次通话结束生成一条，之后不再修改；RateID 记录命中的费率用于审计回放
type CallRecord struct {
	ID                      int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CallID                  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"call_id"` // 幂等键
	AccountID               int64           `gorm:"index:idx_account_started,priority:1;not null" json:"account_id"`
	DestinationNumber       string          `gorm:"type:varchar(32);not null" json:"destination_number"`
	RawDurationSeconds      int64           `gorm:"not null" json:"raw_duration_seconds"`
	RateCardID              int64           `gorm:"not null" json:"rate_card_id"`
	RateID                  int64           `gorm:"not null" json:"rate_id"`
	DestinationCode         string          `gorm:"type:varchar(16);not null" json:"destination_code"`
	BillableDurationSeconds int64           `gorm:"not null" json:"billable_duration_seconds"`
	CostAmount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_amount"`
	SellAmount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"sell_amount"`
	Currency                string          `gorm:"type:char(3);not null" json:"currency"`
	Status                  string          `gorm:"type:varchar(20);not null" json:"status"`
	TransactionNo           string          `gorm:"type:varchar(64)" json:"transaction_no,omitempty"` // 扣费流水号，零费用为空
	StartedAt               time.Time       `gorm:"index:idx_account_started,priority:2;not null" json:"started_at"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (CallRecord) TableName() string {
	return "call_record"
}

// CallStats 话单统计
type CallStats struct {
	TotalCalls      int64           `json:"total_calls"`
	AnsweredCalls   int64           `json:"answered_calls"`
	BillableSeconds int64           `json:"billable_seconds"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
}
