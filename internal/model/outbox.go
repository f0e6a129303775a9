package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// NewOutboxMessage 构造待发送消息，payload 序列化为 JSON
func NewOutboxMessage(topic, key string, payload interface{}) (*OutboxMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(b),
		Status:     OutboxStatusPending,
	}, nil
}

// LedgerPostedEvent 流水入账事件
type LedgerPostedEvent struct {
	TransactionNo string          `json:"transaction_no"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Sign          int             `json:"sign"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Reference     string          `json:"reference"`
	PostedAt      string          `json:"posted_at"`
}

// 无法计费的原因
const (
	UnbilledReasonNoRateCard         = "NO_RATE_CARD"
	UnbilledReasonRateNotFound       = "RATE_NOT_FOUND"
	UnbilledReasonConfiguration      = "CONFIGURATION_ERROR"
	UnbilledReasonInsufficientCredit = "INSUFFICIENT_CREDIT"
	UnbilledReasonReferenceConflict  = "REFERENCE_CONFLICT"
)

// UnbilledCallEvent 无法计费的话单，投递到管理员处理队列
type UnbilledCallEvent struct {
	CallID       string `json:"call_id"`
	AccountID    int64  `json:"account_id"`
	DialedNumber string `json:"dialed_number"`
	RateCardID   int64  `json:"rate_card_id"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail"`
	OccurredAt   string `json:"occurred_at"`
}
