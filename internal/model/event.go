package model

import "time"

// 拨号/信令侧上报的呼叫事件类型
const (
	CallEventStarting   = "CALL_STARTING"
	CallEventEnded      = "CALL_ENDED"
	CallEventTerminated = "CALL_TERMINATED"
)

// CallEvent 呼叫事件（Kafka 消息体 / HTTP 请求体）
type CallEvent struct {
	Type               string    `json:"type"`
	CallID             string    `json:"call_id"`
	AccountID          int64     `json:"account_id"`
	DialedNumber       string    `json:"dialed_number,omitempty"`
	RawDurationSeconds int64     `json:"raw_duration_seconds,omitempty"`
	RateCardID         int64     `json:"rate_card_id,omitempty"`
	Status             string    `json:"status,omitempty"`
	StartedAt          time.Time `json:"started_at,omitempty"`
}
