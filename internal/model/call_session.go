package model

import "time"

// CallSession 已准入、尚未结束的在途呼叫
// 仅用于进程重启后重建并发计数，计数本身不落库
type CallSession struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CallID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"call_id"`
	AccountID  int64     `gorm:"index;not null" json:"account_id"`
	AdmittedAt time.Time `gorm:"index;not null" json:"admitted_at"`
}

func (CallSession) TableName() string {
	return "call_session"
}
