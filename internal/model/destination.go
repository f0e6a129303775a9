package model

import "time"

// Destination 号码前缀目的地
type Destination struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"` // 纯数字前缀
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Country   string    `gorm:"type:varchar(64)" json:"country"`
	Region    string    `gorm:"type:varchar(64)" json:"region"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Destination) TableName() string {
	return "destination"
}
