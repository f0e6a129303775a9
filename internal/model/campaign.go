package model

import "time"

// AniRotationModulo 主叫号码后缀轮换池大小
const AniRotationModulo = 100

// CampaignAniState 外呼任务主叫号码（ANI）轮换状态
type CampaignAniState struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID      int64     `gorm:"uniqueIndex;not null" json:"campaign_id"`
	RotationEnabled bool      `gorm:"not null;default:false" json:"rotation_enabled"`
	StaticCallerID  string    `gorm:"type:varchar(32)" json:"static_caller_id"`
	CallerIDPrefix  string    `gorm:"type:varchar(28)" json:"caller_id_prefix"`
	RotationCounter int       `gorm:"not null;default:0" json:"rotation_counter"` // 0..99
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CampaignAniState) TableName() string {
	return "campaign_ani_state"
}
