package activity

import (
	"time"

	"gorm.io/datatypes"
)

type LoginActivity struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(64)"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

func (LoginActivity) TableName() string {
	return "login_activities"
}

type ActivityLog struct {
	ID        int64             `gorm:"primaryKey"`
	UserID    int64             `gorm:"column:user_id;not null;index"`
	CompanyID *int64            `gorm:"column:company_id;index"`
	EventType string            `gorm:"column:event_type;type:varchar(64);not null;index"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt time.Time         `gorm:"column:created_at;not null"`
}
