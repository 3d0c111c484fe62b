package twofactor

import "time"

type BackupCode struct {
	ID        int64      `gorm:"primaryKey"`
	UserID    int64      `gorm:"column:user_id;not null;index"`
	CodeHash  string     `gorm:"column:code_hash;not null;index"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (BackupCode) TableName() string {
	return "two_factor_backup_codes"
}

// Session is the short-lived login challenge issued after a correct password for 2FA users.
type Session struct {
	ID         int64     `gorm:"primaryKey"`
	SessionID  string    `gorm:"column:session_id;type:varchar(36);not null;uniqueIndex"`
	UserID     int64     `gorm:"column:user_id;not null;index"`
	IsVerified bool      `gorm:"column:is_verified;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index"`
}

func (Session) TableName() string {
	return "two_factor_sessions"
}
