package otp

import "time"

// OTP holds the single live code for a phone number.
type OTP struct {
	ID           int64      `gorm:"primaryKey"`
	PhoneNumber  string     `gorm:"column:phone_number;not null;uniqueIndex"`
	Code         string     `gorm:"column:code;type:varchar(6);not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index"`
	Attempts     int        `gorm:"column:attempts;not null;default:0"`
	IsBlocked    bool       `gorm:"column:is_blocked;not null;default:false"`
	BlockedUntil *time.Time `gorm:"column:blocked_until"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (OTP) TableName() string {
	return "otps"
}
