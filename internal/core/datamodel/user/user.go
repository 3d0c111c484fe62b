package user

import "time"

type TwoFactorType string

const (
	TwoFactorAuthenticator TwoFactorType = "AUTHENTICATOR"
	TwoFactorSMS           TwoFactorType = "SMS"
)

// User is the credential subject. Email and phone are optional until signup finishes.
type User struct {
	ID                  int64         `gorm:"primaryKey"`
	Username            string        `gorm:"column:username;not null;uniqueIndex"`
	Email               *string       `gorm:"column:email;uniqueIndex"`
	Phone               *string       `gorm:"column:phone;uniqueIndex"`
	FullName            string        `gorm:"column:full_name"`
	PasswordHash        string        `gorm:"column:password_hash"`
	IsActive            bool          `gorm:"column:is_active;not null;default:true"`
	PhoneVerified       bool          `gorm:"column:phone_verified;not null;default:false"`
	FailedLoginAttempts int           `gorm:"column:failed_login_attempts;not null;default:0"`
	LockedUntil         *time.Time    `gorm:"column:locked_until"`
	TwoFactorEnabled    bool          `gorm:"column:is_2fa_enabled;not null;default:false"`
	TwoFactorSecret     string        `gorm:"column:two_fa_secret"`
	TwoFactorType       TwoFactorType `gorm:"column:two_fa_type;type:varchar(20);not null;default:AUTHENTICATOR"`
	CreatedAt           time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
