package token

import "time"

type BlacklistedToken struct {
	ID        int64     `gorm:"primaryKey"`
	JTI       string    `gorm:"column:jti;type:varchar(64);not null;uniqueIndex"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	TokenType string    `gorm:"column:token_type;type:varchar(16);not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
