package invitation

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// Invitation rows are never soft deleted; status carries the whole lifecycle.
type Invitation struct {
	ID         int64     `gorm:"primaryKey"`
	CompanyID  int64     `gorm:"column:company_id;not null;uniqueIndex:idx_invitations_pending,where:status = 'pending'"`
	Email      string    `gorm:"column:email;not null;index;uniqueIndex:idx_invitations_pending,where:status = 'pending'"`
	RoleID     int64     `gorm:"column:role_id;not null"`
	Token      string    `gorm:"column:token;not null;uniqueIndex"`
	Status     Status    `gorm:"column:status;type:varchar(20);not null;default:pending;index"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	InvitedBy  int64     `gorm:"column:invited_by;not null"`
	AcceptedBy *int64    `gorm:"column:accepted_by"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
