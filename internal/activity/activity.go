package activity

import (
	"context"
	"time"
)

type EventType string

const (
	EventLogin               EventType = "login"
	EventInvitationCreated   EventType = "invitation.created"
	EventInvitationAccepted  EventType = "invitation.accepted"
	EventInvitationRevoked   EventType = "invitation.revoked"
	EventInvitationResent    EventType = "invitation.resent"
	EventRoleGranted         EventType = "role.granted"
	EventRoleRevoked         EventType = "role.revoked"
	EventPermissionGranted   EventType = "role_permission.granted"
	EventPermissionRevoked   EventType = "role_permission.revoked"
	EventCompanyCreated      EventType = "company.created"
	EventCompanyStatus       EventType = "company.status_changed"
	EventTwoFactorEnabled    EventType = "two_factor.enabled"
	EventTwoFactorDisabled   EventType = "two_factor.disabled"
	EventBackupCodeConsumed  EventType = "two_factor.backup_code_used"
	EventSignupCompleted     EventType = "signup.completed"
	EventRefreshTokenRevoked EventType = "token.revoked"
)

// Metadata keys understood by the login activity store.
const (
	MetaIPAddress = "ip_address"
	MetaUserAgent = "user_agent"
)

// Entry is a finalized security event. Metadata must never carry secrets.
type Entry struct {
	UserID     int64                  `json:"user_id"`
	CompanyID  *int64                 `json:"company_id,omitempty"`
	EventType  EventType              `json:"event_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type RecorderFunc func(ctx context.Context, entry Entry) error

func (f RecorderFunc) Record(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// CompanyRef is a small helper for call sites that have a plain company id.
func CompanyRef(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
