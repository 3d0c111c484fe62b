package auth

import (
	"time"

	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
)

// UserResponse is the public view of an account. It never carries secrets.
type UserResponse struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	FullName         string    `json:"full_name"`
	PhoneVerified    bool      `json:"phone_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

func ToUserResponse(u *userDatamodel.User) UserResponse {
	resp := UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		FullName:         u.FullName,
		PhoneVerified:    u.PhoneVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
	if u.Email != nil {
		resp.Email = *u.Email
	}
	if u.Phone != nil {
		resp.Phone = *u.Phone
	}
	return resp
}

// lockRemaining reports how long an active lock still has to run.
func lockRemaining(u *userDatamodel.User, now time.Time) (time.Duration, bool) {
	if u.LockedUntil == nil || !now.Before(*u.LockedUntil) {
		return 0, false
	}
	return u.LockedUntil.Sub(now), true
}
