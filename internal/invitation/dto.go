package invitation

import (
	"time"

	"github.com/frahmantamala/tenant-auth/internal/core/common/validation"
	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
)

type CreateInvitationDTO struct {
	Email     string     `json:"email"`
	RoleID    int64      `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Token is only set by trusted callers such as the seeder; HTTP input never carries it.
	Token string `json:"-"`
}

func (d CreateInvitationDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(254)
	v.Field("role_id", d.RoleID).Required().Positive()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type AcceptInvitationDTO struct {
	Token string `json:"token"`
}

func (d AcceptInvitationDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("token", d.Token).Required().MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// InvitationResponse deliberately has no token field.
type InvitationResponse struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Email      string    `json:"email"`
	RoleID     int64     `json:"role_id"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
	InvitedBy  int64     `json:"invited_by"`
	AcceptedBy *int64    `json:"accepted_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func ToInvitationResponse(inv *invitationDatamodel.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:         inv.ID,
		CompanyID:  inv.CompanyID,
		Email:      inv.Email,
		RoleID:     inv.RoleID,
		Status:     string(inv.Status),
		ExpiresAt:  inv.ExpiresAt,
		InvitedBy:  inv.InvitedBy,
		AcceptedBy: inv.AcceptedBy,
		CreatedAt:  inv.CreatedAt,
	}
}

type AcceptInvitationResponse struct {
	UserCompanyID     int64 `json:"user_company_id"`
	CompanyID         int64 `json:"company_id"`
	UserCompanyRoleID int64 `json:"user_company_role_id"`
	RoleID            int64 `json:"role_id"`
}
