package tenancy

import (
	"time"

	"github.com/frahmantamala/tenant-auth/internal/core/common/validation"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
)

type CreateCompanyDTO struct {
	Name            string `json:"name"`
	ParentCompanyID *int64 `json:"parent_company_id,omitempty"`
}

func (d CreateCompanyDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ChangeStatusDTO struct {
	Status string `json:"status"`
}

func (d ChangeStatusDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("status", d.Status).Required().OneOf(
		string(tenancyDatamodel.CompanyStatusActive),
		string(tenancyDatamodel.CompanyStatusDeactivated),
		string(tenancyDatamodel.CompanyStatusDeleted),
	)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type SetParentDTO struct {
	ParentCompanyID *int64 `json:"parent_company_id"`
}

type CreateRoleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (d CreateRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreatePermissionDTO struct {
	Code        string `json:"code"`
	Module      string `json:"module"`
	Description string `json:"description"`
}

func (d CreatePermissionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("code", d.Code).Required().MaxLength(100)
	v.Field("module", d.Module).Required().MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type GrantPermissionDTO struct {
	PermissionID int64 `json:"permission_id"`
	Granted      *bool `json:"granted,omitempty"`
}

func (d GrantPermissionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("permission_id", d.PermissionID).Required().Positive()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type AssociateUserDTO struct {
	UserID    int64 `json:"user_id"`
	IsPrimary bool  `json:"is_primary_company"`
}

func (d AssociateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("user_id", d.UserID).Required().Positive()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type AssignRoleDTO struct {
	RoleID int64 `json:"role_id"`
}

func (d AssignRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("role_id", d.RoleID).Required().Positive()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CompanyResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	ParentCompanyID *int64    `json:"parent_company_id,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func ToCompanyResponse(c *tenancyDatamodel.Company) CompanyResponse {
	return CompanyResponse{
		ID:              c.ID,
		Name:            c.Name,
		ParentCompanyID: c.ParentCompanyID,
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt,
	}
}

type RoleResponse struct {
	ID           int64  `json:"id"`
	CompanyID    *int64 `json:"company_id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsSystemRole bool   `json:"is_system_role"`
}

func ToRoleResponse(r *tenancyDatamodel.Role) RoleResponse {
	return RoleResponse{
		ID:           r.ID,
		CompanyID:    r.CompanyID,
		Name:         r.Name,
		Description:  r.Description,
		IsSystemRole: r.IsSystemRole,
	}
}

type MembershipResponse struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	CompanyID        int64     `json:"company_id"`
	IsActive         bool      `json:"is_active"`
	IsPrimaryCompany bool      `json:"is_primary_company"`
	JoinedAt         time.Time `json:"joined_at"`
}

func ToMembershipResponse(m *tenancyDatamodel.UserCompany) MembershipResponse {
	return MembershipResponse{
		ID:               m.ID,
		UserID:           m.UserID,
		CompanyID:        m.CompanyID,
		IsActive:         m.IsActive,
		IsPrimaryCompany: m.IsPrimaryCompany,
		JoinedAt:         m.JoinedAt,
	}
}

type MembershipsResponse struct {
	Memberships []MembershipResponse `json:"memberships"`
}
