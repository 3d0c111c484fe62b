package tenancy

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type SystemRole struct {
	Name        string
	Description string
	Permissions []string
}

// Catalog is the reference data every deployment starts with.
type Catalog struct {
	Permissions []CreatePermissionDTO
	Roles       []SystemRole
}

func DefaultCatalog() Catalog {
	return Catalog{
		Permissions: []CreatePermissionDTO{
			{Code: "company.view", Module: "tenancy", Description: "View company details"},
			{Code: "company.manage", Module: "tenancy", Description: "Change company status and hierarchy"},
			{Code: "role.manage", Module: "tenancy", Description: "Create roles and edit their permissions"},
			{Code: "member.view", Module: "tenancy", Description: "List company members"},
			{Code: "member.manage", Module: "tenancy", Description: "Add and remove members and their roles"},
			{Code: "invitation.manage", Module: "invitation", Description: "Invite, resend and revoke invitations"},
			{Code: "activity.view", Module: "activity", Description: "Read the company activity log"},
		},
		Roles: []SystemRole{
			{Name: "member", Description: "Default member", Permissions: []string{"company.view"}},
			{Name: "manager", Description: "Manages people", Permissions: []string{"company.view", "member.view", "member.manage", "invitation.manage"}},
			{Name: "auditor", Description: "Read-only access to activity", Permissions: []string{"company.view", "member.view", "activity.view"}},
		},
	}
}

type SeedResult struct {
	PermissionsCreated int
	RolesCreated       int
	Grants             int
}

// SeedCatalog creates missing permissions and system roles and grants the listed permissions.
// Running it twice changes nothing.
func (s *Service) SeedCatalog(ctx context.Context, catalog Catalog) (*SeedResult, error) {
	result := &SeedResult{}
	byCode := make(map[string]int64, len(catalog.Permissions))

	for _, dto := range catalog.Permissions {
		permission, err := s.repo.GetPermissionByCode(ctx, dto.Code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			permission, err = s.CreatePermission(ctx, dto)
			if err == nil {
				result.PermissionsCreated++
			}
		}
		if err != nil {
			return nil, err
		}
		byCode[permission.Code] = permission.ID
	}

	for _, sr := range catalog.Roles {
		role, err := s.repo.FindRoleByName(ctx, nil, sr.Name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			role, err = s.CreateRole(ctx, nil, CreateRoleDTO{Name: sr.Name, Description: sr.Description})
			if err == nil {
				result.RolesCreated++
			}
		}
		if err != nil {
			return nil, err
		}

		for _, code := range sr.Permissions {
			permissionID, ok := byCode[code]
			if !ok {
				permission, err := s.repo.GetPermissionByCode(ctx, code)
				if err != nil {
					return nil, s.systemOr(mapNotFound(err, ErrPermissionNotFound), "failed to load permission", "code", code)
				}
				permissionID = permission.ID
			}
			if _, err := s.repo.UpsertRolePermission(ctx, role.ID, permissionID, true); err != nil {
				return nil, s.systemOr(err, "failed to grant permission", "role_id", role.ID, "code", code)
			}
			result.Grants++
		}
	}

	s.logger.Info("catalog seeded",
		"permissions_created", result.PermissionsCreated,
		"roles_created", result.RolesCreated,
		"grants", result.Grants)
	return result, nil
}
