package tenancy

import (
	"strings"

	"github.com/frahmantamala/tenant-auth/internal"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
)

// AdminRoleName is matched case-insensitively everywhere.
const AdminRoleName = "admin"

var (
	ErrCompanyNotFound    = internal.NewNotFoundError("Company not found", internal.ErrCodeCompanyNotFound)
	ErrCompanyNameTaken   = internal.NewConflictError("A company with this name already exists", internal.ErrCodeCompanyNameTaken)
	ErrInvalidParent      = internal.NewValidationError("A company cannot be its own ancestor", internal.ErrCodeInvalidParent)
	ErrInvalidTransition  = internal.NewValidationError("Company status transition is not allowed", internal.ErrCodeInvalidStatus)
	ErrRoleNotFound       = internal.NewNotFoundError("Role not found", internal.ErrCodeRoleNotFound)
	ErrRoleExists         = internal.NewConflictError("A role with this name already exists", internal.ErrCodeRoleExists)
	ErrSystemRole         = internal.NewValidationError("System roles cannot be deleted", internal.ErrCodeSystemRole)
	ErrRoleOutsideCompany = internal.NewValidationError("role does not belong to company", internal.ErrCodeRoleOutsideCompany)
	ErrPermissionNotFound = internal.NewNotFoundError("Permission not found", internal.ErrCodePermissionNotFound)
	ErrPermissionExists   = internal.NewConflictError("A permission with this code already exists", internal.ErrCodePermissionExists)
	ErrMembershipNotFound = internal.NewNotFoundError("Company membership not found", internal.ErrCodeMembershipNotFound)
	ErrAssignmentNotFound = internal.NewNotFoundError("Role assignment not found", internal.ErrCodeAssignmentNotFound)
)

// NameKey is the case-insensitive uniqueness key for company names.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RoleBelongsTo reports whether role may be granted inside companyID.
// System roles belong to every company.
func RoleBelongsTo(role *tenancyDatamodel.Role, companyID int64) bool {
	return role.CompanyID == nil || *role.CompanyID == companyID
}

func IsAdminRole(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), AdminRoleName)
}

// allowedTransitions is the company status state machine.
var allowedTransitions = map[tenancyDatamodel.CompanyStatus][]tenancyDatamodel.CompanyStatus{
	tenancyDatamodel.CompanyStatusActive:      {tenancyDatamodel.CompanyStatusDeactivated},
	tenancyDatamodel.CompanyStatusDeactivated: {tenancyDatamodel.CompanyStatusActive, tenancyDatamodel.CompanyStatusDeleted},
}

func CanTransition(from, to tenancyDatamodel.CompanyStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
