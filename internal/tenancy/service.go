package tenancy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	"gorm.io/gorm"
)

// RepositoryAPI reads only live rows: soft-deleted companies, roles and links
// are invisible unless a method says otherwise.
type RepositoryAPI interface {
	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error

	CreateCompany(ctx context.Context, company *tenancyDatamodel.Company) error
	GetCompany(ctx context.Context, id int64) (*tenancyDatamodel.Company, error)
	UpdateCompanyParent(ctx context.Context, id int64, parentID *int64) error
	UpdateCompanyStatus(ctx context.Context, id int64, from, to tenancyDatamodel.CompanyStatus) (bool, error)
	SoftDeleteCompany(ctx context.Context, id int64) error

	CreateRole(ctx context.Context, role *tenancyDatamodel.Role) error
	GetRole(ctx context.Context, id int64) (*tenancyDatamodel.Role, error)
	FindRoleByName(ctx context.Context, companyID *int64, name string) (*tenancyDatamodel.Role, error)
	ListRoles(ctx context.Context, companyID int64) ([]*tenancyDatamodel.Role, error)
	SoftDeleteRole(ctx context.Context, id int64) error

	CreatePermission(ctx context.Context, permission *tenancyDatamodel.Permission) error
	GetPermission(ctx context.Context, id int64) (*tenancyDatamodel.Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (*tenancyDatamodel.Permission, error)
	UpsertRolePermission(ctx context.Context, roleID, permissionID int64, granted bool) (*tenancyDatamodel.RolePermission, error)
	SoftDeleteRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]*tenancyDatamodel.RolePermission, error)

	UpsertUserCompany(ctx context.Context, userID, companyID int64, isPrimary bool) (*tenancyDatamodel.UserCompany, error)
	GetUserCompany(ctx context.Context, id int64) (*tenancyDatamodel.UserCompany, error)
	SoftDeleteUserCompany(ctx context.Context, id int64) error
	ListUserCompaniesForUser(ctx context.Context, userID int64) ([]*tenancyDatamodel.UserCompany, error)
	ListUserCompaniesForCompany(ctx context.Context, companyID int64) ([]*tenancyDatamodel.UserCompany, error)

	UpsertUserCompanyRole(ctx context.Context, userCompanyID, roleID int64) (*tenancyDatamodel.UserCompanyRole, error)
	GetUserCompanyRole(ctx context.Context, id int64) (*tenancyDatamodel.UserCompanyRole, error)
	SoftDeleteUserCompanyRole(ctx context.Context, id int64) error
}

// AdminChecker is the slice of the authorization resolver tenancy needs for scoped listings.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID, companyID int64) bool
}

type Service struct {
	repo     RepositoryAPI
	admins   AdminChecker
	recorder activity.Recorder
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, admins AdminChecker, recorder activity.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		admins:   admins,
		recorder: recorder,
		logger:   logger,
	}
}

// CreateCompany creates the company, its own admin role and makes the creator that admin.
// A parent must be a company the creator administers; any other parent reads as not found.
func (s *Service) CreateCompany(ctx context.Context, dto CreateCompanyDTO, createdBy int64) (*tenancyDatamodel.Company, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	company := &tenancyDatamodel.Company{
		Name:            dto.Name,
		NameKey:         NameKey(dto.Name),
		ParentCompanyID: dto.ParentCompanyID,
		Status:          tenancyDatamodel.CompanyStatusActive,
		CreatedBy:       &createdBy,
	}

	if dto.ParentCompanyID != nil && !s.isAdmin(ctx, createdBy, *dto.ParentCompanyID) {
		return nil, ErrCompanyNotFound
	}

	err := s.repo.WithTx(ctx, func(tx RepositoryAPI) error {
		if dto.ParentCompanyID != nil {
			if _, err := tx.GetCompany(ctx, *dto.ParentCompanyID); err != nil {
				return mapNotFound(err, ErrCompanyNotFound)
			}
		}
		if err := tx.CreateCompany(ctx, company); err != nil {
			return mapDuplicate(err, ErrCompanyNameTaken)
		}

		adminRole := &tenancyDatamodel.Role{
			CompanyID:   &company.ID,
			Name:        AdminRoleName,
			Description: "Company administrator",
		}
		if err := tx.CreateRole(ctx, adminRole); err != nil {
			return err
		}

		existing, err := tx.ListUserCompaniesForUser(ctx, createdBy)
		if err != nil {
			return err
		}
		// The creator's first company becomes their primary one.
		membership, err := tx.UpsertUserCompany(ctx, createdBy, company.ID, len(existing) == 0)
		if err != nil {
			return err
		}
		_, err = tx.UpsertUserCompanyRole(ctx, membership.ID, adminRole.ID)
		return err
	})
	if err != nil {
		return nil, s.systemOr(err, "failed to create company", "name", dto.Name)
	}

	s.record(ctx, createdBy, company.ID, activity.EventCompanyCreated, map[string]interface{}{"company_name": company.Name})
	s.logger.Info("company created", "company_id", company.ID, "created_by", createdBy)
	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, id int64) (*tenancyDatamodel.Company, error) {
	company, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return nil, s.systemOr(mapNotFound(err, ErrCompanyNotFound), "failed to load company", "company_id", id)
	}
	return company, nil
}

// SetParent re-parents a company. The actor must administer the new parent,
// and walking up from it must never reach the company itself.
func (s *Service) SetParent(ctx context.Context, actorID, companyID int64, parentID *int64) error {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return err
	}

	if parentID != nil {
		if !s.isAdmin(ctx, actorID, *parentID) {
			return ErrCompanyNotFound
		}
		visited := map[int64]bool{}
		cursor := parentID
		for cursor != nil {
			if *cursor == companyID || visited[*cursor] {
				return ErrInvalidParent
			}
			visited[*cursor] = true
			ancestor, err := s.GetCompany(ctx, *cursor)
			if err != nil {
				return err
			}
			cursor = ancestor.ParentCompanyID
		}
	}

	if err := s.repo.UpdateCompanyParent(ctx, companyID, parentID); err != nil {
		return s.systemOr(err, "failed to update company parent", "company_id", companyID)
	}
	return nil
}

func (s *Service) isAdmin(ctx context.Context, userID, companyID int64) bool {
	return s.admins != nil && s.admins.IsAdmin(ctx, userID, companyID)
}

func (s *Service) ChangeStatus(ctx context.Context, actorID, companyID int64, to tenancyDatamodel.CompanyStatus) error {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if !CanTransition(company.Status, to) {
		s.logger.Info("rejected company status transition", "company_id", companyID, "from", company.Status, "to", to)
		return ErrInvalidTransition
	}

	err = s.repo.WithTx(ctx, func(tx RepositoryAPI) error {
		updated, err := tx.UpdateCompanyStatus(ctx, companyID, company.Status, to)
		if err != nil {
			return err
		}
		if !updated {
			return ErrInvalidTransition
		}
		if to == tenancyDatamodel.CompanyStatusDeleted {
			return tx.SoftDeleteCompany(ctx, companyID)
		}
		return nil
	})
	if err != nil {
		return s.systemOr(err, "failed to change company status", "company_id", companyID)
	}

	s.record(ctx, actorID, companyID, activity.EventCompanyStatus, map[string]interface{}{"from": string(company.Status), "to": string(to)})
	return nil
}

// CreateRole creates a company role, or a system role when companyID is nil.
func (s *Service) CreateRole(ctx context.Context, companyID *int64, dto CreateRoleDTO) (*tenancyDatamodel.Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if companyID != nil {
		if _, err := s.GetCompany(ctx, *companyID); err != nil {
			return nil, err
		}
	}

	// NULL company ids never collide in a unique index, so system role names are checked here.
	existing, err := s.repo.FindRoleByName(ctx, companyID, dto.Name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.systemOr(err, "failed to look up role")
	}
	if existing != nil {
		return nil, ErrRoleExists
	}

	role := &tenancyDatamodel.Role{
		CompanyID:    companyID,
		Name:         dto.Name,
		Description:  dto.Description,
		IsSystemRole: companyID == nil,
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, s.systemOr(mapDuplicate(err, ErrRoleExists), "failed to create role", "name", dto.Name)
	}
	return role, nil
}

func (s *Service) GetRole(ctx context.Context, roleID int64) (*tenancyDatamodel.Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, s.systemOr(mapNotFound(err, ErrRoleNotFound), "failed to load role", "role_id", roleID)
	}
	return role, nil
}

// RoleInCompany loads a role owned by companyID. System roles and foreign roles read as not found.
func (s *Service) RoleInCompany(ctx context.Context, companyID, roleID int64) (*tenancyDatamodel.Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.CompanyID == nil || *role.CompanyID != companyID {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context, companyID int64) ([]*tenancyDatamodel.Role, error) {
	roles, err := s.repo.ListRoles(ctx, companyID)
	if err != nil {
		return nil, s.systemOr(err, "failed to list roles", "company_id", companyID)
	}
	return roles, nil
}

// DeleteRole soft deletes a company role. A role from another tenant reads as not found.
func (s *Service) DeleteRole(ctx context.Context, companyID, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole || role.CompanyID == nil {
		return ErrSystemRole
	}
	if *role.CompanyID != companyID {
		return ErrRoleNotFound
	}
	if err := s.repo.SoftDeleteRole(ctx, roleID); err != nil {
		return s.systemOr(err, "failed to delete role", "role_id", roleID)
	}
	return nil
}

func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*tenancyDatamodel.Permission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	permission := &tenancyDatamodel.Permission{
		Code:        dto.Code,
		Module:      dto.Module,
		Description: dto.Description,
	}
	if err := s.repo.CreatePermission(ctx, permission); err != nil {
		return nil, s.systemOr(mapDuplicate(err, ErrPermissionExists), "failed to create permission", "code", dto.Code)
	}
	return permission, nil
}

// GrantPermission creates or revives the single (role, permission) link.
func (s *Service) GrantPermission(ctx context.Context, actorID, roleID, permissionID int64, granted bool) (*tenancyDatamodel.RolePermission, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPermission(ctx, permissionID); err != nil {
		return nil, s.systemOr(mapNotFound(err, ErrPermissionNotFound), "failed to load permission", "permission_id", permissionID)
	}

	link, err := s.repo.UpsertRolePermission(ctx, roleID, permissionID, granted)
	if err != nil {
		return nil, s.systemOr(err, "failed to grant permission", "role_id", roleID, "permission_id", permissionID)
	}

	s.record(ctx, actorID, derefCompany(role.CompanyID), activity.EventPermissionGranted, map[string]interface{}{
		"role_id": roleID, "permission_id": permissionID, "granted": granted,
	})
	return link, nil
}

func (s *Service) RevokePermission(ctx context.Context, actorID, roleID, permissionID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	removed, err := s.repo.SoftDeleteRolePermission(ctx, roleID, permissionID)
	if err != nil {
		return s.systemOr(err, "failed to revoke permission", "role_id", roleID, "permission_id", permissionID)
	}
	if !removed {
		return ErrPermissionNotFound
	}

	s.record(ctx, actorID, derefCompany(role.CompanyID), activity.EventPermissionRevoked, map[string]interface{}{
		"role_id": roleID, "permission_id": permissionID,
	})
	return nil
}

func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]*tenancyDatamodel.RolePermission, error) {
	links, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, s.systemOr(err, "failed to list role permissions", "role_id", roleID)
	}
	return links, nil
}

// AssociateUser links a user to a live company, reactivating an old link when one exists.
func (s *Service) AssociateUser(ctx context.Context, userID, companyID int64, isPrimary bool) (*tenancyDatamodel.UserCompany, error) {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	membership, err := s.repo.UpsertUserCompany(ctx, userID, companyID, isPrimary)
	if err != nil {
		return nil, s.systemOr(err, "failed to associate user", "user_id", userID, "company_id", companyID)
	}
	return membership, nil
}

func (s *Service) RemoveUser(ctx context.Context, companyID, userCompanyID int64) error {
	membership, err := s.membershipIn(ctx, companyID, userCompanyID)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDeleteUserCompany(ctx, membership.ID); err != nil {
		return s.systemOr(err, "failed to remove user from company", "user_company_id", userCompanyID)
	}
	return nil
}

// AssignRole grants a role on a membership. Roles of another tenant are refused.
func (s *Service) AssignRole(ctx context.Context, actorID, companyID, userCompanyID, roleID int64) (*tenancyDatamodel.UserCompanyRole, error) {
	membership, err := s.membershipIn(ctx, companyID, userCompanyID)
	if err != nil {
		return nil, err
	}
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !RoleBelongsTo(role, membership.CompanyID) {
		s.logger.Warn("refused cross-tenant role assignment",
			"role_id", roleID, "company_id", membership.CompanyID, "actor_id", actorID)
		return nil, ErrRoleOutsideCompany
	}

	assignment, err := s.repo.UpsertUserCompanyRole(ctx, membership.ID, role.ID)
	if err != nil {
		return nil, s.systemOr(err, "failed to assign role", "user_company_id", userCompanyID, "role_id", roleID)
	}

	s.record(ctx, actorID, membership.CompanyID, activity.EventRoleGranted, map[string]interface{}{
		"target_user_id": membership.UserID, "role_id": role.ID, "role_name": role.Name,
	})
	return assignment, nil
}

func (s *Service) RemoveRole(ctx context.Context, actorID, companyID, userCompanyRoleID int64) error {
	assignment, err := s.repo.GetUserCompanyRole(ctx, userCompanyRoleID)
	if err != nil {
		return s.systemOr(mapNotFound(err, ErrAssignmentNotFound), "failed to load role assignment", "user_company_role_id", userCompanyRoleID)
	}
	membership, err := s.membershipIn(ctx, companyID, assignment.UserCompanyID)
	if err != nil {
		return ErrAssignmentNotFound
	}
	if err := s.repo.SoftDeleteUserCompanyRole(ctx, assignment.ID); err != nil {
		return s.systemOr(err, "failed to remove role", "user_company_role_id", userCompanyRoleID)
	}

	s.record(ctx, actorID, membership.CompanyID, activity.EventRoleRevoked, map[string]interface{}{
		"target_user_id": membership.UserID, "role_id": assignment.RoleID,
	})
	return nil
}

// ListUserCompanies returns the caller's own memberships, or every membership of
// companyID when the caller is admin of that exact company. Admin rights in one
// company never widen visibility into another.
func (s *Service) ListUserCompanies(ctx context.Context, callerID int64, companyID *int64) ([]*tenancyDatamodel.UserCompany, error) {
	if companyID == nil {
		rows, err := s.repo.ListUserCompaniesForUser(ctx, callerID)
		if err != nil {
			return nil, s.systemOr(err, "failed to list memberships", "user_id", callerID)
		}
		return rows, nil
	}

	if !s.admins.IsAdmin(ctx, callerID, *companyID) {
		own, err := s.repo.ListUserCompaniesForUser(ctx, callerID)
		if err != nil {
			return nil, s.systemOr(err, "failed to list memberships", "user_id", callerID)
		}
		scoped := make([]*tenancyDatamodel.UserCompany, 0, 1)
		for _, m := range own {
			if m.CompanyID == *companyID {
				scoped = append(scoped, m)
			}
		}
		return scoped, nil
	}

	rows, err := s.repo.ListUserCompaniesForCompany(ctx, *companyID)
	if err != nil {
		return nil, s.systemOr(err, "failed to list company memberships", "company_id", *companyID)
	}
	return rows, nil
}

func (s *Service) membershipIn(ctx context.Context, companyID, userCompanyID int64) (*tenancyDatamodel.UserCompany, error) {
	membership, err := s.repo.GetUserCompany(ctx, userCompanyID)
	if err != nil {
		return nil, s.systemOr(mapNotFound(err, ErrMembershipNotFound), "failed to load membership", "user_company_id", userCompanyID)
	}
	if membership.CompanyID != companyID {
		return nil, ErrMembershipNotFound
	}
	return membership, nil
}

func (s *Service) record(ctx context.Context, userID, companyID int64, eventType activity.EventType, meta map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, activity.Entry{
		UserID:    userID,
		CompanyID: activity.CompanyRef(companyID),
		EventType: eventType,
		Metadata:  meta,
	})
	if err != nil {
		s.logger.Warn("failed to record activity", "event_type", eventType, "error", err)
	}
}

// systemOr passes typed errors through and wraps everything else as a logged internal error.
func (s *Service) systemOr(err error, msg string, args ...any) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}

func mapNotFound(err error, notFound *internal.AppError) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

func mapDuplicate(err error, conflict *internal.AppError) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflict
	}
	return err
}

func derefCompany(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
