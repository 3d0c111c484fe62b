package postgres

import (
	"context"
	"time"

	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenancyRepository relies on gorm.DeletedAt: every query built from r.db skips
// soft-deleted rows. Only the upserts touch deleted rows, to revive them.
type TenancyRepository struct {
	db *gorm.DB
}

func NewTenancyRepository(db *gorm.DB) tenancy.RepositoryAPI {
	return &TenancyRepository{db: db}
}

func (r *TenancyRepository) WithTx(ctx context.Context, fn func(repo tenancy.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TenancyRepository{db: tx})
	})
}

func (r *TenancyRepository) CreateCompany(ctx context.Context, company *tenancyDatamodel.Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *TenancyRepository) GetCompany(ctx context.Context, id int64) (*tenancyDatamodel.Company, error) {
	var company tenancyDatamodel.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *TenancyRepository) UpdateCompanyParent(ctx context.Context, id int64, parentID *int64) error {
	return r.db.WithContext(ctx).
		Model(&tenancyDatamodel.Company{}).
		Where("id = ?", id).
		Update("parent_company_id", parentID).Error
}

// UpdateCompanyStatus only moves the row when it is still in the expected state.
func (r *TenancyRepository) UpdateCompanyStatus(ctx context.Context, id int64, from, to tenancyDatamodel.CompanyStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&tenancyDatamodel.Company{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *TenancyRepository) SoftDeleteCompany(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&tenancyDatamodel.Company{}).Error
}

func (r *TenancyRepository) CreateRole(ctx context.Context, role *tenancyDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *TenancyRepository) GetRole(ctx context.Context, id int64) (*tenancyDatamodel.Role, error) {
	var role tenancyDatamodel.Role
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *TenancyRepository) FindRoleByName(ctx context.Context, companyID *int64, name string) (*tenancyDatamodel.Role, error) {
	var role tenancyDatamodel.Role
	q := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name)
	if companyID == nil {
		q = q.Where("company_id IS NULL")
	} else {
		q = q.Where("company_id = ?", *companyID)
	}
	if err := q.First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns the company's own roles plus the shared system roles.
func (r *TenancyRepository) ListRoles(ctx context.Context, companyID int64) ([]*tenancyDatamodel.Role, error) {
	var roles []*tenancyDatamodel.Role
	err := r.db.WithContext(ctx).
		Where("company_id = ? OR company_id IS NULL", companyID).
		Order("name ASC").
		Find(&roles).Error
	return roles, err
}

func (r *TenancyRepository) SoftDeleteRole(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&tenancyDatamodel.Role{}).Error
}

func (r *TenancyRepository) CreatePermission(ctx context.Context, permission *tenancyDatamodel.Permission) error {
	return r.db.WithContext(ctx).Create(permission).Error
}

func (r *TenancyRepository) GetPermission(ctx context.Context, id int64) (*tenancyDatamodel.Permission, error) {
	var permission tenancyDatamodel.Permission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&permission).Error; err != nil {
		return nil, err
	}
	return &permission, nil
}

func (r *TenancyRepository) GetPermissionByCode(ctx context.Context, code string) (*tenancyDatamodel.Permission, error) {
	var permission tenancyDatamodel.Permission
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&permission).Error; err != nil {
		return nil, err
	}
	return &permission, nil
}

// UpsertRolePermission inserts the link or revives the soft-deleted one in a single statement.
func (r *TenancyRepository) UpsertRolePermission(ctx context.Context, roleID, permissionID int64, granted bool) (*tenancyDatamodel.RolePermission, error) {
	row := &tenancyDatamodel.RolePermission{RoleID: roleID, PermissionID: permissionID, Granted: granted}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "role_id"}, {Name: "permission_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deleted_at": nil,
			"granted":    granted,
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	var out tenancyDatamodel.RolePermission
	if err := r.db.WithContext(ctx).Where("role_id = ? AND permission_id = ?", roleID, permissionID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TenancyRepository) SoftDeleteRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&tenancyDatamodel.RolePermission{})
	return res.RowsAffected > 0, res.Error
}

func (r *TenancyRepository) ListRolePermissions(ctx context.Context, roleID int64) ([]*tenancyDatamodel.RolePermission, error) {
	var links []*tenancyDatamodel.RolePermission
	err := r.db.WithContext(ctx).Where("role_id = ?", roleID).Order("permission_id ASC").Find(&links).Error
	return links, err
}

// UpsertUserCompany is keyed on the (user_id, company_id) unique index so concurrent
// callers converge on one row; an existing row is reactivated and undeleted.
func (r *TenancyRepository) UpsertUserCompany(ctx context.Context, userID, companyID int64, isPrimary bool) (*tenancyDatamodel.UserCompany, error) {
	row := &tenancyDatamodel.UserCompany{
		UserID:           userID,
		CompanyID:        companyID,
		IsActive:         true,
		IsPrimaryCompany: isPrimary,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "company_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deleted_at": nil,
			"is_active":  true,
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	var out tenancyDatamodel.UserCompany
	if err := r.db.WithContext(ctx).Where("user_id = ? AND company_id = ?", userID, companyID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TenancyRepository) GetUserCompany(ctx context.Context, id int64) (*tenancyDatamodel.UserCompany, error) {
	var membership tenancyDatamodel.UserCompany
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *TenancyRepository) SoftDeleteUserCompany(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&tenancyDatamodel.UserCompany{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&tenancyDatamodel.UserCompany{}).Error
	})
}

// ListUserCompaniesForUser returns active memberships in live companies.
func (r *TenancyRepository) ListUserCompaniesForUser(ctx context.Context, userID int64) ([]*tenancyDatamodel.UserCompany, error) {
	var rows []*tenancyDatamodel.UserCompany
	err := r.liveMemberships(ctx).
		Where("user_companies.user_id = ?", userID).
		Order("user_companies.company_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *TenancyRepository) ListUserCompaniesForCompany(ctx context.Context, companyID int64) ([]*tenancyDatamodel.UserCompany, error) {
	var rows []*tenancyDatamodel.UserCompany
	err := r.liveMemberships(ctx).
		Where("user_companies.company_id = ?", companyID).
		Order("user_companies.user_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *TenancyRepository) liveMemberships(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&tenancyDatamodel.UserCompany{}).
		Joins("JOIN companies ON companies.id = user_companies.company_id AND companies.deleted_at IS NULL").
		Where("user_companies.is_active = ?", true)
}

func (r *TenancyRepository) UpsertUserCompanyRole(ctx context.Context, userCompanyID, roleID int64) (*tenancyDatamodel.UserCompanyRole, error) {
	row := &tenancyDatamodel.UserCompanyRole{UserCompanyID: userCompanyID, RoleID: roleID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_company_id"}, {Name: "role_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deleted_at": nil,
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	var out tenancyDatamodel.UserCompanyRole
	if err := r.db.WithContext(ctx).Where("user_company_id = ? AND role_id = ?", userCompanyID, roleID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TenancyRepository) GetUserCompanyRole(ctx context.Context, id int64) (*tenancyDatamodel.UserCompanyRole, error) {
	var assignment tenancyDatamodel.UserCompanyRole
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *TenancyRepository) SoftDeleteUserCompanyRole(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&tenancyDatamodel.UserCompanyRole{}).Error
}
