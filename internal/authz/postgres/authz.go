package postgres

import (
	"context"

	"github.com/frahmantamala/tenant-auth/internal/authz"
	"github.com/jmoiron/sqlx"
)

// grantJoins walks membership -> role assignment -> role, skipping anything soft deleted.
const grantJoins = `
	FROM user_companies uc
	JOIN companies c ON c.id = uc.company_id AND c.deleted_at IS NULL
	JOIN user_company_roles ucr ON ucr.user_company_id = uc.id AND ucr.deleted_at IS NULL
	JOIN roles r ON r.id = ucr.role_id AND r.deleted_at IS NULL`

// grantFilter binds user id, company id, is_active.
const grantFilter = `
	WHERE uc.user_id = ? AND uc.company_id = ?
	  AND uc.is_active = ? AND uc.deleted_at IS NULL`

// AuthzReader is a plain SQL read model; queries are written with '?' and rebound per driver.
type AuthzReader struct {
	db *sqlx.DB
}

func NewAuthzReader(db *sqlx.DB) authz.ReaderAPI {
	return &AuthzReader{db: db}
}

func (r *AuthzReader) CountRoleGrants(ctx context.Context, userID, companyID int64, roleName string) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(1)` + grantJoins + grantFilter + ` AND LOWER(r.name) = LOWER(?)`)

	var n int
	if err := r.db.GetContext(ctx, &n, query, userID, companyID, true, roleName); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *AuthzReader) ListCompanyIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := r.db.Rebind(`
		SELECT uc.company_id
		FROM user_companies uc
		JOIN companies c ON c.id = uc.company_id AND c.deleted_at IS NULL
		WHERE uc.user_id = ? AND uc.is_active = ? AND uc.deleted_at IS NULL
		ORDER BY uc.company_id`)

	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, query, userID, true); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *AuthzReader) ListPermissionCodes(ctx context.Context, userID, companyID int64) ([]string, error) {
	query := r.db.Rebind(`SELECT DISTINCT p.code` + grantJoins + `
	JOIN role_permissions rp ON rp.role_id = r.id AND rp.deleted_at IS NULL AND rp.granted = ?
	JOIN permissions p ON p.id = rp.permission_id` + grantFilter + `
	ORDER BY p.code`)

	codes := []string{}
	if err := r.db.SelectContext(ctx, &codes, query, true, userID, companyID, true); err != nil {
		return nil, err
	}
	return codes, nil
}
