// Package authz answers role membership questions for a single tenant.
//
// Every check walks the same chain: an active, live UserCompany row for the
// company, a live UserCompanyRole on it and a live Role with the requested
// name. Lookup failures resolve to "no", never to an error.
package authz

import (
	"context"
	"log/slog"
	"strings"
)

// AdminRoleName is compared case-insensitively.
const AdminRoleName = "admin"

// ReaderAPI is the read model behind the resolver.
type ReaderAPI interface {
	CountRoleGrants(ctx context.Context, userID, companyID int64, roleName string) (int, error)
	ListCompanyIDs(ctx context.Context, userID int64) ([]int64, error)
	ListPermissionCodes(ctx context.Context, userID, companyID int64) ([]string, error)
}

type Resolver struct {
	reader ReaderAPI
	logger *slog.Logger
}

func NewResolver(reader ReaderAPI, logger *slog.Logger) *Resolver {
	return &Resolver{
		reader: reader,
		logger: logger,
	}
}

func (r *Resolver) HasRole(ctx context.Context, userID, companyID int64, roleName string) bool {
	roleName = strings.TrimSpace(roleName)
	if userID <= 0 || companyID <= 0 || roleName == "" {
		return false
	}

	n, err := r.reader.CountRoleGrants(ctx, userID, companyID, roleName)
	if err != nil {
		r.logger.ErrorContext(ctx, "role lookup failed, denying",
			"user_id", userID, "company_id", companyID, "role", roleName, "error", err)
		return false
	}
	return n > 0
}

func (r *Resolver) IsAdmin(ctx context.Context, userID, companyID int64) bool {
	return r.HasRole(ctx, userID, companyID, AdminRoleName)
}

// CompaniesFor lists the companies where userID holds an active membership.
func (r *Resolver) CompaniesFor(ctx context.Context, userID int64) []int64 {
	ids, err := r.reader.ListCompanyIDs(ctx, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "company lookup failed", "user_id", userID, "error", err)
		return []int64{}
	}
	return ids
}

// PermissionCodes lists the granted permission codes reachable through the
// user's live roles in companyID. It is a listing only.
func (r *Resolver) PermissionCodes(ctx context.Context, userID, companyID int64) []string {
	codes, err := r.reader.ListPermissionCodes(ctx, userID, companyID)
	if err != nil {
		r.logger.ErrorContext(ctx, "permission lookup failed",
			"user_id", userID, "company_id", companyID, "error", err)
		return []string{}
	}
	return codes
}
