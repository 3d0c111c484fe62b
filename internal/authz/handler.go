package authz

import (
	"net/http"
)

type PermissionsResponse struct {
	CompanyID   int64    `json:"company_id"`
	Permissions []string `json:"permissions"`
}

// MyPermissions lists the caller's granted permission codes in a company they belong to.
func (g *Gate) MyPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := g.PathID(w, r, "companyID")
	if !ok {
		return
	}
	if !g.isMember(r, userID, companyID) {
		g.HandleServiceError(w, errCompanyHidden)
		return
	}

	g.WriteJSON(w, http.StatusOK, PermissionsResponse{
		CompanyID:   companyID,
		Permissions: g.resolver.PermissionCodes(r.Context(), userID, companyID),
	})
}
