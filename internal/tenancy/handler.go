package tenancy

import (
	"net/http"

	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	"github.com/frahmantamala/tenant-auth/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(base *transport.BaseHandler, svc *Service) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	var dto CreateCompanyDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	company, err := h.Service.CreateCompany(r.Context(), dto, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ToCompanyResponse(company))
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var dto ChangeStatusDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.ChangeStatus(r.Context(), userID, companyID, tenancyDatamodel.CompanyStatus(dto.Status)); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetParent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var dto SetParentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.SetParent(r.Context(), userID, companyID, dto.ParentCompanyID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	roles, err := h.Service.ListRoles(r.Context(), companyID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, ToRoleResponse(role))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": out})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var dto CreateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), &companyID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ToRoleResponse(role))
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	roleID, ok := h.PathID(w, r, "roleID")
	if !ok {
		return
	}

	if err := h.Service.DeleteRole(r.Context(), companyID, roleID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	roleID, ok := h.PathID(w, r, "roleID")
	if !ok {
		return
	}

	var dto GrantPermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if _, err := h.Service.RoleInCompany(r.Context(), companyID, roleID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	granted := true
	if dto.Granted != nil {
		granted = *dto.Granted
	}
	link, err := h.Service.GrantPermission(r.Context(), userID, roleID, dto.PermissionID, granted)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"role_id":       link.RoleID,
		"permission_id": link.PermissionID,
		"granted":       link.Granted,
	})
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	roleID, ok := h.PathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.PathID(w, r, "permissionID")
	if !ok {
		return
	}

	if _, err := h.Service.RoleInCompany(r.Context(), companyID, roleID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := h.Service.RevokePermission(r.Context(), userID, roleID, permissionID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var dto AssociateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	membership, err := h.Service.AssociateUser(r.Context(), dto.UserID, companyID, dto.IsPrimary)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToMembershipResponse(membership))
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	membershipID, ok := h.PathID(w, r, "membershipID")
	if !ok {
		return
	}

	if err := h.Service.RemoveUser(r.Context(), companyID, membershipID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	membershipID, ok := h.PathID(w, r, "membershipID")
	if !ok {
		return
	}

	var dto AssignRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	assignment, err := h.Service.AssignRole(r.Context(), userID, companyID, membershipID, dto.RoleID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":              assignment.ID,
		"user_company_id": assignment.UserCompanyID,
		"role_id":         assignment.RoleID,
	})
}

func (h *Handler) RemoveRoleAssignment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}
	assignmentID, ok := h.PathID(w, r, "assignmentID")
	if !ok {
		return
	}

	if err := h.Service.RemoveRole(r.Context(), userID, companyID, assignmentID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMyCompanies serves GET /users/me/companies[?company_id=N].
func (h *Handler) ListMyCompanies(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	var companyID *int64
	if raw := r.URL.Query().Get("company_id"); raw != "" {
		id, err := transport.ParseID(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid company_id")
			return
		}
		companyID = &id
	}

	rows, err := h.Service.ListUserCompanies(r.Context(), userID, companyID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := MembershipsResponse{Memberships: make([]MembershipResponse, 0, len(rows))}
	for _, m := range rows {
		resp.Memberships = append(resp.Memberships, ToMembershipResponse(m))
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
