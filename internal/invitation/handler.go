package invitation

import (
	"context"
	"net/http"

	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
	"github.com/frahmantamala/tenant-auth/internal/transport"
)

// AdminResolver is the slice of the authorization resolver the handler needs.
type AdminResolver interface {
	IsAdmin(ctx context.Context, userID, companyID int64) bool
}

type Handler struct {
	*transport.BaseHandler
	Service *Service
	Admins  AdminResolver
}

func NewHandler(base *transport.BaseHandler, svc *Service, admins AdminResolver) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
		Admins:      admins,
	}
}

// Create serves POST /companies/{companyID}/invitations behind the company admin gate.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var dto CreateInvitationDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	dto.Token = ""

	inv, err := h.Service.Create(r.Context(), companyID, userID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ToInvitationResponse(inv))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.PathID(w, r, "companyID")
	if !ok {
		return
	}

	var status *invitationDatamodel.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := invitationDatamodel.Status(raw)
		status = &s
	}

	rows, err := h.Service.ListForCompany(r.Context(), companyID, status)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	out := make([]InvitationResponse, 0, len(rows))
	for _, inv := range rows {
		out = append(out, ToInvitationResponse(inv))
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"invitations": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAsAdmin(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, ToInvitationResponse(inv))
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAsAdmin(w, r)
	if !ok {
		return
	}
	userID, _ := h.CurrentUserID(w, r)

	revoked, err := h.Service.Revoke(r.Context(), userID, inv.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToInvitationResponse(revoked))
}

func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAsAdmin(w, r)
	if !ok {
		return
	}
	userID, _ := h.CurrentUserID(w, r)

	resent, err := h.Service.Resend(r.Context(), userID, inv.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToInvitationResponse(resent))
}

// Accept serves POST /invitations/accept for the signed-in invitee.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	var dto AcceptInvitationDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	result, err := h.Service.Accept(r.Context(), dto.Token, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, AcceptInvitationResponse{
		UserCompanyID:     result.Membership.ID,
		CompanyID:         result.Membership.CompanyID,
		UserCompanyRoleID: result.Assignment.ID,
		RoleID:            result.Assignment.RoleID,
	})
}

// loadAsAdmin hides invitations of companies the caller does not administer.
func (h *Handler) loadAsAdmin(w http.ResponseWriter, r *http.Request) (*invitationDatamodel.Invitation, bool) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.PathID(w, r, "invitationID")
	if !ok {
		return nil, false
	}

	inv, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return nil, false
	}
	if !h.Admins.IsAdmin(r.Context(), userID, inv.CompanyID) {
		h.Logger.WarnContext(r.Context(), "invitation access denied", "invitation_id", id, "user_id", userID)
		h.HandleServiceError(w, ErrNotFound)
		return nil, false
	}
	return inv, true
}
