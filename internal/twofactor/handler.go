package twofactor

import (
	"net/http"

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

// Enable returns the secret and backup codes once; they are not retrievable later.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	res, err := h.Service.Enable(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Disable(r.Context(), userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BackupCodeStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.CurrentUserID(w, r)
	if !ok {
		return
	}

	n, err := h.Service.RemainingBackupCodes(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int64{"remaining": n})
}
