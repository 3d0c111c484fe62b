package authz

import (
	"net/http"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/go-chi/chi"
)

var errCompanyHidden = internal.NewNotFoundError("Company not found", internal.ErrCodeCompanyNotFound)

// Gate turns resolver answers into HTTP middleware.
type Gate struct {
	*transport.BaseHandler
	resolver *Resolver
}

func NewGate(base *transport.BaseHandler, resolver *Resolver) *Gate {
	return &Gate{
		BaseHandler: base,
		resolver:    resolver,
	}
}

// RequireCompanyAdmin lets the request through only when the caller is admin of
// the company named by the URL parameter. Non-members get a 404 so company ids
// are not confirmed; members without the admin role get a 403.
func (g *Gate) RequireCompanyAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := g.CurrentUserID(w, r)
			if !ok {
				return
			}
			companyID, err := transport.ParseID(chi.URLParam(r, param))
			if err != nil {
				g.WriteError(w, http.StatusBadRequest, "invalid "+param)
				return
			}

			if g.resolver.IsAdmin(r.Context(), userID, companyID) {
				next.ServeHTTP(w, r)
				return
			}

			g.Logger.WarnContext(r.Context(), "company admin check failed",
				"user_id", userID, "company_id", companyID, "path", r.URL.Path)

			if g.isMember(r, userID, companyID) {
				g.HandleServiceError(w, internal.ErrNotCompanyAdmin)
				return
			}
			g.HandleServiceError(w, errCompanyHidden)
		})
	}
}

func (g *Gate) isMember(r *http.Request, userID, companyID int64) bool {
	for _, id := range g.resolver.CompaniesFor(r.Context(), userID) {
		if id == companyID {
			return true
		}
	}
	return false
}
