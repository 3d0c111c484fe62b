package middleware

import (
	"context"
	"net/http"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/token"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
)

type AccessTokenParser interface {
	ParseAccess(ctx context.Context, accessToken string) (*token.Claims, error)
}

// Authenticate requires a valid bearer access token and puts its subject in the context.
func Authenticate(base *transport.BaseHandler, parser AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := base.ExtractTokenFromHeader(r)
			if raw == "" {
				base.HandleServiceError(w, internal.ErrInvalidToken.WithMessage("Missing authorization token"))
				return
			}

			claims, err := parser.ParseAccess(r.Context(), raw)
			if err != nil {
				base.HandleServiceError(w, err)
				return
			}
			userID, err := token.SubjectID(claims)
			if err != nil {
				base.HandleServiceError(w, internal.ErrInvalidToken)
				return
			}

			ctx := internal.ContextWithUserID(r.Context(), userID)
			ctx = logger.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
