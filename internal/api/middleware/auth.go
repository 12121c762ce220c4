package middleware

import (
	"context"
	"errors"
	"net/http"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/common/security"
	"tle_zone_judge/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

// Identity is the caller as asserted by a token from the user service.
type Identity struct {
	UserID int64
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator turns the claims left by jwtauth.Verifier into an Identity.
// Requests without a valid token stop here with 401.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		switch {
		case errors.Is(err, jwtauth.ErrNoTokenFound):
			common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			return
		case err != nil || token == nil:
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		var id Identity
		if id.UserID, err = security.GetUserIDFromClaims(claims); err == nil {
			id.Role, err = security.GetUserRoleFromClaims(claims)
		}
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole answers 403 unless the authenticated caller has role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || id.Role != role {
				common.RespondWithError(w, http.StatusForbidden, "Requires role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var AdminOnly = RequireRole(model.RoleAdmin)
