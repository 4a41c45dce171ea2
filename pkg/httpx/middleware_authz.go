package httpx

import (
	"net/http"
)

// RequireRole rejects requests whose access token does not carry the role.
// Must run after AuthnMiddleware.
func RequireRole(role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || claims.Role != role {
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "forbidden",
					"error_description": "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTwoFactorCompleted rejects tokens whose AMR lacks "mfa" when the
// account has two-factor enabled. Tokens issued before enrolment finished
// cannot reach protected routes.
func RequireTwoFactorCompleted(check func(r *http.Request, userID string) (bool, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing identity")
				return
			}

			enabled, err := check(r, claims.Subject)
			if err != nil {
				WriteJSON(w, http.StatusInternalServerError, map[string]string{
					"error":             "server_error",
					"error_description": "failed to resolve account state",
				})
				return
			}

			if enabled && !claims.HasAMR("mfa") {
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "two_factor_required",
					"error_description": "complete two-factor verification to access this resource",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
