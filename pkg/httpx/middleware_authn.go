package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/foliosite/folio/pkg/jwtx"
	"github.com/foliosite/folio/pkg/slogx"
)

// Verifier validates an access token and returns its claims.
type Verifier interface {
	Verify(token string) (*jwtx.Claims, error)
}

// AuthnMiddleware extracts and verifies the bearer token, injecting the
// caller's identity into the request context.
func AuthnMiddleware(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			// Inject into context for downstream handlers.
			ctx = contextWithAuth(ctx, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountChecker reports whether a token subject still resolves to a live
// account.
type AccountChecker func(r *http.Request, userID string) (bool, error)

// RequireAccount rejects verified tokens whose subject no longer exists.
// A deleted account's token stays cryptographically valid until it expires;
// this check closes that window. Must run after AuthnMiddleware.
func RequireAccount(check AccountChecker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing identity")
				return
			}

			exists, err := check(r, claims.Subject)
			if err != nil {
				WriteJSON(w, http.StatusInternalServerError, map[string]string{
					"error":             "server_error",
					"error_description": "failed to resolve account state",
				})
				return
			}
			if !exists {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "the account behind this token no longer exists",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
