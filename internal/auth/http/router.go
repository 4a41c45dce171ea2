package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"

	_ "github.com/foliosite/folio/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     httpx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	AuthService      *service.AuthService
	TwoFactorService *service.TwoFactorService
}

func NewRouter(
	verifier httpx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Folio Authentication Service API
//	@version		0.1.0
//	@description	Authentication and session lifecycle for the folio portfolio backend:
//	@description	password login with lockout, rotating refresh tokens, TOTP two-factor
//	@description	authentication with backup codes, and admin-gated registration.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{AuthService: r.AuthService}
	tokenHandler := &TokenHandler{AuthService: r.AuthService}
	registerHandler := &RegisterHandler{AuthService: r.AuthService}
	meHandler := &MeHandler{AuthService: r.AuthService}

	// POST /auth/login - strict rate limit by IP (authentication attempts)
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(loginHandler.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/verify-2fa - strict rate limit by IP (code guessing)
	r.Mux.Handle("POST /auth/verify-2fa",
		httpx.Chain(http.HandlerFunc(loginHandler.HandleVerifyTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/refresh - moderate rate limit by IP
	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /auth/logout - authenticated, moderate rate limit by user
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleLogout),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /auth/register - admin only, strict rate limit by user
	r.Mux.Handle("POST /auth/register",
		httpx.Chain(http.HandlerFunc(registerHandler.HandleRegister),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			httpx.RequireRole("admin"),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// GET /auth/me - authenticated, 2FA step-up guard, lenient rate limit
	r.Mux.Handle("GET /auth/me",
		httpx.Chain(http.HandlerFunc(meHandler.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			r.requireTwoFactorCompleted(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactorService: r.TwoFactorService}

	// POST /auth/setup-2fa - moderate rate limit by user
	r.Mux.Handle("POST /auth/setup-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /auth/verify-setup-2fa - strict rate limit by user (prevent TOTP brute force)
	r.Mux.Handle("POST /auth/verify-setup-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleVerifySetup),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// POST /auth/disable-2fa - strict rate limit by user (password attempts)
	r.Mux.Handle("POST /auth/disable-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			r.requireAccount(),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

// requireAccount rejects access tokens whose subject has been deleted
// since the token was signed. Runs on every bearer route.
func (r *Router) requireAccount() httpx.Middleware {
	return httpx.RequireAccount(func(req *http.Request, userID string) (bool, error) {
		_, err := r.store.Users().GetUserByID(req.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// requireTwoFactorCompleted rejects access tokens minted without a second
// factor once the account has 2FA enabled. Catches tokens issued mid-session
// before enrolment finished.
func (r *Router) requireTwoFactorCompleted() httpx.Middleware {
	return httpx.RequireTwoFactorCompleted(func(req *http.Request, userID string) (bool, error) {
		u, err := r.store.Users().GetUserByID(req.Context(), userID)
		if err != nil {
			return false, err
		}
		return u.HasTwoFactor(), nil
	})
}
