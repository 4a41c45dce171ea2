package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"
)

// RegisterHandler handles admin-gated account creation.
type RegisterHandler struct {
	AuthService *service.AuthService
}

// HandleRegister handles POST /auth/register
//
//	@Summary		Register a new account
//	@Description	Creates an account. Only an authenticated admin may call this; there is
//	@Description	no public self-registration.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"New account details"
//	@Success		201		{object}	authsdk.UserSummary		"Created account"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Weak password or duplicate username"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Caller is not an admin"
//	@Router			/auth/register [post].
func (h *RegisterHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.AuthService.Register(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			authsdk.ErrConflict.WriteError(w)
		case errors.Is(err, service.ErrWeakPassword):
			authsdk.ErrWeakPassword.WriteError(w)
		default:
			log.Error("registration failed", "username", req.Username, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	log.Info("account registered", "user_id", user.ID, "username", user.Username)
	httpx.WriteJSON(w, http.StatusCreated, userSummary(user))
}
