package http

import (
	"errors"
	"net/http"

	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"
)

// TokenHandler handles refresh rotation and logout.
type TokenHandler struct {
	AuthService *service.AuthService
}

// HandleRefresh handles POST /auth/refresh
//
//	@Summary		Rotate the refresh token
//	@Description	Exchanges a valid refresh token for a fresh token pair. The presented
//	@Description	token is invalidated; only the returned one works afterwards.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.LoginResponse	"New token pair"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or expired refresh token"
//	@Router			/auth/refresh [post].
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		authsdk.ErrInvalidRefreshToken.WriteError(w)
		return
	}

	res, err := h.AuthService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			authsdk.ErrInvalidRefreshToken.WriteError(w)
			return
		}
		log.Error("refresh failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleLogout handles POST /auth/logout
//
//	@Summary		Log out
//	@Description	Invalidates the account's refresh token. The short-lived access token
//	@Description	remains valid until expiry.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204	"Logged out"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/logout [post].
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.AuthService.Logout(ctx, userID); err != nil {
		log.Error("logout failed", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
