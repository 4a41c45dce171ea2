package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foliosite/folio/internal/auth/domain"
	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"
)

// LoginHandler handles the password and second-factor login endpoints.
type LoginHandler struct {
	AuthService *service.AuthService
}

// HandleLogin handles POST /auth/login
//
//	@Summary		Log in with username and password
//	@Description	Authenticates a username/password pair. On a 2FA-enabled account the
//	@Description	response carries a challenge token instead of credentials; complete the
//	@Description	login via /auth/verify-2fa.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Token pair, or 2FA challenge"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Router			/auth/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	}

	res, err := h.AuthService.Login(ctx, req.Username, req.Password)
	if err != nil {
		var challenge *authsdk.TwoFactorRequiredError
		var locked *authsdk.AccountLockedError

		switch {
		case errors.As(err, &challenge):
			// Password accepted; hand back the challenge as a success
			// payload so clients branch on two_factor_required.
			httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
				TwoFactorRequired: true,
				ChallengeToken:    challenge.ChallengeToken,
				Methods:           challenge.Methods,
			})
		case errors.As(err, &locked):
			locked.WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleVerifyTwoFactor handles POST /auth/verify-2fa
//
//	@Summary		Complete a two-factor challenge
//	@Description	Exchanges a pending challenge token plus a TOTP or backup code for a
//	@Description	token pair. A used backup code is consumed permanently.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyTwoFactorRequest	true	"Challenge token and code"
//	@Success		200		{object}	authsdk.LoginResponse			"Token pair"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Invalid code, expired session or too many attempts"
//	@Router			/auth/verify-2fa [post].
func (h *LoginHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.VerifyTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.ChallengeToken == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.VerifyTwoFactor(ctx, req.ChallengeToken, req.Code, req.IsBackupCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionExpired):
			authsdk.ErrSessionExpired.WriteError(w)
		case errors.Is(err, service.ErrInvalidCode):
			authsdk.ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTooManyAttempts):
			authsdk.ErrTooManyAttempts.WriteError(w)
		default:
			log.Error("two-factor verification failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

func loginResponse(res *service.LoginResult) authsdk.LoginResponse {
	return authsdk.LoginResponse{
		AccessToken:  res.Pair.AccessToken,
		RefreshToken: res.Pair.RefreshToken,
		TokenType:    res.Pair.TokenType,
		ExpiresIn:    res.Pair.ExpiresIn,
		User:         userSummary(res.User),
	}
}

func userSummary(u domain.User) *authsdk.UserSummary {
	return &authsdk.UserSummary{
		ID:               u.ID,
		Username:         u.Username,
		Role:             u.Role,
		TwoFactorEnabled: u.HasTwoFactor(),
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
	}
}
