package http

import (
	"errors"
	"net/http"

	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"
)

// TwoFactorHandler handles TOTP enrolment, confirmation and removal.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
}

// HandleSetup handles POST /auth/setup-2fa
//
//	@Summary		Begin two-factor enrolment
//	@Description	Generates a TOTP secret and provisioning QR code. The account is not
//	@Description	protected until the code is confirmed via /auth/verify-setup-2fa.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorSetupResponse	"Secret, otpauth URL and QR code"
//	@Failure		400	{object}	authsdk.ErrorResponse			"Two-factor already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Invalid or missing access token"
//	@Router			/auth/setup-2fa [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	enrollment, err := h.TwoFactorService.Setup(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorAlreadyEnabled) {
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
				"two-factor authentication is already enabled").WriteError(w)
			return
		}
		log.Error("two-factor setup failed", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.OTPAuthURL,
		QRCode:     enrollment.QRCode,
	})
}

// HandleVerifySetup handles POST /auth/verify-setup-2fa
//
//	@Summary		Confirm two-factor enrolment
//	@Description	Verifies a TOTP code against the pending secret, enables two-factor
//	@Description	authentication and returns the backup codes. The codes are shown
//	@Description	exactly once; store them safely.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyTwoFactorSetupRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.BackupCodesResponse			"One-time backup codes"
//	@Failure		400		{object}	authsdk.ErrorResponse				"No pending enrolment"
//	@Failure		401		{object}	authsdk.ErrorResponse				"Invalid code"
//	@Router			/auth/verify-setup-2fa [post].
func (h *TwoFactorHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.VerifyTwoFactorSetupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.TwoFactorService.ConfirmSetup(ctx, userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			authsdk.ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorAlreadyEnabled),
			errors.Is(err, service.ErrTwoFactorNotEnrolled):
			authsdk.ErrInvalidRequest.WriteError(w)
		default:
			log.Error("two-factor confirmation failed", "user_id", userID, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	log.Info("two-factor enabled", "user_id", userID)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleDisable handles POST /auth/disable-2fa
//
//	@Summary		Disable two-factor authentication
//	@Description	Removes two-factor protection and deletes all backup codes. Requires
//	@Description	the account password, not just a valid session.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Success		204	"Two-factor disabled"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Two-factor not enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Wrong password"
//	@Router			/auth/disable-2fa [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.DisableTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFactorService.Disable(ctx, userID, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorNotEnrolled):
			authsdk.ErrInvalidRequest.WriteError(w)
		default:
			log.Error("two-factor disable failed", "user_id", userID, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	log.Info("two-factor disabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
