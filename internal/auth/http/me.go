package http

import (
	"errors"
	"net/http"

	"github.com/foliosite/folio/internal/auth/service"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/httpx"
	"github.com/foliosite/folio/pkg/slogx"
)

// MeHandler returns the authenticated account's profile.
type MeHandler struct {
	AuthService *service.AuthService
}

// HandleMe handles GET /auth/me
//
//	@Summary		Get the current account
//	@Description	Returns the profile of the account behind the presented access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserSummary		"Account profile"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/me [get].
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok || userID == "" {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	user, err := h.AuthService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Account deleted after the token was signed.
			authsdk.ErrUnauthorized.WriteError(w)
			return
		}
		log.Warn("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, userSummary(user))
}
