package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SDKClient is a client for the folio authentication service. It provides
// access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login authenticates a username/password pair and returns an authenticated
// session. When the account has two-factor authentication enabled the error
// is a *TwoFactorRequiredError carrying the challenge token; complete the
// login with VerifyTwoFactor.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*Session, error) {
	body, err := jsonBody(LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var loginResp LoginResponse
	if err := decodeJSON(resp, &loginResp, http.StatusOK); err != nil {
		return nil, err
	}

	if loginResp.TwoFactorRequired {
		return nil, &TwoFactorRequiredError{
			ChallengeToken: loginResp.ChallengeToken,
			Methods:        loginResp.Methods,
		}
	}

	return newSession(c, &loginResp), nil
}

// VerifyTwoFactor completes a pending two-factor challenge with a TOTP or
// backup code and returns an authenticated session.
func (c *SDKClient) VerifyTwoFactor(
	ctx context.Context,
	challengeToken, code string,
	isBackupCode bool,
) (*Session, error) {
	body, err := jsonBody(VerifyTwoFactorRequest{
		ChallengeToken: challengeToken,
		Code:           code,
		IsBackupCode:   isBackupCode,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/verify-2fa", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var loginResp LoginResponse
	if err := decodeJSON(resp, &loginResp, http.StatusOK); err != nil {
		return nil, err
	}

	return newSession(c, &loginResp), nil
}

// NewSessionFromTokens creates an authenticated session from existing tokens,
// e.g. credentials persisted by a previous run. The session still performs
// auto-refresh when the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string) *Session {
	return &Session{
		client:       c,
		id:           uuid.NewString(),
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    decodeExpiry(accessToken, 0),
	}
}

// Health fetches the readiness state of the service.
func (c *SDKClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/readyz", nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}

	return &health, nil
}

// refreshGrant exchanges a refresh token for a new token pair. Used
// internally by Session for auto-refresh.
func (c *SDKClient) refreshGrant(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	body, err := jsonBody(RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var loginResp LoginResponse
	if err := decodeJSON(resp, &loginResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &loginResp, nil
}
