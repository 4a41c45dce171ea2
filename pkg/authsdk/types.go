package authsdk

import "time"

// ErrorResponse is the wire error envelope used by every endpoint.
type ErrorResponse struct {
	// Error is the machine-readable error kind (e.g., "invalid_credentials")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// UserSummary is the public view of an account.
type UserSummary struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Role             string     `json:"role"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned from login, verify-2fa and refresh. Either the
// token fields are set, or TwoFactorRequired is true and the challenge
// fields are set.
type LoginResponse struct {
	// TwoFactorRequired marks the challenge branch: the password was
	// accepted but a second factor is needed before tokens are issued.
	TwoFactorRequired bool     `json:"two_factor_required,omitempty"`
	ChallengeToken    string   `json:"challenge_token,omitempty"`
	Methods           []string `json:"methods,omitempty"`

	// AccessToken is the JWT used to authenticate API requests
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the opaque token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	User *UserSummary `json:"user,omitempty"`
}

// VerifyTwoFactorRequest is the body for POST /auth/verify-2fa.
type VerifyTwoFactorRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
	IsBackupCode   bool   `json:"is_backup_code,omitempty"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// TwoFactorSetupResponse is returned from POST /auth/setup-2fa.
type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
}

// VerifyTwoFactorSetupRequest is the body for POST /auth/verify-setup-2fa.
type VerifyTwoFactorSetupRequest struct {
	Code string `json:"code"`
}

// BackupCodesResponse carries the plaintext backup codes, shown exactly once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// DisableTwoFactorRequest is the body for POST /auth/disable-2fa.
type DisableTwoFactorRequest struct {
	Password string `json:"password"`
}

// HealthChecks reports the state of critical dependencies.
type HealthChecks struct {
	Database string `json:"database"`
}

// HealthResponse is returned from the /livez and /readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
