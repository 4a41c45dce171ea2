package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foliosite/folio/pkg/httpx"
)

// Error kinds shared between the server handlers and the SDK client.
const (
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeAccountLocked       = "account_locked"
	ErrorCodeTwoFactorRequired   = "two_factor_required"
	ErrorCodeInvalidCode         = "invalid_code"
	ErrorCodeTooManyAttempts     = "too_many_attempts"
	ErrorCodeSessionExpired      = "session_expired"
	ErrorCodeInvalidRefreshToken = "invalid_refresh_token"
	ErrorCodeUnauthorized        = "unauthorized"
	ErrorCodeForbidden           = "forbidden"
	ErrorCodeConflict            = "conflict"
	ErrorCodeWeakPassword        = "weak_password"
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeServerError         = "server_error"
)

// APIError is the wire error shape used by every endpoint. It implements
// the error interface and can be used both by the server (to write HTTP
// responses) and by the SDK client (to represent errors).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error kind (e.g., "invalid_credentials")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// Predefined wire errors.
var (
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid username or password",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the verification code is invalid",
	}

	ErrTooManyAttempts = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed verification attempts, log in again",
	}

	ErrSessionExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeSessionExpired,
		Description: "the verification session has expired, log in again",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRefreshToken,
		Description: "the refresh token is invalid or expired",
	}

	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "the access token is missing, invalid or expired",
	}

	ErrForbidden = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "insufficient privileges",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeConflict,
		Description: "username is already taken",
	}

	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "password must be at least 8 characters with upper case, lower case, digit and special character",
	}

	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError creates an APIError with a custom description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// AccountLockedError is returned when an account is locked out after too
// many failed logins. It carries the lock expiry so clients can show it.
type AccountLockedError struct {
	LockedUntil time.Time `json:"locked_until"`
}

// Error implements the error interface.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.Format(time.RFC3339))
}

// WriteError writes the lockout error as a 423 Locked response.
func (e *AccountLockedError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusLocked) // 423
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":             ErrorCodeAccountLocked,
		"error_description": "account is temporarily locked due to repeated failed logins",
		"locked_until":      e.LockedUntil.UTC().Format(time.RFC3339),
	})
}

// TwoFactorRequiredError is returned from login when the password was
// correct but the account requires a second factor. The handler converts
// it into the challenge response rather than an error status.
type TwoFactorRequiredError struct {
	// ChallengeToken is the token to use when submitting the second factor
	ChallengeToken string `json:"challenge_token"`

	// Methods lists the available verification methods (e.g. ["totp", "backup_codes"])
	Methods []string `json:"methods"`
}

// Error implements the error interface.
func (e *TwoFactorRequiredError) Error() string {
	return fmt.Sprintf("two-factor verification required: available methods=%v", e.Methods)
}

// parseErrorResponse attempts to parse an HTTP error response into a typed
// error. Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Lockout carries extra payload (423 Locked)
	if resp.StatusCode == http.StatusLocked {
		var lockResp struct {
			Error       string `json:"error"`
			LockedUntil string `json:"locked_until"`
		}
		if err := json.Unmarshal(body, &lockResp); err == nil && lockResp.Error == ErrorCodeAccountLocked {
			until, _ := time.Parse(time.RFC3339, lockResp.LockedUntil)
			return &AccountLockedError{LockedUntil: until}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	// Fallback: create generic error from status code
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
