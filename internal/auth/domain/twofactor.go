package domain

import "time"

// TwoFactorChallenge is a pending second-factor step created after a
// correct password on a 2FA-enabled account. The ID doubles as the opaque
// challenge token handed to the client.
type TwoFactorChallenge struct {
	ID        string // ULID, the challenge token
	UserID    string
	Attempts  int // failed verification attempts (max 5)
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its TTL.
func (c TwoFactorChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// TwoFactorChallengeResponse is returned from login when a second factor
// is required before tokens can be issued.
type TwoFactorChallengeResponse struct {
	TwoFactorRequired bool     `json:"two_factor_required"` // always true
	ChallengeToken    string   `json:"challenge_token"`
	Methods           []string `json:"methods"` // e.g. ["totp", "backup_codes"]
}

// TwoFactorEnrollment is returned from setup-2fa so the user can load the
// secret into an authenticator app.
type TwoFactorEnrollment struct {
	Secret     string `json:"secret"`      // base32 encoded TOTP secret
	OTPAuthURL string `json:"otpauth_url"` // otpauth:// provisioning URI
	QRCode     string `json:"qr_code"`     // PNG data URI of the provisioning QR
}
