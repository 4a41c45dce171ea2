package domain

import "time"

// Role values. Kept as an open string enum so new roles don't need a
// schema change.
const (
	RoleAdmin = "admin"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2 encoded
	Role         string

	// Single active refresh token, stored as a SHA-256 fingerprint.
	// Logging in or refreshing replaces it, logging out clears it.
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time

	// Failed-login tracking. LockUntil non-nil and in the future means the
	// account rejects all password attempts regardless of correctness.
	LoginAttempts int
	LockUntil     *time.Time

	TwoFactorEnabled *time.Time // timestamp when 2FA was confirmed (nullable)
	TwoFactorSecret  *string    // TOTP secret (nullable, base32 encoded)

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasTwoFactor reports whether the account has a confirmed second factor.
func (u User) HasTwoFactor() bool {
	return u.TwoFactorEnabled != nil
}

// Locked reports whether the account is locked out at the given time.
func (u User) Locked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}
