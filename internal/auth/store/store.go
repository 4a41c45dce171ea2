package store

import (
	"context"
	"errors"
	"time"

	"github.com/foliosite/folio/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop people from accidentally doing transactions within
// transactions.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes
	TwoFactorChallenges() TwoFactorChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh
	// rotation). The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByRefreshTokenHash looks up the holder of a refresh token
	// fingerprint. Used during refresh rotation.
	GetUserByRefreshTokenHash(ctx context.Context, hash string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a username collision.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateLoginState writes back the lockout counters after a login attempt.
	UpdateLoginState(ctx context.Context, userID string, attempts int, lockUntil *time.Time) error

	// RecordLogin stamps last_login.
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	// SetRefreshToken replaces the stored refresh token fingerprint.
	// Pass nil to clear it (logout / rotation failure).
	SetRefreshToken(ctx context.Context, userID string, hash *string, expiresAt *time.Time) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateTwoFactorSecret stores a pending TOTP secret during enrolment.
	UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error

	// EnableTwoFactor marks 2FA as confirmed (sets two_factor_enabled timestamp).
	EnableTwoFactor(ctx context.Context, userID string) error

	// DisableTwoFactor disables 2FA (clears two_factor_enabled and the secret).
	DisableTwoFactor(ctx context.Context, userID string) error

	// ClearExpiredRefreshTokens drops refresh token fingerprints whose
	// expiry has passed (housekeeping). Refresh itself also rejects
	// expired tokens; this just keeps dead fingerprints out of the table.
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code hash for a user.
	CreateBackupCode(ctx context.Context, userID string, codeHash string) error

	// ConsumeBackupCode deletes a backup code and reports whether it
	// existed. The delete IS the validity check, so two concurrent
	// presentations of the same code can never both succeed.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of backup codes for a user.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}

type TwoFactorChallenges interface {
	// CreateChallenge creates a new pending 2FA challenge.
	CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error

	// GetChallenge retrieves a challenge by its token (expired or not;
	// callers decide how to report expiry).
	GetChallenge(ctx context.Context, token string) (domain.TwoFactorChallenge, error)

	// IncrementChallengeAttempts bumps the failed attempt counter and
	// returns the updated challenge.
	IncrementChallengeAttempts(ctx context.Context, token string) (domain.TwoFactorChallenge, error)

	// DeleteChallenge removes a challenge by its token.
	DeleteChallenge(ctx context.Context, token string) error

	// DeleteExpiredChallenges removes all expired challenges (housekeeping).
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}
