package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foliosite/folio/internal/auth/domain"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/cryptox"
	"github.com/foliosite/folio/pkg/idx"
	"github.com/foliosite/folio/pkg/jwtx"
	"github.com/foliosite/folio/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

const (
	// MaxChallengeAttempts is the maximum number of failed second-factor
	// attempts allowed per challenge.
	MaxChallengeAttempts = 5

	// ChallengeTTL is how long a pending second-factor challenge stays valid.
	ChallengeTTL = 5 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrSessionExpired     = errors.New("session_expired")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrUsernameTaken      = errors.New("username_taken")
)

// AccountLockedError and TwoFactorRequiredError are aliases to the SDK's
// types so server and client share one wire shape.
type (
	AccountLockedError     = authsdk.AccountLockedError
	TwoFactorRequiredError = authsdk.TwoFactorRequiredError
)

// AuthService implements login, second-factor verification, refresh
// rotation, logout and registration.
type AuthService struct {
	Store      store.Store
	Signer     *jwtx.EdDSASigner
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginResult bundles the issued tokens with the authenticated user for
// the handler's response payload.
type LoginResult struct {
	Pair domain.TokenPair
	User domain.User
}

// Login authenticates a username/password pair.
//
// On a 2FA-enabled account it returns a TwoFactorRequiredError carrying a
// challenge token instead of tokens. A locked account returns
// AccountLockedError regardless of password correctness, and the lock is
// not extended by further attempts.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same error shape as a wrong password to avoid username
			// enumeration.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if u.Locked(now) {
		l.Info("login attempt on locked account", slog.String("user_id", u.ID))
		return nil, &AccountLockedError{LockedUntil: *u.LockUntil}
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		attempts, lockUntil := AdvanceLockout(u.LoginAttempts, u.LockUntil, now, false)
		if err := s.Store.Users().UpdateLoginState(ctx, u.ID, attempts, lockUntil); err != nil {
			l.Error("failed to persist login failure", slog.Any("error", err))
		}
		if lockUntil != nil {
			l.Warn("account locked after repeated failures",
				slog.String("user_id", u.ID),
				slog.Int("attempts", attempts),
			)
		}
		return nil, ErrInvalidCredentials
	}

	// Password is correct; reset the lockout counters.
	attempts, lockUntil := AdvanceLockout(u.LoginAttempts, u.LockUntil, now, true)
	if err := s.Store.Users().UpdateLoginState(ctx, u.ID, attempts, lockUntil); err != nil {
		return nil, err
	}

	if u.HasTwoFactor() {
		challenge := domain.TwoFactorChallenge{
			ID:        idx.New().String(),
			UserID:    u.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(ChallengeTTL),
		}
		if err := s.Store.TwoFactorChallenges().CreateChallenge(ctx, challenge); err != nil {
			return nil, err
		}
		return nil, &TwoFactorRequiredError{
			ChallengeToken: challenge.ID,
			Methods:        []string{"totp", "backup_codes"},
		}
	}

	pair, err := s.issueTokens(ctx, u, []string{jwtx.AMRPassword}, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Pair: *pair, User: u}, nil
}

// VerifyTwoFactor completes a pending challenge with a TOTP code or a
// backup code. Failures count against the challenge, not the password
// lockout: five bad codes invalidate the challenge and force a fresh login.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, challengeToken, code string, isBackupCode bool) (*LoginResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	challenge, err := s.Store.TwoFactorChallenges().GetChallenge(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	if challenge.Expired(now) {
		_ = s.Store.TwoFactorChallenges().DeleteChallenge(ctx, challengeToken)
		return nil, ErrSessionExpired
	}

	if challenge.Attempts >= MaxChallengeAttempts {
		_ = s.Store.TwoFactorChallenges().DeleteChallenge(ctx, challengeToken)
		l.Warn("challenge exceeded max attempts",
			slog.String("user_id", challenge.UserID),
			slog.Int("attempts", challenge.Attempts),
		)
		return nil, ErrTooManyAttempts
	}

	u, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}

	if isBackupCode {
		// The delete is the validity check: whichever request consumes
		// the row wins, any concurrent duplicate sees zero rows and
		// fails. The challenge is consumed in the same transaction.
		hash := cryptox.FingerprintToken(code)
		var consumed bool
		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			var err error
			consumed, err = tx.BackupCodes().ConsumeBackupCode(ctx, u.ID, hash)
			if err != nil || !consumed {
				return err
			}
			return tx.TwoFactorChallenges().DeleteChallenge(ctx, challengeToken)
		})
		if err != nil {
			return nil, err
		}
		if !consumed {
			return nil, s.failChallenge(ctx, challengeToken)
		}
	} else {
		if u.TwoFactorSecret == nil || !totp.Validate(code, *u.TwoFactorSecret) {
			return nil, s.failChallenge(ctx, challengeToken)
		}
		if err := s.Store.TwoFactorChallenges().DeleteChallenge(ctx, challengeToken); err != nil {
			return nil, err
		}
	}

	pair, err := s.issueTokens(ctx, u, []string{jwtx.AMRPassword, jwtx.AMRMFA}, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Pair: *pair, User: u}, nil
}

// failChallenge records a failed verification attempt and returns the
// error the caller should surface.
func (s *AuthService) failChallenge(ctx context.Context, challengeToken string) error {
	updated, err := s.Store.TwoFactorChallenges().IncrementChallengeAttempts(ctx, challengeToken)
	if err != nil {
		return ErrInvalidCode
	}
	if updated.Attempts >= MaxChallengeAttempts {
		_ = s.Store.TwoFactorChallenges().DeleteChallenge(ctx, challengeToken)
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

// Refresh rotates the refresh token: the presented token is invalidated
// and a new pair is issued atomically. A token that does not match the
// stored fingerprint (already rotated, logged out, or fabricated) fails.
func (s *AuthService) Refresh(ctx context.Context, refreshOpaque string) (*LoginResult, error) {
	now := time.Now().UTC()

	fp := cryptox.FingerprintToken(refreshOpaque)
	u, err := s.Store.Users().GetUserByRefreshTokenHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if u.RefreshTokenExpiresAt == nil || now.After(*u.RefreshTokenExpiresAt) {
		// Expired: clear it so the row doesn't hold a dead fingerprint.
		_ = s.Store.Users().SetRefreshToken(ctx, u.ID, nil, nil)
		return nil, ErrInvalidRefresh
	}

	pair, err := s.issueTokens(ctx, u, s.sessionAMR(u), now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Pair: *pair, User: u}, nil
}

// Logout invalidates the account's refresh token. The access token stays
// valid until expiry; it is short-lived by design.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.Store.Users().SetRefreshToken(ctx, userID, nil, nil)
}

// Register creates a new account. Role checks happen at the HTTP boundary;
// here we only enforce the password policy and username uniqueness.
func (s *AuthService) Register(ctx context.Context, username, password, role string) (domain.User, error) {
	if err := ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	if role == "" {
		role = domain.RoleAdmin
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return u, nil
}

// GetUser loads an account by ID, for the identity endpoint.
func (s *AuthService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// issueTokens signs an access token and rotates the stored refresh token
// in one transaction, then stamps last_login.
func (s *AuthService) issueTokens(ctx context.Context, u domain.User, amr []string, now time.Time) (*domain.TokenPair, error) {
	claims := jwtx.NewAccessClaims(u.ID, u.Username, u.Role, amr, s.AccessTTL, s.Issuer, now)
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}
	refreshFP := cryptox.FingerprintToken(refreshOpaque)
	refreshExpires := now.Add(s.RefreshTTL)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetRefreshToken(ctx, u.ID, &refreshFP, &refreshExpires); err != nil {
			return err
		}
		return tx.Users().RecordLogin(ctx, u.ID, now)
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

// sessionAMR reconstructs the authentication methods for a refreshed
// session. A 2FA-enabled account can only have logged in by completing
// the second factor.
func (s *AuthService) sessionAMR(u domain.User) []string {
	if u.HasTwoFactor() {
		return []string{jwtx.AMRPassword, jwtx.AMRMFA}
	}
	return []string{jwtx.AMRPassword}
}
