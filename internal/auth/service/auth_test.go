package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/foliosite/folio/internal/auth/domain"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/internal/auth/store/drivers/sqlite"
	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/foliosite/folio/pkg/cryptox"
	"github.com/foliosite/folio/pkg/idx"
	"github.com/foliosite/folio/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper"))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestAuthService(t *testing.T, st store.Store) *AuthService {
	t.Helper()

	signer, err := jwtx.NewEphemeralSignerEdDSA("test-key")
	require.NoError(t, err)

	return &AuthService{
		Store:      st,
		Signer:     signer,
		Issuer:     "test-issuer",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

func createTestUser(t *testing.T, st store.Store, username, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	createTestUser(t, st, "alice", "Sup3rSecret!")

	t.Run("issues tokens on valid credentials", func(t *testing.T) {
		res, err := svc.Login(ctx, "alice", "Sup3rSecret!")
		require.NoError(t, err)
		require.NotEmpty(t, res.Pair.AccessToken)
		require.NotEmpty(t, res.Pair.RefreshToken)
		require.Equal(t, "Bearer", res.Pair.TokenType)
		require.Equal(t, "alice", res.User.Username)
	})

	t.Run("unknown username and wrong password are indistinguishable", func(t *testing.T) {
		_, errUnknown := svc.Login(ctx, "nobody", "Sup3rSecret!")
		_, errWrong := svc.Login(ctx, "alice", "WrongPass1!")
		require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
		require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	})

	t.Run("stamps last_login", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "Sup3rSecret!")
		require.NoError(t, err)

		u, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, u.LastLogin)
	})
}

func TestLoginLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "bob", "Sup3rSecret!")

	// Five consecutive failures lock the account.
	for range MaxLoginAttempts {
		_, err := svc.Login(ctx, "bob", "WrongPass1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The sixth attempt is rejected as locked even with the correct password.
	_, err := svc.Login(ctx, "bob", "Sup3rSecret!")
	var locked *authsdk.AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.True(t, locked.LockedUntil.After(time.Now()))

	// Further failures during the lock do not extend it.
	_, err = svc.Login(ctx, "bob", "WrongPass1!")
	require.ErrorAs(t, err, &locked)
	stillLocked, err2 := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err2)
	require.Equal(t, locked.LockedUntil.UTC(), stillLocked.LockUntil.UTC())

	// Expire the lock manually: the next failure restarts the count at 1.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Users().UpdateLoginState(ctx, u.ID, MaxLoginAttempts, &past))

	_, err = svc.Login(ctx, "bob", "WrongPass1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	after, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, after.LoginAttempts)
	require.Nil(t, after.LockUntil)

	// A successful login clears everything.
	_, err = svc.Login(ctx, "bob", "Sup3rSecret!")
	require.NoError(t, err)

	clean, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, clean.LoginAttempts)
	require.Nil(t, clean.LockUntil)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	createTestUser(t, st, "carol", "Sup3rSecret!")

	res, err := svc.Login(ctx, "carol", "Sup3rSecret!")
	require.NoError(t, err)

	// Rotation: the refresh endpoint issues a new token and invalidates
	// the presented one.
	rotated, err := svc.Refresh(ctx, res.Pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, res.Pair.RefreshToken, rotated.Pair.RefreshToken)

	_, err = svc.Refresh(ctx, res.Pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// The rotated token still works.
	_, err = svc.Refresh(ctx, rotated.Pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsGarbageAndLogout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "dave", "Sup3rSecret!")

	_, err := svc.Refresh(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidRefresh)

	res, err := svc.Login(ctx, "dave", "Sup3rSecret!")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, u.ID))

	_, err = svc.Refresh(ctx, res.Pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	createTestUser(t, st, "admin", "Sup3rSecret!")

	t.Run("creates account with valid password", func(t *testing.T) {
		u, err := svc.Register(ctx, "newuser", "LongEnough1!", "")
		require.NoError(t, err)
		require.Equal(t, domain.RoleAdmin, u.Role)
		require.False(t, u.CreatedAt.IsZero(), "the returned account carries its creation time")

		_, err = svc.Login(ctx, "newuser", "LongEnough1!")
		require.NoError(t, err)
	})

	t.Run("rejects duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, "admin", "LongEnough1!", "")
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("rejects weak password before persisting", func(t *testing.T) {
		_, err := svc.Register(ctx, "weakling", "short1!", "")
		require.ErrorIs(t, err, ErrWeakPassword)

		_, err = st.Users().GetUserByUsername(ctx, "weakling")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func enrollTwoFactor(t *testing.T, st store.Store, userID string) (secret string, backupCodes []string) {
	t.Helper()
	ctx := context.Background()

	tfs := &TwoFactorService{Store: st, Issuer: "test-issuer"}
	enrollment, err := tfs.Setup(ctx, userID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	backupCodes, err = tfs.ConfirmSetup(ctx, userID, code)
	require.NoError(t, err)
	require.Len(t, backupCodes, backupCodeCount)

	return enrollment.Secret, backupCodes
}

func TestTwoFactorLoginFlow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "eve", "Sup3rSecret!")
	secret, _ := enrollTwoFactor(t, st, u.ID)

	// Login with a correct password yields a challenge, not tokens.
	_, err := svc.Login(ctx, "eve", "Sup3rSecret!")
	var challenge *authsdk.TwoFactorRequiredError
	require.ErrorAs(t, err, &challenge)
	require.NotEmpty(t, challenge.ChallengeToken)
	require.Contains(t, challenge.Methods, "totp")

	// Three wrong codes: InvalidCode each time, no password lockout.
	for range 3 {
		_, err := svc.VerifyTwoFactor(ctx, challenge.ChallengeToken, "000000", false)
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	unlocked, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, unlocked.LoginAttempts)
	require.Nil(t, unlocked.LockUntil)

	// The correct code completes the login.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	res, err := svc.VerifyTwoFactor(ctx, challenge.ChallengeToken, code, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Pair.AccessToken)
	require.NotEmpty(t, res.Pair.RefreshToken)

	// The challenge was consumed.
	_, err = svc.VerifyTwoFactor(ctx, challenge.ChallengeToken, code, false)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestTwoFactorChallengeAttemptCap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "frank", "Sup3rSecret!")
	enrollTwoFactor(t, st, u.ID)

	_, err := svc.Login(ctx, "frank", "Sup3rSecret!")
	var challenge *authsdk.TwoFactorRequiredError
	require.ErrorAs(t, err, &challenge)

	for i := range MaxChallengeAttempts {
		_, err := svc.VerifyTwoFactor(ctx, challenge.ChallengeToken, "000000", false)
		if i < MaxChallengeAttempts-1 {
			require.ErrorIs(t, err, ErrInvalidCode)
		} else {
			require.ErrorIs(t, err, ErrTooManyAttempts)
		}
	}

	// The challenge is gone; the user has to log in again.
	_, err = svc.VerifyTwoFactor(ctx, challenge.ChallengeToken, "000000", false)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "grace", "Sup3rSecret!")
	_, codes := enrollTwoFactor(t, st, u.ID)

	login := func() string {
		_, err := svc.Login(ctx, "grace", "Sup3rSecret!")
		var challenge *authsdk.TwoFactorRequiredError
		require.ErrorAs(t, err, &challenge)
		return challenge.ChallengeToken
	}

	// A backup code works once.
	res, err := svc.VerifyTwoFactor(ctx, login(), codes[0], true)
	require.NoError(t, err)
	require.NotEmpty(t, res.Pair.AccessToken)

	// The same code is rejected on a second use.
	_, err = svc.VerifyTwoFactor(ctx, login(), codes[0], true)
	require.ErrorIs(t, err, ErrInvalidCode)

	remaining, err := st.BackupCodes().CountUserBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount-1, remaining)
}

func TestConsumeBackupCodeIsTheCheck(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	u := createTestUser(t, st, "kate", "Sup3rSecret!")

	hash := cryptox.FingerprintToken("0123456789")
	require.NoError(t, st.BackupCodes().CreateBackupCode(ctx, u.ID, hash))

	// The delete itself reports whether the code existed, so of two racing
	// presentations of the same code at most one can see true.
	ok, err := st.BackupCodes().ConsumeBackupCode(ctx, u.ID, hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.BackupCodes().ConsumeBackupCode(ctx, u.ID, hash)
	require.NoError(t, err)
	require.False(t, ok, "a consumed code must never verify again")
}

func TestExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)
	u := createTestUser(t, st, "heidi", "Sup3rSecret!")
	secret, _ := enrollTwoFactor(t, st, u.ID)

	// Insert an already-expired challenge directly.
	expired := domain.TwoFactorChallenge{
		ID:        idx.New().String(),
		UserID:    u.ID,
		CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
		ExpiresAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	require.NoError(t, st.TwoFactorChallenges().CreateChallenge(ctx, expired))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	_, err = svc.VerifyTwoFactor(ctx, expired.ID, code, false)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestConfirmSetupWrongCodeLeavesDisabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	u := createTestUser(t, st, "ivan", "Sup3rSecret!")

	tfs := &TwoFactorService{Store: st, Issuer: "test-issuer"}
	_, err := tfs.Setup(ctx, u.ID)
	require.NoError(t, err)

	_, err = tfs.ConfirmSetup(ctx, u.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidCode)

	after, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, after.HasTwoFactor())

	count, err := st.BackupCodes().CountUserBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	u := createTestUser(t, st, "judy", "Sup3rSecret!")
	enrollTwoFactor(t, st, u.ID)

	tfs := &TwoFactorService{Store: st, Issuer: "test-issuer"}

	// A wrong password cannot disable protection.
	err := tfs.Disable(ctx, u.ID, "WrongPass1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, tfs.Disable(ctx, u.ID, "Sup3rSecret!"))

	after, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, after.HasTwoFactor())
	require.Nil(t, after.TwoFactorSecret)

	count, err := st.BackupCodes().CountUserBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBootstrapEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestAuthService(t, st)

	boot := &BootstrapService{
		Store:         st,
		Logger:        testLogger(),
		AdminUsername: "root",
		AdminPassword: "Sup3rSecret!",
	}
	require.NoError(t, boot.EnsureAdmin(ctx))

	_, err := svc.Login(ctx, "root", "Sup3rSecret!")
	require.NoError(t, err)

	// Idempotent: a second run does not create another account or fail.
	require.NoError(t, boot.EnsureAdmin(ctx))

	// With users present, a different configured admin is not created.
	boot.AdminUsername = "other"
	require.NoError(t, boot.EnsureAdmin(ctx))
	_, err = st.Users().GetUserByUsername(ctx, "other")
	require.ErrorIs(t, err, store.ErrNotFound)
}
