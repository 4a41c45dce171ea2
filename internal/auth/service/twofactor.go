package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"

	"github.com/foliosite/folio/internal/auth/domain"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10 // Number of backup codes to generate

	qrCodeSize = 200 // QR code image dimensions in pixels
)

var (
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled for this user")
	ErrTwoFactorNotEnrolled    = errors.New("two-factor not enrolled for this user")
)

// TwoFactorService handles TOTP enrolment, confirmation and removal.
type TwoFactorService struct {
	Store  store.Store
	Issuer string // Issuer name shown in authenticator apps
}

// Setup generates a TOTP secret for the user and returns it along with the
// provisioning URI and a QR code. This does NOT enable 2FA yet - the user
// must confirm a code first.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (domain.TwoFactorEnrollment, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("failed to load user: %w", err)
	}
	if u.HasTwoFactor() {
		return domain.TwoFactorEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	// Store the secret (but don't enable 2FA yet)
	if err := s.Store.Users().UpdateTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("failed to store secret: %w", err)
	}

	qr, err := qrDataURI(key)
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	return domain.TwoFactorEnrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     qr,
	}, nil
}

// ConfirmSetup verifies a TOTP code against the pending secret and enables
// 2FA for the user if valid. It also generates backup codes, returned in
// plaintext exactly once.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID string, code string) ([]string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u.HasTwoFactor() {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if u.TwoFactorSecret == nil || *u.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotEnrolled
	}

	if !totp.Validate(code, *u.TwoFactorSecret) {
		// A wrong code leaves the account in the not-enabled state; the
		// pending secret stays so the user can retry.
		return nil, ErrInvalidCode
	}

	backupCodes, err := cryptox.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	// Store backup codes and enable 2FA in a transaction
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, code := range backupCodes {
			hash := cryptox.FingerprintToken(code)
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, hash); err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		return tx.Users().EnableTwoFactor(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// Disable removes 2FA after re-verifying the account password, defending
// against a hijacked session switching protection off.
func (s *TwoFactorService) Disable(ctx context.Context, userID string, password string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !u.HasTwoFactor() {
		return ErrTwoFactorNotEnrolled
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		return tx.Users().DisableTwoFactor(ctx, userID)
	})
}

// qrDataURI renders the provisioning key as a PNG data URI for inline
// display in a client.
func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR image: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
