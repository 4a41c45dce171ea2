package authsdk

import (
	"context"
	"net/http"
)

// Two-factor lifecycle operations on an authenticated session.

// SetupTwoFactor begins TOTP enrolment. The account is not protected until
// the returned secret is confirmed via VerifyTwoFactorSetup.
func (s *Session) SetupTwoFactor(ctx context.Context) (*TwoFactorSetupResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/auth/setup-2fa", nil, nil)
	if err != nil {
		return nil, err
	}

	var setup TwoFactorSetupResponse
	if err := decodeJSON(resp, &setup, http.StatusOK); err != nil {
		return nil, err
	}

	return &setup, nil
}

// VerifyTwoFactorSetup confirms enrolment with a TOTP code and returns the
// one-time backup codes.
func (s *Session) VerifyTwoFactorSetup(ctx context.Context, code string) (*BackupCodesResponse, error) {
	body, err := jsonBody(VerifyTwoFactorSetupRequest{Code: code})
	if err != nil {
		return nil, err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/auth/verify-setup-2fa", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var codes BackupCodesResponse
	if err := decodeJSON(resp, &codes, http.StatusOK); err != nil {
		return nil, err
	}

	return &codes, nil
}

// DisableTwoFactor removes two-factor protection. Requires the account
// password, not just a valid session.
func (s *Session) DisableTwoFactor(ctx context.Context, password string) error {
	body, err := jsonBody(DisableTwoFactorRequest{Password: password})
	if err != nil {
		return err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/auth/disable-2fa", body, jsonHeaders)
	if err != nil {
		return err
	}

	return checkStatusNoContent(resp)
}
