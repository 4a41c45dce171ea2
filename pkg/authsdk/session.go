package authsdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// refreshMargin refreshes the access token slightly before its real
	// expiry so in-flight requests don't race the deadline.
	refreshMargin = 30 * time.Second

	// authCacheTTL is how long Authenticated trusts the last successful
	// auth check before asking the server again.
	authCacheTTL = 30 * time.Second
)

// Session represents an authenticated session with automatic token refresh.
// All Session methods handle token expiration and refresh when needed; a
// single refresh is shared by all concurrent callers.
type Session struct {
	client *SDKClient
	id     string // Instance ID, stable for the session's lifetime

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	refreshing *pendingRefresh

	authOK        bool
	authCheckedAt time.Time
}

// pendingRefresh is the shared handle for an in-flight token refresh.
// Waiters block on done; err carries the outcome.
type pendingRefresh struct {
	done chan struct{}
	err  error
}

// newSession creates a new authenticated session from a login response.
func newSession(client *SDKClient, loginResp *LoginResponse) *Session {
	return &Session{
		client:       client,
		id:           uuid.NewString(),
		accessToken:  loginResp.AccessToken,
		refreshToken: loginResp.RefreshToken,
		expiresAt:    decodeExpiry(loginResp.AccessToken, loginResp.ExpiresIn),
	}
}

// decodeExpiry reads the exp claim from the access token without verifying
// the signature; the server verifies, the client only schedules refreshes.
// Falls back to the advertised expires_in when the token doesn't parse.
func decodeExpiry(accessToken string, expiresIn int64) time.Time {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.Add(-refreshMargin)
	}
	return time.Now().Add(time.Duration(expiresIn)*time.Second - refreshMargin)
}

// ID returns the session's instance identifier.
func (s *Session) ID() string {
	return s.id
}

// AccessToken returns the current access token without checking expiration.
// Prefer the Session methods, which handle refresh automatically.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// getValidToken returns a valid access token, refreshing if expired. When a
// refresh is already in flight the caller waits for it instead of starting
// another.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.Unlock()
		return token, nil
	}

	pending, err := s.startRefreshLocked()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := s.waitRefresh(ctx, pending); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, nil
}

// forceRefresh rotates the token pair regardless of local expiry. Joins an
// in-flight refresh if one exists.
func (s *Session) forceRefresh(ctx context.Context) error {
	s.mu.Lock()
	pending, err := s.startRefreshLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.waitRefresh(ctx, pending)
}

// startRefreshLocked returns the in-flight refresh, starting one if needed.
// Caller must hold s.mu.
func (s *Session) startRefreshLocked() (*pendingRefresh, error) {
	if s.refreshing != nil {
		return s.refreshing, nil
	}
	if s.refreshToken == "" {
		return nil, fmt.Errorf("access token expired and no refresh token available: %w", ErrSessionExpired)
	}

	pending := &pendingRefresh{done: make(chan struct{})}
	s.refreshing = pending
	refreshToken := s.refreshToken

	// Detached from the caller's ctx so one cancelled waiter doesn't
	// abort the refresh everyone else is blocked on.
	go func() {
		resp, err := s.client.refreshGrant(context.Background(), refreshToken)

		s.mu.Lock()
		if err != nil {
			pending.err = err
		} else {
			s.accessToken = resp.AccessToken
			s.refreshToken = resp.RefreshToken
			s.expiresAt = decodeExpiry(resp.AccessToken, resp.ExpiresIn)
		}
		s.refreshing = nil
		s.mu.Unlock()

		close(pending.done)
	}()

	return pending, nil
}

// waitRefresh blocks until the refresh completes or the caller's ctx is done.
func (s *Session) waitRefresh(ctx context.Context, pending *pendingRefresh) error {
	select {
	case <-pending.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return pending.err
}

// clearCredentials drops the local tokens and auth cache after the server
// rejected the session.
func (s *Session) clearCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	s.authOK = false
	s.authCheckedAt = time.Time{}
}

// doAuthRequest performs an authenticated HTTP request using the session's
// access token. On a 401 it refreshes and retries exactly once; a second 401
// (or a failed refresh) clears local credentials and surfaces
// ErrSessionExpired.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, path string,
	body []byte,
	headers map[string]string,
) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.clearCredentials()
		return nil, fmt.Errorf("failed to obtain access token: %w", ErrSessionExpired)
	}

	resp, err := s.sendAuthed(ctx, method, path, body, headers, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_ = resp.Body.Close()

	// The server rejected the token: rotate and retry once
	if err := s.forceRefresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.clearCredentials()
		return nil, fmt.Errorf("token refresh rejected: %w", ErrSessionExpired)
	}

	s.mu.Lock()
	token = s.accessToken
	s.mu.Unlock()

	resp, err = s.sendAuthed(ctx, method, path, body, headers, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		s.clearCredentials()
		return nil, ErrSessionExpired
	}

	return resp, nil
}

func (s *Session) sendAuthed(
	ctx context.Context,
	method, path string,
	body []byte,
	headers map[string]string,
	token string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// Authenticated reports whether the session is currently valid. Successful
// checks are cached for a short window; use CheckAuth to force a round trip.
func (s *Session) Authenticated(ctx context.Context) bool {
	s.mu.Lock()
	if s.authOK && time.Since(s.authCheckedAt) < authCacheTTL {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	return s.CheckAuth(ctx)
}

// CheckAuth verifies the session against the server, bypassing the cache.
func (s *Session) CheckAuth(ctx context.Context) bool {
	_, err := s.Me(ctx)

	s.mu.Lock()
	s.authOK = err == nil
	s.authCheckedAt = time.Now()
	s.mu.Unlock()

	return err == nil
}

// Me retrieves the account profile behind this session.
func (s *Session) Me(ctx context.Context) (*UserSummary, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var user UserSummary
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}

	return &user, nil
}

// Logout invalidates the refresh token server-side and clears the local
// credentials.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}

	if err := checkStatusNoContent(resp); err != nil {
		return err
	}

	s.clearCredentials()
	return nil
}

// Register creates a new account. The session must belong to an admin.
func (s *Session) Register(ctx context.Context, username, password, role string) (*UserSummary, error) {
	body, err := jsonBody(RegisterRequest{Username: username, Password: password, Role: role})
	if err != nil {
		return nil, err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/auth/register", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var user UserSummary
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}

	return &user, nil
}
