package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/foliosite/folio/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, password_hash, role,
	refresh_token_hash, refresh_token_expires_at,
	login_attempts, lock_until,
	two_factor_enabled, two_factor_secret,
	last_login, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                    domain.User
		refreshHash          sql.NullString
		refreshExpires       sql.NullString
		lockUntil            sql.NullString
		twoFactorEnabled     sql.NullString
		twoFactorSecret      sql.NullString
		lastLogin            sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Role,
		&refreshHash, &refreshExpires,
		&u.LoginAttempts, &lockUntil,
		&twoFactorEnabled, &twoFactorSecret,
		&lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.RefreshTokenHash = mapNullStringPtr(refreshHash)
	u.RefreshTokenExpiresAt = parseTimePtr(refreshExpires)
	u.LockUntil = parseTimePtr(lockUntil)
	u.TwoFactorEnabled = parseTimePtr(twoFactorEnabled)
	u.TwoFactorSecret = mapNullStringPtr(twoFactorSecret)
	u.LastLogin = parseTimePtr(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)

	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByRefreshTokenHash(ctx context.Context, hash string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE refresh_token_hash = ?`, hash)
	return r.scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := formatTime(time.Now())
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, login_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateLoginState(ctx context.Context, userID string, attempts int, lockUntil *time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET login_attempts = ?, lock_until = ?, updated_at = ? WHERE id = ?`,
		attempts, formatTimePtr(lockUntil), formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID string, hash *string, expiresAt *time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(hash), formatTimePtr(expiresAt), formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_secret = ?, updated_at = ? WHERE id = ?`,
		secret, formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) EnableTwoFactor(ctx context.Context, userID string) error {
	now := formatTime(time.Now())
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		now, now, userID,
	)
	return err
}

func (r *usersRepo) DisableTwoFactor(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = NULL, two_factor_secret = NULL, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), userID,
	)
	return err
}

func (r *usersRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = ?
		 WHERE refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at < ?`,
		formatTime(time.Now()), formatTime(now),
	)
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
