package sqlite

import (
	"context"
	"time"

	"github.com/foliosite/folio/internal/auth/domain"
)

type challengesRepo struct {
	q dbtx
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO two_factor_challenges (id, user_id, attempts, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Attempts, formatTime(c.CreatedAt), formatTime(c.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *challengesRepo) GetChallenge(ctx context.Context, token string) (domain.TwoFactorChallenge, error) {
	var (
		c                    domain.TwoFactorChallenge
		createdAt, expiresAt string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, attempts, created_at, expires_at
		 FROM two_factor_challenges WHERE id = ?`, token,
	).Scan(&c.ID, &c.UserID, &c.Attempts, &createdAt, &expiresAt)
	if err != nil {
		return domain.TwoFactorChallenge{}, mapNotFound(err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.ExpiresAt = parseTime(expiresAt)
	return c, nil
}

func (r *challengesRepo) IncrementChallengeAttempts(ctx context.Context, token string) (domain.TwoFactorChallenge, error) {
	_, err := r.q.ExecContext(ctx,
		`UPDATE two_factor_challenges SET attempts = attempts + 1 WHERE id = ?`, token)
	if err != nil {
		return domain.TwoFactorChallenge{}, err
	}
	return r.GetChallenge(ctx, token)
}

func (r *challengesRepo) DeleteChallenge(ctx context.Context, token string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM two_factor_challenges WHERE id = ?`, token)
	return err
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM two_factor_challenges WHERE expires_at < ?`, formatTime(now))
	return err
}
