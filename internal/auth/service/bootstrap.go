package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foliosite/folio/internal/auth/domain"
	"github.com/foliosite/folio/internal/auth/store"
	"github.com/foliosite/folio/pkg/cryptox"
	"github.com/foliosite/folio/pkg/idx"
)

// BootstrapService creates the initial admin account from configuration.
// Registration requires an admin token, so a fresh install needs one
// account seeded out of band.
type BootstrapService struct {
	Store  store.Store
	Logger *slog.Logger

	AdminUsername string
	AdminPassword string // empty means generate one and log it
}

// EnsureAdmin creates the configured admin account if no users exist.
// Idempotent: an already-populated store is left untouched.
func (s *BootstrapService) EnsureAdmin(ctx context.Context) error {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: check users: %w", err)
	}
	if !empty {
		return nil
	}

	if s.AdminUsername == "" {
		s.Logger.Warn("no users exist and no admin username configured, skipping bootstrap")
		return nil
	}

	password := s.AdminPassword
	generated := false
	if password == "" {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return fmt.Errorf("bootstrap: generate password: %w", err)
		}
		generated = true
	} else if err := ValidatePassword(password); err != nil {
		return errors.New("bootstrap: configured admin password fails the password policy")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("bootstrap: hash password: %w", err)
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     s.AdminUsername,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return fmt.Errorf("bootstrap: create admin: %w", err)
	}

	s.Logger.Info("bootstrapped admin account",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	if generated {
		// One-time credential disclosure; rotate it after first login.
		s.Logger.Warn("generated admin password", slog.String("password", password))
	}
	return nil
}
