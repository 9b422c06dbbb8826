package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
)

// unknownUserHash is compared against when the email has no account, so a
// miss costs the same bcrypt work as a wrong password.
var unknownUserHash, _ = bcrypt.GenerateFromPassword([]byte("diptrack-unknown-user"), bcrypt.DefaultCost)

// Service checks credentials and records login sessions.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Every failure reports
// shared.ErrInvalidCredentials so callers cannot probe which accounts exist.
// Roles on the returned user are canonical names; unrecognised ones are dropped.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	user.Roles = canonicalRoles(user.Roles)
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func canonicalRoles(raw []string) []string {
	seen := make(map[rbac.Role]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		role, err := rbac.ParseRole(name)
		if err != nil {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, string(role))
	}
	return out
}
