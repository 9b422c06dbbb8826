package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, in NewUser) (User, error)
	CreateFirstAdmin(ctx context.Context, in NewUser) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance. audit may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser registers a user with exactly one enumerated role.
func (s *Service) CreateUser(ctx context.Context, actorID int64, input CreateInput) (User, error) {
	role, err := rbac.ParseRole(input.Role)
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	hash, err := s.hash(input.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:           normalizeEmail(input.Email),
		PasswordHash:    hash,
		FullName:        strings.TrimSpace(input.FullName),
		Department:      strings.TrimSpace(input.Department),
		PrimaryFunction: strings.TrimSpace(input.PrimaryFunction),
		Roles:           []string{role.String()},
	})
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "user.create", user)
	return user, nil
}

// Bootstrap creates the first administrator of an empty installation.
func (s *Service) Bootstrap(ctx context.Context, input BootstrapInput) (User, error) {
	hash, err := s.hash(input.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateFirstAdmin(ctx, NewUser{
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
		Department:   "Administration",
		Roles:        []string{rbac.RoleAdmin.String()},
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("bootstrap administrator created", slog.Int64("user_id", user.ID))
	s.recordAudit(ctx, user.ID, "user.bootstrap", user)
	return user, nil
}

func (s *Service) hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(out), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, user User) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityUser,
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     map[string]any{"email": user.Email, "roles": user.Roles},
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
