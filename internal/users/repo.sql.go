package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users with their roles ordered by name.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
SELECT u.id, u.email, u.full_name, u.department, u.primary_function, u.is_active,
       COALESCE(array_agg(ur.role ORDER BY ur.role) FILTER (WHERE ur.role IS NOT NULL), '{}'),
       u.created_at, u.updated_at
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
GROUP BY u.id
ORDER BY u.full_name, u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.FullName, &user.Department, &user.PrimaryFunction,
			&user.IsActive, &user.Roles, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser inserts the user and its roles in one transaction.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = insertUser(ctx, tx, in)
		return err
	})
	return created, err
}

// CreateFirstAdmin inserts in only while the users table is empty.
func (r *Repository) CreateFirstAdmin(ctx context.Context, in NewUser) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("users: lock: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
			return fmt.Errorf("users: count: %w", err)
		}
		if exists {
			return fmt.Errorf("bootstrap already completed: %w", httpx.ErrForbidden)
		}
		var err error
		created, err = insertUser(ctx, tx, in)
		return err
	})
	return created, err
}

func insertUser(ctx context.Context, tx pgx.Tx, in NewUser) (User, error) {
	user := User{
		Email:           in.Email,
		FullName:        in.FullName,
		Department:      in.Department,
		PrimaryFunction: in.PrimaryFunction,
		IsActive:        true,
		Roles:           in.Roles,
	}
	err := tx.QueryRow(ctx, `
INSERT INTO users (email, full_name, password_hash, department, primary_function, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING id, created_at, updated_at`,
		in.Email, in.FullName, in.PasswordHash, in.Department, in.PrimaryFunction,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("email %s already registered: %w", in.Email, httpx.ErrDuplicate)
		}
		return User{}, fmt.Errorf("users: insert: %w", err)
	}
	for _, role := range in.Roles {
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, user.ID, role); err != nil {
			return User{}, fmt.Errorf("users: grant role %s: %w", role, err)
		}
	}
	return user, nil
}
