package auth

import "time"

// User represents an authenticated user account with its granted roles.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
