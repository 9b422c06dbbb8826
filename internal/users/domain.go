package users

import "time"

// User represents a user account for management.
type User struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	FullName        string    `json:"fullName"`
	Department      string    `json:"department,omitempty"`
	PrimaryFunction string    `json:"primaryFunction,omitempty"`
	IsActive        bool      `json:"isActive"`
	Roles           []string  `json:"roles"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CreateInput is the payload for creating a user.
type CreateInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	FullName        string `json:"fullName" validate:"required,max=128"`
	Role            string `json:"role" validate:"required"`
	Department      string `json:"department" validate:"max=128"`
	PrimaryFunction string `json:"primaryFunction" validate:"max=128"`
}

// BootstrapInput creates the first administrator.
type BootstrapInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,max=128"`
}

// NewUser is a validated user ready to be stored.
type NewUser struct {
	Email           string
	PasswordHash    string
	FullName        string
	Department      string
	PrimaryFunction string
	Roles           []string
}
