package domain

import (
	"context"
	"time"
)

const (
	UserRoleAdmin    = "admin"
	UserRoleEmployee = "employee"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"` // argon2id
	SlackID      string    `json:"slack_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetBySlackID(ctx context.Context, slackID string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
}

// APIKey is a hashed machine credential bound to a user. Only the prefix is
// stored in clear for lookup.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Prefix     string     `json:"prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	ListByUser(ctx context.Context, userID int64) ([]*APIKey, error)
	Delete(ctx context.Context, userID, id int64) error
	UpdateLastUsed(ctx context.Context, id int64) error
}
