package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Nama         string    `json:"nama"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SessionUser is what a resolved session exposes. It never carries the password hash.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Nama  string `json:"nama"`
	Role  Role   `json:"role"`
}

func (u *User) SessionUser() *SessionUser {
	return &SessionUser{
		ID:    u.ID,
		Email: u.Email,
		Nama:  u.Nama,
		Role:  u.Role,
	}
}

// CredentialStore is the persistence the auth core needs.
// Lookups of missing users return ErrUserNotFound, duplicate emails ErrEmailTaken.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}
