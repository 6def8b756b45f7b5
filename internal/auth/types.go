package auth

import (
	"context"
	"time"
)

// RefereeProfile holds referee-specific attributes of a user.
type RefereeProfile struct {
	ID            string `json:"id"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
	Category      string `json:"category,omitempty"`
}

// User is a credential record owned by the CredentialStore.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	FirstName    string
	LastName     string
	Phone        string
	Referee      *RefereeProfile
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the authenticated identity attached to a request.
// It never carries the password hash.
type Principal struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Active      bool            `json:"active"`
	FirstName   string          `json:"firstName,omitempty"`
	LastName    string          `json:"lastName,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Referee     *RefereeProfile `json:"referee,omitempty"`
	LastLoginAt *time.Time      `json:"lastLoginAt,omitempty"`
}

// NewPrincipal projects user into a Principal.
func NewPrincipal(user *User) Principal {
	p := Principal{
		ID:          user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Active:      user.Active,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		LastLoginAt: user.LastLoginAt,
	}
	if user.Referee != nil {
		ref := *user.Referee
		p.Referee = &ref
	}
	return p
}

// CredentialStore is the persistence collaborator holding user records.
// Lookups return ErrUserNotFound when no record matches.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}
