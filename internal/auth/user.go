package auth

import (
	"context"
	"time"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// User is a stored identity. An account created through OAuth has no
// PasswordHash until the owner sets one.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash *string
	GoogleID     *string
	GitHubID     *string
	Picture      *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsOAuthLinked reports whether any external provider id is attached.
func (u *User) IsOAuthLinked() bool {
	return (u.GoogleID != nil && *u.GoogleID != "") || (u.GitHubID != nil && *u.GitHubID != "")
}

func (u *User) ProviderID(p Provider) *string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderGitHub:
		return u.GitHubID
	}
	return nil
}

type NewUser struct {
	Username     string
	Email        string
	PasswordHash *string
	GoogleID     *string
	GitHubID     *string
	Picture      *string
}

// UserStore persists identities. Finders return (nil, nil) when nothing
// matches. Create and the update methods return ErrEmailTaken or
// ErrUsernameTaken on uniqueness violations.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByEmailOrProvider prefers a provider-id match over an email match.
	FindByEmailOrProvider(ctx context.Context, email string, provider Provider, providerID string) (*User, error)
	Create(ctx context.Context, u NewUser) (*User, error)
	LinkProvider(ctx context.Context, userID string, provider Provider, providerID string, picture *string) (*User, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
	UpdateUsername(ctx context.Context, userID, username string) (*User, error)
}
