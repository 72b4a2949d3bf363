package auth

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
)

type SignUpInput struct {
	Username string
	Email    string
	Password string
}

// AccountService covers password signup and profile maintenance.
type AccountService struct {
	Users  UserStore
	Hasher PasswordHasher
}

func NewAccountService(users UserStore, hasher PasswordHasher) *AccountService {
	return &AccountService{Users: users, Hasher: hasher}
}

func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if !ValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	return s.Users.Create(ctx, NewUser{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: &hash,
	})
}

func (s *AccountService) Profile(ctx context.Context, userID string) (*User, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) UpdateUsername(ctx context.Context, userID, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrMissingFields
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	return s.Users.UpdateUsername(ctx, userID, username)
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minUsernameLength || n > maxUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}
