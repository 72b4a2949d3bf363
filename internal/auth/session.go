package auth

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SessionService handles password login and access-token refresh.
type SessionService struct {
	Users  UserStore
	Hasher PasswordHasher
	Tokens *TokenService
	Logger *zap.Logger

	// dummyHash is compared against when no user matches, so a missing
	// account costs the same hashing work as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(users UserStore, hasher PasswordHasher, tokens *TokenService, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{Users: users, Hasher: hasher, Tokens: tokens, Logger: logger}
}

// Login returns the user and a fresh token pair. An unknown email, an
// account without a password and a wrong password all fail with
// ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrMissingCredentials
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if user == nil || !user.HasPassword() {
		s.Hasher.Compare(s.placeholderHash(), password)
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if !s.Hasher.Compare(*user.PasswordHash, password) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.Tokens.IssuePair(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh issues a new access token. The refresh token itself is not
// rotated and stays valid until it expires.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrMissingToken
	}
	claims, err := s.Tokens.Verify(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrSessionUserGone
	}
	return s.Tokens.IssueAccessToken(user.ID)
}

func (s *SessionService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.Hasher.Hash("placeholder-password")
		if err != nil {
			s.Logger.Warn("placeholder hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
