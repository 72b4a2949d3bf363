package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studytracker/internal/config"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

type TokenClaims struct {
	UserID string    `json:"userId"`
	Type   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	Access  string
	Refresh string
}

// TokenService issues and verifies the stateless session tokens. Access and
// refresh tokens are signed with different secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(cfg config.TokenConfig) *TokenService {
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(userID string) (string, error) {
	return s.issue(userID, AccessToken)
}

func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	return s.issue(userID, RefreshToken)
}

func (s *TokenService) IssuePair(userID string) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *TokenService) issue(userID string, kind TokenKind) (string, error) {
	if userID == "" {
		return "", errors.New("token subject is required")
	}
	secret, ttl := s.keyFor(kind)
	now := s.now()
	claims := TokenClaims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the signature with the secret for kind, the expiry, and the
// typ claim. Every failure is ErrInvalidToken.
func (s *TokenService) Verify(token string, kind TokenKind) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	secret, _ := s.keyFor(kind)

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken.Wrap(err)
	}
	if claims.Type != kind || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == RefreshToken {
		return s.refreshSecret, s.refreshTTL
	}
	return s.accessSecret, s.accessTTL
}
