// Package authtest provides in-memory collaborators for exercising the auth
// services without Postgres, Redis or a mail relay.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studytracker/internal/auth"
)

// UserStore is an auth.UserStore with the same uniqueness rules as the
// users table.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*auth.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*auth.User)}
}

func (s *UserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.byEmailLocked(email)), nil
}

func (s *UserStore) FindByEmailOrProvider(_ context.Context, email string, provider auth.Provider, providerID string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if id := u.ProviderID(provider); id != nil && *id == providerID {
			return clone(u), nil
		}
	}
	return clone(s.byEmailLocked(email)), nil
}

func (s *UserStore) Create(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(nu.Email))
	for _, u := range s.users {
		if u.Username == nu.Username {
			return nil, auth.ErrUsernameTaken
		}
		if u.Email == email {
			return nil, auth.ErrEmailTaken
		}
		if sameID(u.GoogleID, nu.GoogleID) || sameID(u.GitHubID, nu.GitHubID) {
			return nil, auth.ErrIdentityTaken
		}
	}

	now := time.Now().UTC()
	u := &auth.User{
		ID:           uuid.NewString(),
		Username:     nu.Username,
		Email:        email,
		PasswordHash: copyPtr(nu.PasswordHash),
		GoogleID:     copyPtr(nu.GoogleID),
		GitHubID:     copyPtr(nu.GitHubID),
		Picture:      copyPtr(nu.Picture),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return clone(u), nil
}

func (s *UserStore) LinkProvider(_ context.Context, userID string, provider auth.Provider, providerID string, picture *string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	for _, other := range s.users {
		if other.ID != userID {
			if linked := other.ProviderID(provider); linked != nil && *linked == providerID {
				return nil, auth.ErrIdentityTaken
			}
		}
	}
	id := providerID
	switch provider {
	case auth.ProviderGoogle:
		if u.GoogleID == nil {
			u.GoogleID = &id
		}
	case auth.ProviderGitHub:
		if u.GitHubID == nil {
			u.GitHubID = &id
		}
	}
	if u.Picture == nil {
		u.Picture = copyPtr(picture)
	}
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

func (s *UserStore) UpdatePassword(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = &hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *UserStore) UpdateUsername(_ context.Context, userID, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	for id, other := range s.users {
		if id != userID && other.Username == username {
			return nil, auth.ErrUsernameTaken
		}
	}
	u.Username = username
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

// Delete removes a user outright, for tests that need a vanished account.
func (s *UserStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *UserStore) byEmailLocked(email string) *auth.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func sameID(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clone(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PasswordHash = copyPtr(u.PasswordHash)
	cp.GoogleID = copyPtr(u.GoogleID)
	cp.GitHubID = copyPtr(u.GitHubID)
	cp.Picture = copyPtr(u.Picture)
	return &cp
}
