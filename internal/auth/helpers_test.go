package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"studytracker/internal/auth"
	"studytracker/internal/auth/authtest"
	"studytracker/internal/config"
)

const otpTTL = 600 * time.Second

type fixture struct {
	users    *authtest.UserStore
	otps     *authtest.OTPStore
	mailer   *authtest.Mailer
	clock    *authtest.Clock
	hasher   *auth.BcryptHasher
	tokens   *auth.TokenService
	sessions *auth.SessionService
	resets   *auth.PasswordResetService
	accounts *auth.AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := authtest.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		users:  authtest.NewUserStore(),
		otps:   authtest.NewOTPStore(otpTTL, clock),
		mailer: &authtest.Mailer{},
		clock:  clock,
		hasher: &auth.BcryptHasher{Cost: bcrypt.MinCost},
		tokens: auth.NewTokenService(config.TokenConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
		}),
	}
	f.sessions = auth.NewSessionService(f.users, f.hasher, f.tokens, nil)
	f.resets = auth.NewPasswordResetService(f.users, f.otps, f.hasher, f.mailer, otpTTL, nil).WithClock(clock.Now)
	f.accounts = auth.NewAccountService(f.users, f.hasher)
	return f
}

func (f *fixture) signUp(t *testing.T, username, email, password string) *auth.User {
	t.Helper()
	u, err := f.accounts.SignUp(context.Background(), auth.SignUpInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func (f *fixture) oauthUser(t *testing.T, username, email string, provider auth.Provider, id string) *auth.User {
	t.Helper()
	nu := auth.NewUser{Username: username, Email: email}
	switch provider {
	case auth.ProviderGoogle:
		nu.GoogleID = &id
	case auth.ProviderGitHub:
		nu.GitHubID = &id
	}
	u, err := f.users.Create(context.Background(), nu)
	require.NoError(t, err)
	return u
}
