package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"studytracker/internal/auth"
	"studytracker/internal/auth/authtest"
	"studytracker/internal/config"
)

// providerServer fakes a token endpoint plus the profile APIs of both
// providers.
type providerServer struct {
	*httptest.Server
	googleUser   map[string]any
	githubUser   map[string]any
	githubEmails []map[string]any
	profileCode  int
}

func newProviderServer(t *testing.T) *providerServer {
	t.Helper()
	ps := &providerServer{profileCode: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
	})
	profile := func(body func() any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer provider-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if ps.profileCode != http.StatusOK {
				w.WriteHeader(ps.profileCode)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body())
		}
	}
	mux.HandleFunc("/userinfo", profile(func() any { return ps.googleUser }))
	mux.HandleFunc("/user", profile(func() any { return ps.githubUser }))
	mux.HandleFunc("/user/emails", profile(func() any { return ps.githubEmails }))

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func (ps *providerServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{TokenURL: ps.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
}

func (ps *providerServer) google() *auth.GoogleProvider {
	g := auth.NewGoogleProvider(config.OAuthProvider{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/auth/google"})
	g.OAuth.Endpoint = ps.endpoint()
	g.UserInfoURL = ps.URL + "/userinfo"
	g.HTTPClient = ps.Client()
	return g
}

func (ps *providerServer) github() *auth.GitHubProvider {
	g := auth.NewGitHubProvider(config.OAuthProvider{ClientID: "id", ClientSecret: "secret"})
	g.OAuth.Endpoint = ps.endpoint()
	g.APIBaseURL = ps.URL
	g.HTTPClient = ps.Client()
	return g
}

func TestGoogleIdentify(t *testing.T) {
	ps := newProviderServer(t)
	ps.googleUser = map[string]any{
		"id": "g-123", "email": "Ada@X.com", "verified_email": true,
		"name": "Ada Lovelace", "picture": "https://img/ada.png",
	}

	id, err := ps.google().Identify(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderGoogle, id.Provider)
	assert.Equal(t, "g-123", id.ProviderID)
	assert.Equal(t, "ada@x.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Ada Lovelace", id.Username)
	assert.Equal(t, "https://img/ada.png", id.Picture)
}

func TestIdentifyExchangeFailure(t *testing.T) {
	ps := newProviderServer(t)

	_, err := ps.google().Identify(context.Background(), "bad-code")
	assert.ErrorIs(t, err, auth.ErrOAuthExchange)
	assert.Equal(t, auth.KindOAuthProvider, auth.KindOf(err))

	_, err = ps.github().Identify(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrMissingCode)
}

func TestIdentifyProfileFailure(t *testing.T) {
	ps := newProviderServer(t)
	ps.profileCode = http.StatusBadGateway

	_, err := ps.google().Identify(context.Background(), "good-code")
	assert.ErrorIs(t, err, auth.ErrOAuthProfile)
	assert.Equal(t, auth.KindUpstream, auth.KindOf(err))
}

func TestGitHubIdentify(t *testing.T) {
	ps := newProviderServer(t)
	ps.githubUser = map[string]any{"id": 4242, "login": "octo", "avatar_url": "https://img/octo.png"}
	ps.githubEmails = []map[string]any{
		{"email": "old@x.com", "primary": false, "verified": true},
		{"email": "Octo@X.com", "primary": true, "verified": true},
	}

	id, err := ps.github().Identify(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderGitHub, id.Provider)
	assert.Equal(t, "4242", id.ProviderID)
	assert.Equal(t, "octo@x.com", id.Email)
	assert.Equal(t, "octo", id.Username)
	assert.True(t, id.EmailVerified)
}

func TestGitHubIdentifyWithoutPrimaryEmail(t *testing.T) {
	ps := newProviderServer(t)
	ps.githubUser = map[string]any{"id": 4242, "login": "octo"}
	ps.githubEmails = []map[string]any{{"email": "octo@x.com", "primary": false, "verified": true}}

	_, err := ps.github().Identify(context.Background(), "good-code")
	assert.ErrorIs(t, err, auth.ErrOAuthNoPrimaryEmail)
	assert.Equal(t, auth.KindUpstream, auth.KindOf(err))
}

func TestResolveCreatesAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resolver := auth.NewOAuthResolver(f.users, true, nil)

	user, err := resolver.Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGitHub, ProviderID: "77", Email: "octo@x.com",
		Username: "octo", Picture: "https://img/octo.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "octo", user.Username)
	require.NotNil(t, user.GitHubID)
	assert.Equal(t, "77", *user.GitHubID)
	assert.Nil(t, user.PasswordHash)

	again, err := resolver.Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGitHub, ProviderID: "77", Email: "octo@x.com", Username: "octo",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, 1, f.users.Len())
}

func TestResolveMergesByVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := f.signUp(t, "ada", "a@x.com", "Secret123")
	resolver := auth.NewOAuthResolver(f.users, true, nil)

	user, err := resolver.Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGoogle, ProviderID: "g-1", Email: "a@x.com",
		EmailVerified: true, Username: "Ada", Picture: "https://img/ada.png",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "g-1", *user.GoogleID)
	require.NotNil(t, user.Picture)
	assert.Equal(t, "https://img/ada.png", *user.Picture)
	assert.True(t, user.HasPassword())
	assert.Equal(t, 1, f.users.Len())
}

func TestResolveRejectsUnverifiedMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Secret123")
	id := &auth.ExternalIdentity{Provider: auth.ProviderGitHub, ProviderID: "9", Email: "a@x.com", Username: "ada"}

	_, err := auth.NewOAuthResolver(f.users, true, nil).Resolve(ctx, id)
	assert.ErrorIs(t, err, auth.ErrOAuthEmailUnverified)

	user, err := auth.NewOAuthResolver(f.users, false, nil).Resolve(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, user.GitHubID)
	assert.Equal(t, "9", *user.GitHubID)
}

func TestResolveUsernameCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "octo", "first@x.com", "Secret123")

	user, err := auth.NewOAuthResolver(f.users, true, nil).Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGitHub, ProviderID: "5", Email: "second@x.com", Username: "octo",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "octo", user.Username)
	assert.Contains(t, user.Username, "octo-")
}

// lateUserStore misses on the first lookup, as if a concurrent callback
// inserted the same identity between lookup and insert.
type lateUserStore struct {
	*authtest.UserStore
	misses int
}

func (s *lateUserStore) FindByEmailOrProvider(ctx context.Context, email string, provider auth.Provider, providerID string) (*auth.User, error) {
	if s.misses > 0 {
		s.misses--
		return nil, nil
	}
	return s.UserStore.FindByEmailOrProvider(ctx, email, provider, providerID)
}

func TestResolveConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := &auth.ExternalIdentity{
		Provider: auth.ProviderGoogle, ProviderID: "g-42", Email: "race@x.com",
		EmailVerified: true, Username: "racer",
	}

	first, err := auth.NewOAuthResolver(f.users, true, nil).Resolve(ctx, id)
	require.NoError(t, err)

	late := &lateUserStore{UserStore: f.users, misses: 1}
	second, err := auth.NewOAuthResolver(late, true, nil).Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.users.Len())
}

func TestResolveProviderIDOnOtherEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resolver := auth.NewOAuthResolver(f.users, true, nil)

	first, err := resolver.Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGitHub, ProviderID: "88", Email: "old@x.com", Username: "octo",
	})
	require.NoError(t, err)

	// The provider account changed its email; the provider id still wins.
	late := &lateUserStore{UserStore: f.users, misses: 1}
	again, err := auth.NewOAuthResolver(late, true, nil).Resolve(ctx, &auth.ExternalIdentity{
		Provider: auth.ProviderGitHub, ProviderID: "88", Email: "new@x.com", Username: "octo",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, f.users.Len())
}
