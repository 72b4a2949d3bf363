package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	providerTimeout       = 10 * time.Second
	usernameCreateRetries = 3
	maxProfileBytes       = 1 << 20
)

// ExternalIdentity is the profile a provider vouches for after a code
// exchange.
type ExternalIdentity struct {
	Provider      Provider
	ProviderID    string
	Email         string
	EmailVerified bool
	Username      string
	Picture       string
}

// IdentityProvider turns an authorization code into an ExternalIdentity.
type IdentityProvider interface {
	Name() Provider
	Identify(ctx context.Context, code string) (*ExternalIdentity, error)
}

// OAuthResolver maps an external identity onto a local account, linking by
// email when the account already exists.
type OAuthResolver struct {
	Users                UserStore
	RequireVerifiedEmail bool
	Logger               *zap.Logger
}

func NewOAuthResolver(users UserStore, requireVerified bool, logger *zap.Logger) *OAuthResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthResolver{Users: users, RequireVerifiedEmail: requireVerified, Logger: logger}
}

func (r *OAuthResolver) Resolve(ctx context.Context, id *ExternalIdentity) (*User, error) {
	if id == nil || id.ProviderID == "" || id.Email == "" {
		return nil, ErrOAuthProfile
	}

	user, err := r.Users.FindByEmailOrProvider(ctx, id.Email, id.Provider, id.ProviderID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return r.link(ctx, user, id)
	}
	return r.create(ctx, id)
}

func (r *OAuthResolver) link(ctx context.Context, user *User, id *ExternalIdentity) (*User, error) {
	linked := user.ProviderID(id.Provider)
	matchedByProvider := linked != nil && *linked == id.ProviderID
	if matchedByProvider {
		return user, nil
	}
	if r.RequireVerifiedEmail && !id.EmailVerified {
		return nil, ErrOAuthEmailUnverified
	}
	if linked != nil && *linked != "" {
		// The account is already tied to a different identity at this
		// provider; signing in by email still works but the link stays.
		r.Logger.Warn("oauth provider id differs from linked id",
			zap.String("userId", user.ID), zap.String("provider", string(id.Provider)))
		return user, nil
	}
	return r.Users.LinkProvider(ctx, user.ID, id.Provider, id.ProviderID, optionalString(id.Picture))
}

func (r *OAuthResolver) create(ctx context.Context, id *ExternalIdentity) (*User, error) {
	nu := NewUser{
		Username: usernameFrom(id),
		Email:    id.Email,
		Picture:  optionalString(id.Picture),
	}
	providerID := id.ProviderID
	switch id.Provider {
	case ProviderGoogle:
		nu.GoogleID = &providerID
	case ProviderGitHub:
		nu.GitHubID = &providerID
	default:
		return nil, fmt.Errorf("unknown provider %q", id.Provider)
	}

	user, err := r.insert(ctx, nu)
	if errors.Is(err, ErrIdentityTaken) || errors.Is(err, ErrEmailTaken) {
		// A concurrent sign-in for the same identity created the row first.
		existing, ferr := r.Users.FindByEmailOrProvider(ctx, id.Email, id.Provider, id.ProviderID)
		if ferr != nil {
			return nil, ferr
		}
		if existing != nil {
			return r.link(ctx, existing, id)
		}
	}
	return user, err
}

// insert retries username collisions with a random suffix.
func (r *OAuthResolver) insert(ctx context.Context, nu NewUser) (*User, error) {
	base := nu.Username
	for attempt := 0; ; attempt++ {
		user, err := r.Users.Create(ctx, nu)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrUsernameTaken) || attempt >= usernameCreateRetries {
			return nil, err
		}
		nu.Username = base + "-" + randomSuffix()
	}
}

var usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func usernameFrom(id *ExternalIdentity) string {
	name := strings.TrimSpace(id.Username)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	name = usernameStrip.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
	if len(name) < minUsernameLength {
		name = "user_" + randomSuffix()
	}
	if len(name) > maxUsernameLength-5 {
		name = name[:maxUsernameLength-5]
	}
	return name
}

func randomSuffix() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%04d", time.Now().UnixNano()%10000)
	}
	return hex.EncodeToString(b)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// exchangeContext carries a bounded http.Client into oauth2 calls.
func exchangeContext(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// exchangeCode runs the server-to-server token exchange.
func exchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, ErrOAuthExchange.Wrap(err)
	}
	return tok, nil
}

// fetchJSON GETs url with the provider token and decodes a 200 response.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrOAuthProfile.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return ErrOAuthProfile.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ErrOAuthProfile.Wrap(fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(out); err != nil {
		return ErrOAuthProfile.Wrap(err)
	}
	return nil
}
