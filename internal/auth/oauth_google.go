package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"studytracker/internal/config"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"

type GoogleProvider struct {
	OAuth       *oauth2.Config
	UserInfoURL string
	HTTPClient  *http.Client
}

func NewGoogleProvider(cfg config.OAuthProvider) *GoogleProvider {
	return &GoogleProvider{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleProvider) Name() Provider { return ProviderGoogle }

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *GoogleProvider) Identify(ctx context.Context, code string) (*ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*providerTimeout)
	defer cancel()
	ctx = exchangeContext(ctx, g.HTTPClient)
	tok, err := exchangeCode(ctx, g.OAuth, code)
	if err != nil {
		return nil, err
	}

	var gu googleUser
	if err := fetchJSON(ctx, g.OAuth.Client(ctx, tok), g.UserInfoURL, &gu); err != nil {
		return nil, err
	}
	if gu.ID == "" || gu.Email == "" {
		return nil, ErrOAuthProfile
	}
	return &ExternalIdentity{
		Provider:      ProviderGoogle,
		ProviderID:    gu.ID,
		Email:         normalizeEmail(gu.Email),
		EmailVerified: gu.VerifiedEmail,
		Username:      gu.Name,
		Picture:       gu.Picture,
	}, nil
}
