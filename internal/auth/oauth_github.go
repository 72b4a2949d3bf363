package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"studytracker/internal/config"
)

const githubAPIBaseURL = "https://api.github.com"

type GitHubProvider struct {
	OAuth      *oauth2.Config
	APIBaseURL string
	HTTPClient *http.Client
}

func NewGitHubProvider(cfg config.OAuthProvider) *GitHubProvider {
	return &GitHubProvider{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		APIBaseURL: githubAPIBaseURL,
	}
}

func (g *GitHubProvider) Name() Provider { return ProviderGitHub }

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHubProvider) Identify(ctx context.Context, code string) (*ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*providerTimeout)
	defer cancel()
	ctx = exchangeContext(ctx, g.HTTPClient)
	tok, err := exchangeCode(ctx, g.OAuth, code)
	if err != nil {
		return nil, err
	}
	client := g.OAuth.Client(ctx, tok)
	base := strings.TrimRight(g.APIBaseURL, "/")

	var gu githubUser
	if err := fetchJSON(ctx, client, base+"/user", &gu); err != nil {
		return nil, err
	}
	if gu.ID == 0 {
		return nil, ErrOAuthProfile
	}

	var emails []githubEmail
	if err := fetchJSON(ctx, client, base+"/user/emails", &emails); err != nil {
		return nil, err
	}
	primary := primaryEmail(emails)
	if primary == nil {
		return nil, ErrOAuthNoPrimaryEmail
	}

	return &ExternalIdentity{
		Provider:      ProviderGitHub,
		ProviderID:    strconv.FormatInt(gu.ID, 10),
		Email:         normalizeEmail(primary.Email),
		EmailVerified: primary.Verified,
		Username:      gu.Login,
		Picture:       gu.AvatarURL,
	}, nil
}

func primaryEmail(emails []githubEmail) *githubEmail {
	for i := range emails {
		if emails[i].Primary && emails[i].Email != "" {
			return &emails[i]
		}
	}
	return nil
}
