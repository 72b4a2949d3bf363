package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	RedisURL       string   `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	Log    LogConfig
	Tokens TokenConfig
	OTP    OTPConfig
	Email  EmailConfig
	OAuth  OAuthConfig
}

type LogConfig struct {
	File       string `env:"LOG_FILE" envDefault:"logs/server.log"`
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// TokenConfig holds the two signing secrets. They must differ so that a
// refresh token can never pass the access-token verifier.
type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`
}

type OTPConfig struct {
	TTL time.Duration `env:"OTP_TTL" envDefault:"600s"`
}

type EmailConfig struct {
	Host     string `env:"EMAIL_SERVER_HOST"`
	Port     int    `env:"EMAIL_SERVER_PORT" envDefault:"587"`
	Username string `env:"EMAIL_SERVER_USER"`
	Password string `env:"EMAIL_SERVER_PASSWORD"`
	From     string `env:"EMAIL_FROM"`
	Secure   bool   `env:"EMAIL_SERVER_SECURE"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

func (e EmailConfig) PostmarkEnabled() bool {
	return e.PostmarkServerToken != "" && e.From != ""
}

type OAuthProvider struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

func (p OAuthProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type OAuthConfig struct {
	Google OAuthProvider `envPrefix:"GOOGLE_"`
	GitHub OAuthProvider `envPrefix:"GITHUB_"`

	// RequireVerifiedEmail blocks merging an identity into an existing
	// account by email unless the provider vouches for the address.
	RequireVerifiedEmail bool `env:"OAUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"true"`
}

// Load reads the process environment (and an optional .env file) once.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Email.Host = clean(cfg.Email.Host)
	cfg.Email.Username = clean(cfg.Email.Username)
	cfg.Email.Password = clean(cfg.Email.Password)
	cfg.Email.From = clean(cfg.Email.From)
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.AllowedOrigins = compact(cfg.AllowedOrigins)
	cfg.TrustedProxies = compact(cfg.TrustedProxies)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Tokens.AccessSecret == "" || c.Tokens.RefreshSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP_TTL must be positive")
	}
	u, err := url.Parse(c.FrontendURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("FRONTEND_URL must be an absolute URL, got %q", c.FrontendURL)
	}
	return nil
}

func clean(val string) string {
	return strings.Trim(val, "\"' \t\r\n")
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
