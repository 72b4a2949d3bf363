package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// SetTokenCookies writes both session cookies. SameSite=None is required
// because the front end runs on a different origin.
func SetTokenCookies(w http.ResponseWriter, pair TokenPair, accessTTL, refreshTTL time.Duration) {
	SetAccessCookie(w, pair.Access, accessTTL)
	setCookie(w, RefreshCookieName, pair.Refresh, refreshTTL)
}

func SetAccessCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	setCookie(w, AccessCookieName, token, ttl)
}

func ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
