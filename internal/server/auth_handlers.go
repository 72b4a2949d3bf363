package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"studytracker/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	ip := s.trustedProxies.clientIP(r)
	if s.Limiter != nil && s.Limiter.IsIPBanned(ctx, ip) {
		s.writeServiceError(w, r, auth.ErrTooManyAttempts)
		return
	}

	user, pair, err := s.Sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if s.Limiter != nil {
				if lerr := s.Limiter.RegisterLoginFailure(ctx, ip); lerr != nil {
					s.Logger.Warn("login: register failure", zap.Error(lerr))
				}
			}
			s.audit(r, auth.AuditLoginFailed, "", nil)
		}
		s.writeServiceError(w, r, err)
		return
	}

	if s.Limiter != nil {
		s.Limiter.ResetLogin(ctx, ip)
	}
	auth.SetTokenCookies(w, pair, s.Tokens.AccessTTL(), s.Tokens.RefreshTTL())
	s.audit(r, auth.AuditLogin, user.ID, map[string]any{"method": "password"})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Authenticated"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(auth.RefreshCookieName); err == nil {
		token = cookie.Value
	}

	access, err := s.Sessions.Refresh(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	auth.SetAccessCookie(w, access, s.Tokens.AccessTTL())
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Access token refreshed"})
}

// handleLogout only clears cookies; tokens stay valid until they expire.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var userID string
	if claims, err := s.Tokens.Verify(cookie.Value, auth.RefreshToken); err == nil {
		userID = claims.UserID
	}

	auth.ClearTokenCookies(w)
	s.audit(r, auth.AuditLogout, userID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
