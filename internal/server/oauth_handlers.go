package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"studytracker/internal/auth"
)

// handleOAuthCallback completes the authorization-code flow for provider:
// exchange the code, resolve or create the account, set both cookies and
// send the browser back to the front end.
func (s *Server) handleOAuthCallback(provider auth.Provider, honorPath bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idp, ok := s.Providers[provider]
		if !ok {
			writeError(w, http.StatusNotFound, "Endpoint not found")
			return
		}

		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			s.writeServiceError(w, r, auth.ErrMissingCode)
			return
		}

		ctx := r.Context()
		identity, err := idp.Identify(ctx, code)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		user, err := s.Resolver.Resolve(ctx, identity)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		pair, err := s.Tokens.IssuePair(user.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		auth.SetTokenCookies(w, pair, s.Tokens.AccessTTL(), s.Tokens.RefreshTTL())
		s.audit(r, auth.AuditOAuthLogin, user.ID, map[string]any{"provider": string(provider)})
		s.Logger.Debug("oauth login", zap.String("provider", string(provider)), zap.String("userId", user.ID))

		target := s.Config.FrontendURL
		if honorPath {
			if path := r.URL.Query().Get("path"); path != "" {
				target += sanitizeReturnTo(path)
			}
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}
