package server

import (
	"net/http"
	"strconv"
	"time"

	"studytracker/internal/auth"
)

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Accounts.SignUp(r.Context(), auth.SignUpInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r, auth.AuditSignup, user.ID, nil)
	writeJSON(w, http.StatusCreated, map[string]string{
		"email":    user.Email,
		"username": user.Username,
	})
}

type profileResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	Picture      *string `json:"picture"`
	HasPassword  bool    `json:"hasPassword"`
	GoogleLinked bool    `json:"googleLinked"`
	GitHubLinked bool    `json:"githubLinked"`
}

func newProfileResponse(u *auth.User) profileResponse {
	return profileResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Picture:      u.Picture,
		HasPassword:  u.HasPassword(),
		GoogleLinked: u.GoogleID != nil,
		GitHubLinked: u.GitHubID != nil,
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.Accounts.Profile(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(user))
}

type updateUsernameRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req updateUsernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Accounts.UpdateUsername(r.Context(), userIDFromContext(r.Context()), req.Username)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(user))
}

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

type activityEntry struct {
	Event     string         `json:"event"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent"`
	At        string         `json:"at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// handleActivity lists the caller's recent security events.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries := []activityEntry{}
	if s.Audit != nil {
		events, err := s.Audit.Recent(r.Context(), userIDFromContext(r.Context()), limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		for _, e := range events {
			entries = append(entries, activityEntry{
				Event:     e.EventType,
				IP:        e.IP,
				UserAgent: e.UserAgent,
				At:        e.Timestamp.UTC().Format(time.RFC3339),
				Meta:      e.Meta,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
