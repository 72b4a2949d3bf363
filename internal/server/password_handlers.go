package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studytracker/internal/auth"
	"studytracker/internal/i18n"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Resets.ForgotPassword(r.Context(), req.Email, i18n.LocaleFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r, auth.AuditPasswordResetRequested, user.ID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent to your email"})
}

// otpValue accepts the passcode as a JSON number or string.
type otpValue string

func (o *otpValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = otpValue(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*o = otpValue(strconv.FormatInt(n, 10))
	return nil
}

type resetPasswordRequest struct {
	OTP             otpValue `json:"otp"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	if s.Limiter != nil {
		locked, _, err := s.Limiter.RegisterResetAttempt(ctx, s.trustedProxies.clientIP(r))
		if err != nil {
			s.Logger.Warn("reset: rate limit check failed", zap.Error(err))
		} else if locked {
			s.writeServiceError(w, r, auth.ErrTooManyAttempts)
			return
		}
	}

	user, err := s.Resets.ResetPassword(ctx, string(req.OTP), req.Password, req.ConfirmPassword, i18n.LocaleFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r, auth.AuditPasswordReset, user.ID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successful"})
}

type setNewPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) handleSetNewPassword(w http.ResponseWriter, r *http.Request) {
	var req setNewPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.Resets.SetNewPassword(r.Context(), userIDFromContext(r.Context()), req.Password, req.ConfirmPassword, i18n.LocaleFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r, auth.AuditPasswordSet, user.ID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
