package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"studytracker/internal/auth"
)

type ctxKey string

const userIDContextKey ctxKey = "userId"

// requireAccessToken admits requests carrying a valid accessToken cookie and
// stores the token's user id in the request context.
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.AccessCookieName)
		if err != nil || cookie.Value == "" {
			s.writeServiceError(w, r, auth.ErrMissingToken)
			return
		}

		claims, err := s.Tokens.Verify(cookie.Value, auth.AccessToken)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	if val, ok := ctx.Value(userIDContextKey).(string); ok {
		return val
	}
	return ""
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
				zap.String("ip", s.trustedProxies.clientIP(r)),
			}
			if status >= http.StatusInternalServerError {
				s.Logger.Warn("request", fields...)
				return
			}
			s.Logger.Info("request", fields...)
		}()

		next.ServeHTTP(ww, r)
	})
}
