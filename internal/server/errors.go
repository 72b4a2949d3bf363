package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"studytracker/internal/auth"
)

const unknownErrorMessage = "unknown error has occurred"

func statusForKind(k auth.Kind) int {
	switch k {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindUpstream:
		return http.StatusBadGateway
	case auth.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError is the only place errors become HTTP responses.
// Classified errors keep their message; anything else is logged and hidden.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	var svcErr *auth.Error
	if !errors.As(err, &svcErr) {
		s.Logger.Error("unhandled error",
			zap.String("path", r.URL.Path),
			zap.String("requestId", reqID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, unknownErrorMessage)
		return
	}

	status := statusForKind(svcErr.Kind)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("upstream failure",
			zap.String("code", svcErr.Code),
			zap.String("path", r.URL.Path),
			zap.String("requestId", reqID),
			zap.Error(err))
	}
	writeError(w, status, svcErr.Message)
}
