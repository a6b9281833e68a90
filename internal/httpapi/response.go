package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, errorResponse{Success: false, Error: publicMessage(err)})
}

// publicMessage drops the taxonomy prefix from validation errors so the
// submitter sees only the field problem.
func publicMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, apperrors.ErrValidation) {
		msg = strings.TrimPrefix(msg, apperrors.ErrValidation.Error()+": ")
	}
	return msg
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrQueue):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// by the access log and answered with a generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, errorResponse{Success: false, Error: http.StatusText(status)})
		return
	}
	writeError(c, status, err)
}
