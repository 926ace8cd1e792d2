package handler

import (
	"errors"
	"log"
	"net/http"

	"chatline/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": reason}. Internal failures are logged and
// reported without detail.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		reason = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": reason})
}
