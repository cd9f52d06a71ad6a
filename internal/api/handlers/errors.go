package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/pkg/errors"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch err.(type) {
	case *errors.ErrForbidden:
		return http.StatusForbidden
	case *errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case *errors.ErrInvalidPayload:
		return http.StatusUnprocessableEntity
	case *errors.ErrNotFound:
		return http.StatusNotFound
	case *errors.ErrInvalidStateTransition, *errors.ErrDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Unexpected errors are logged and hidden behind msg.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
