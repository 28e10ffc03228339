package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dm-service/internal/identity"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
)

func currentUserID(c *gin.Context) uuid.UUID {
	if val, ok := c.Get(middleware.UserIDKey); ok {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func requestIDFromContext(c *gin.Context) string {
	return observability.RequestIDFromRequest(c.Request)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrNotParticipant),
		errors.Is(err, repositories.ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrMessageDeleted):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrEmptyContent),
		errors.Is(err, repositories.ErrInvalidKind),
		errors.Is(err, repositories.ErrSelfChat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}
