package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

func handleError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized access"})

	case errors.Is(err, domain.ErrHabitNotFound),
		errors.Is(err, domain.ErrCompletionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})

	case errors.Is(err, domain.ErrHabitConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "version conflict",
			"message": "data has been modified elsewhere, please reload",
		})

	case errors.Is(err, domain.ErrCompletionExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrHabitTitleEmpty),
		errors.Is(err, domain.ErrHabitTitleTooLong),
		errors.Is(err, domain.ErrHabitInvalidUserID),
		errors.Is(err, domain.ErrHabitDeleted),
		errors.Is(err, domain.ErrInvalidReminder),
		errors.Is(err, domain.ErrInvalidRecurrence),
		errors.Is(err, domain.ErrInvalidCompletion),
		errors.Is(err, domain.ErrInvalidFreezeAmount),
		errors.Is(err, services.ErrFutureCompletion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrFreezeContention),
		errors.Is(err, domain.ErrStreakContention):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "resource busy, retry later"})

	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
