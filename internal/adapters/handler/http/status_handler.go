package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

type StatusHandler struct {
	svc    *services.StatusService
	logger *zap.Logger
}

func NewStatusHandler(svc *services.StatusService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		svc:    svc,
		logger: orNop(logger).Named("status_handler"),
	}
}

func (h *StatusHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.Status)
}

// Status returns the overdue report. ?refresh=true skips the snapshot cache.
func (h *StatusHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	refresh := false
	if raw := c.Query("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh must be a boolean"})
			return
		}
		refresh = v
	}

	report, err := h.svc.Status(c.Request.Context(), userID, refresh)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
