package http

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

type CompletionHandler struct {
	svc    *services.CompletionService
	logger *zap.Logger
}

func NewCompletionHandler(svc *services.CompletionService, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		svc:    svc,
		logger: orNop(logger).Named("completion_handler"),
	}
}

type completeRequest struct {
	// Date is YYYY-MM-DD; empty means today in the engine's timezone.
	Date string `json:"date"`
}

type completeResponse struct {
	Completion *domain.CompletionRecord `json:"completion"`
	Habit      *domain.Habit            `json:"habit"`
}

func (h *CompletionHandler) RegisterRoutes(router *gin.RouterGroup) {
	completions := router.Group("/habits/:id/completions")
	{
		completions.POST("", h.Complete)
		completions.GET("", h.List)
		completions.DELETE("/:date", h.Uncomplete)
	}
}

func (h *CompletionHandler) Complete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	input := services.CompleteInput{HabitID: c.Param("id"), UserID: userID}
	if req.Date != "" {
		date, err := civil.ParseDate(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		input.Date = date
	}

	record, habit, err := h.svc.Complete(c.Request.Context(), input)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, completeResponse{Completion: record, Habit: habit})
}

func (h *CompletionHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	records, err := h.svc.ListByHabitID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	if records == nil {
		records = []*domain.CompletionRecord{}
	}

	c.JSON(http.StatusOK, records)
}

func (h *CompletionHandler) Uncomplete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	date, err := civil.ParseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
		return
	}

	if err := h.svc.Uncomplete(c.Request.Context(), c.Param("id"), userID, date); err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
