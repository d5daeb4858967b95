package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

type HabitHandler struct {
	svc    *services.HabitService
	logger *zap.Logger
}

func NewHabitHandler(svc *services.HabitService, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{
		svc:    svc,
		logger: orNop(logger).Named("habit_handler"),
	}
}

// scheduleFields is shared by create and reschedule. DayOfWeek takes an
// ISO-8601 number (1 = Monday) or a day name.
type scheduleFields struct {
	Frequency  string `json:"frequency"`
	DayOfWeek  any    `json:"day_of_week"`
	DayOfMonth int    `json:"day_of_month"`
	Month      int    `json:"month"`
	Reminder   string `json:"reminder"`
}

type createHabitRequest struct {
	Title string `json:"title" binding:"required"`
	scheduleFields
}

type updateScheduleRequest struct {
	Title           string `json:"title"`
	ReminderEnabled *bool  `json:"reminder_enabled"`
	Version         int    `json:"version"`
	scheduleFields
}

func (h *HabitHandler) RegisterRoutes(router *gin.RouterGroup) {
	habits := router.Group("/habits")
	{
		habits.POST("", h.Create)
		habits.GET("", h.List)
		habits.GET("/:id", h.Get)
		habits.PUT("/:id/schedule", h.UpdateSchedule)
		habits.DELETE("/:id", h.Delete)
	}
}

func (h *HabitHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req createHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := domain.BuildRecurrence(req.Frequency, req.DayOfWeek, req.DayOfMonth, req.Month)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	habit, err := h.svc.Create(c.Request.Context(), services.CreateHabitInput{
		UserID:     userID,
		Title:      req.Title,
		Recurrence: rec,
		Reminder:   req.Reminder,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, habit)
}

func (h *HabitHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	list, err := h.svc.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*domain.Habit{}
	}

	c.JSON(http.StatusOK, list)
}

func (h *HabitHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	habit, err := h.svc.GetByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, habit)
}

// UpdateSchedule changes title, recurrence and reminder. An empty frequency
// keeps the current recurrence.
func (h *HabitHandler) UpdateSchedule(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.UpdateHabitInput{
		ID:              c.Param("id"),
		UserID:          userID,
		Title:           req.Title,
		Reminder:        req.Reminder,
		ReminderEnabled: req.ReminderEnabled,
		Version:         req.Version,
	}

	if req.Frequency != "" {
		rec, err := domain.BuildRecurrence(req.Frequency, req.DayOfWeek, req.DayOfMonth, req.Month)
		if err != nil {
			handleError(c, h.logger, err)
			return
		}
		input.Recurrence = &rec
	}

	habit, err := h.svc.Update(c.Request.Context(), input)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, habit)
}

func (h *HabitHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
