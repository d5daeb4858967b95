package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

type FreezeHandler struct {
	svc    *services.FreezeService
	logger *zap.Logger
}

func NewFreezeHandler(svc *services.FreezeService, logger *zap.Logger) *FreezeHandler {
	return &FreezeHandler{
		svc:    svc,
		logger: orNop(logger).Named("freeze_handler"),
	}
}

type purchaseRequest struct {
	Days int `json:"days" binding:"required"`
	Cost int `json:"cost"`
}

type diamondsRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func (h *FreezeHandler) RegisterRoutes(router *gin.RouterGroup) {
	freeze := router.Group("/freeze")
	{
		freeze.GET("", h.Balance)
		freeze.POST("/purchase", h.Purchase)
		freeze.POST("/consume", h.Consume)
		freeze.POST("/diamonds", h.AddDiamonds)
	}
}

func (h *FreezeHandler) Balance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	balance, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Purchase answers 200 with purchased=false when diamonds are insufficient.
func (h *FreezeHandler) Purchase(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purchased, err := h.svc.Purchase(c.Request.Context(), userID, req.Days, req.Cost)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	h.respondWithBalance(c, userID, gin.H{"purchased": purchased})
}

func (h *FreezeHandler) Consume(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	consumed, err := h.svc.ConsumeOneIfAvailable(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	h.respondWithBalance(c, userID, gin.H{"consumed": consumed})
}

func (h *FreezeHandler) AddDiamonds(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req diamondsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.AddDiamonds(c.Request.Context(), userID, req.Amount); err != nil {
		handleError(c, h.logger, err)
		return
	}

	h.respondWithBalance(c, userID, gin.H{})
}

func (h *FreezeHandler) respondWithBalance(c *gin.Context, userID string, body gin.H) {
	balance, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	body["balance"] = balance
	c.JSON(http.StatusOK, body)
}
