package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

type RouterDependencies struct {
	HabitHandler      *HabitHandler
	CompletionHandler *CompletionHandler
	FreezeHandler     *FreezeHandler
	StatusHandler     *StatusHandler
	TokenService      *services.TokenService

	// DB and Redis are optional; nil reports "disabled" on /health.
	DB    *sqlx.DB
	Redis *redis.Client

	RateLimit  int
	RateWindow time.Duration
	StartTime  time.Time
	Logger     *zap.Logger
}

func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(deps.Logger))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	if deps.Redis != nil && deps.RateLimit > 0 {
		window := deps.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		router.Use(middleware.RateLimiterMiddleware(deps.Redis, deps.RateLimit, window, deps.Logger))
	}

	router.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()

		dbStatus := "disabled"
		if deps.DB != nil {
			dbStatus = "connected"
			if err := deps.DB.PingContext(ctx); err != nil {
				dbStatus = "unreachable"
			}
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "connected"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "unreachable"
			}
		}

		statusCode := http.StatusOK
		if dbStatus == "unreachable" || redisStatus == "unreachable" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":   "ok",
			"database": dbStatus,
			"redis":    redisStatus,
			"uptime":   time.Since(deps.StartTime).String(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.TokenService, deps.Logger))
	{
		deps.StatusHandler.RegisterRoutes(apiV1)
		deps.HabitHandler.RegisterRoutes(apiV1)
		deps.CompletionHandler.RegisterRoutes(apiV1)
		deps.FreezeHandler.RegisterRoutes(apiV1)
	}

	return router
}
