package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T) *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Skipping rate limiter integration test (Redis down): %v", err)
	}
	return rdb
}

var ipSeq atomic.Uint32

// uniqueIP keeps runs from sharing a counter without flushing the database.
func uniqueIP() string {
	raw := fmt.Sprintf("fd00::%x:%x:%x", os.Getpid()&0xffff, time.Now().UnixNano()&0xffff, ipSeq.Add(1))
	return net.ParseIP(raw).String()
}

func limitedRouter(rdb *redis.Client, limit int) *gin.Engine {
	router := gin.New()
	router.Use(RateLimiterMiddleware(rdb, limit, time.Minute, nil))
	router.GET("/status", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = net.JoinHostPort(ip, "40000")
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiterMiddleware_Integration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rdb := setupTestRedis(t)
	defer rdb.Close()

	ctx := context.Background()

	t.Run("Requests under the limit pass with headers", func(t *testing.T) {
		ip := uniqueIP()
		defer rdb.Del(ctx, rateLimitPrefix+ip)

		limit := 4
		router := limitedRouter(rdb, limit)

		for i := 1; i <= limit; i++ {
			w := hit(router, ip)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, strconv.Itoa(limit), w.Header().Get("X-RateLimit-Limit"))
			assert.Equal(t, strconv.Itoa(limit-i), w.Header().Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
		}

		ttl, err := rdb.TTL(ctx, rateLimitPrefix+ip).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("Requests over the limit are rejected", func(t *testing.T) {
		ip := uniqueIP()
		defer rdb.Del(ctx, rateLimitPrefix+ip)

		router := limitedRouter(rdb, 2)

		assert.Equal(t, http.StatusOK, hit(router, ip).Code)
		assert.Equal(t, http.StatusOK, hit(router, ip).Code)

		w := hit(router, ip)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("Counter without expiry gets one", func(t *testing.T) {
		ip := uniqueIP()
		key := rateLimitPrefix + ip
		defer rdb.Del(ctx, key)

		require.NoError(t, rdb.Set(ctx, key, 1, 0).Err())

		w := hit(limitedRouter(rdb, 5), ip)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))

		ttl, err := rdb.TTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})
}

func TestRateLimiterMiddleware_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	down := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer down.Close()

	router := gin.New()
	router.Use(RateLimiterMiddleware(down, 1, time.Minute, zaptest.NewLogger(t)))
	router.GET("/status", func(c *gin.Context) {
		c.String(http.StatusOK, "passed")
	})

	for i := 0; i < 3; i++ {
		w := hit(router, "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "passed", w.Body.String())
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
