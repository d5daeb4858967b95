package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "kanso:ratelimit:"

// RateLimiterMiddleware is a fixed-window counter per client IP. Redis
// failures fail open.
func RateLimiterMiddleware(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rate_limiter")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := rateLimitPrefix + c.ClientIP()

		var incr *redis.IntCmd
		var ttlCmd *redis.DurationCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			ttlCmd = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			logger.Warn("redis unavailable, request not limited", zap.Error(err))
			c.Next()
			return
		}

		count := incr.Val()
		ttl := ttlCmd.Val()
		if ttl < 0 {
			// first hit of the window, or a key that lost its expiry
			if err := rdb.Expire(ctx, key, window).Err(); err != nil {
				logger.Warn("redis expire failed, dropping counter", zap.String("key", key), zap.Error(err))
				rdb.Del(ctx, key)
				c.Next()
				return
			}
			ttl = window
		}

		remaining := max(0, int64(limit)-count)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(limit) {
			retry := max(1, int(ttl.Round(time.Second).Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"retry_in_s": retry,
			})
			return
		}

		c.Next()
	}
}
