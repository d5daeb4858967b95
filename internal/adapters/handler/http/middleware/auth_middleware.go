package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	authorizationHeader = "Authorization"
	bearerScheme        = "bearer"
	ContextUserIDKey    = "userID"
)

// TokenValidator resolves a bearer token to the user id it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// AuthMiddleware accepts "Bearer <jwt>" and stores the token subject as the
// user id for downstream handlers. Accounts are issued elsewhere; only the
// signature, issuer and expiry are checked here.
func AuthMiddleware(tokens TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeader)
		if header == "" {
			unauthorized(c, "authorization header required")
			return
		}

		scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
		token = strings.TrimSpace(token)
		if !found || !strings.EqualFold(scheme, bearerScheme) || token == "" || strings.ContainsAny(token, " \t") {
			unauthorized(c, "invalid authorization header format")
			return
		}

		userID, err := tokens.ValidateToken(token)
		if err != nil || userID == "" {
			logger.Debug("rejected bearer token", zap.String("path", c.FullPath()), zap.Error(err))
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the authenticated user id set by AuthMiddleware.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserIDKey)
	return userID, userID != ""
}
