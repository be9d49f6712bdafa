package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

// SessionLookup finds the login session a token was issued for.
type SessionLookup interface {
	GetUserSession(ctx context.Context, wallet, sessionID string) (*models.UserSession, error)
}

// AuthMiddleware accepts a token only while its login session exists, so a
// logout revokes it.
func AuthMiddleware(jwtService *services.JWTService, sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// Browsers cannot set headers on websocket upgrades.
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if _, err := sessions.GetUserSession(c.Request.Context(), claims.Wallet, claims.SessionID); err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
			} else {
				logger.Error("Failed to load session", zap.String("wallet", claims.Wallet), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			}
			c.Abort()
			return
		}

		c.Set("wallet", claims.Wallet)
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

// RateLimitMiddleware caps the game actions per wallet.
func RateLimitMiddleware(store services.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("wallet")
		if wallet == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var limit int
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/spins"), strings.HasSuffix(path, "/spins/replay"):
			limit = services.DefaultRateLimitSpins
		case strings.HasSuffix(path, "/spins/claim"), strings.Contains(path, "/payouts/"):
			limit = services.DefaultRateLimitClaims
		default:
			c.Next()
			return
		}

		allowed, err := store.CheckRateLimit(c.Request.Context(), wallet, path, limit, window)
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
