package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

type UserHandler struct {
	redisService *services.RedisService
	gameEngine   *services.GameEngine
}

func NewUserHandler(redisService *services.RedisService, gameEngine *services.GameEngine) *UserHandler {
	return &UserHandler{
		redisService: redisService,
		gameEngine:   gameEngine,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	wallet := c.GetString("wallet")
	sessionID := c.GetString("session_id")
	ctx := c.Request.Context()

	session, err := h.redisService.GetUserSession(ctx, wallet, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	spinSession, err := h.gameEngine.Session(ctx, wallet)
	if err != nil {
		respondError(c, "Failed to get spin session", err)
		return
	}

	stats, err := h.gameEngine.Stats(ctx, wallet)
	if err != nil {
		respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet": gin.H{
			"address": wallet,
			"short":   models.ShortAddress(wallet),
		},
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"spin_session": spinSession,
		"stats":        stats,
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	wallet := c.GetString("wallet")
	sessionID := c.GetString("session_id")

	if err := h.redisService.DeleteUserSession(c.Request.Context(), wallet, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
