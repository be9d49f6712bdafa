package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

type GameHandler struct {
	gameEngine *services.GameEngine
}

func NewGameHandler(gameEngine *services.GameEngine) *GameHandler {
	return &GameHandler{gameEngine: gameEngine}
}

func (h *GameHandler) GetWheel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"wheel":   h.gameEngine.Wheel(),
	})
}

func (h *GameHandler) Spin(c *gin.Context) {
	wallet := c.GetString("wallet")

	result, err := h.gameEngine.Spin(c.Request.Context(), wallet)
	if errors.Is(err, services.ErrPaymentFailed) && result != nil {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "Payment failed",
			"details": result.Payment.Error,
			"payment": result.Payment,
		})
		return
	}
	if err != nil && result != nil {
		// The fee was already charged.
		c.JSON(statusFor(err), gin.H{
			"error":        "Failed to spin",
			"details":      err.Error(),
			"payment":      result.Payment,
			"explorer_url": result.ExplorerURL,
		})
		return
	}
	if err != nil {
		respondError(c, "Failed to spin", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) Claim(c *gin.Context) {
	wallet := c.GetString("wallet")

	result, err := h.gameEngine.Claim(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, "Failed to claim", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"claim":   result,
		// Payouts are recorded, never transferred by this service.
		"settled": false,
	})
}

func (h *GameHandler) Replay(c *gin.Context) {
	wallet := c.GetString("wallet")

	result, err := h.gameEngine.Replay(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, "Failed to replay", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) GetSession(c *gin.Context) {
	session, err := h.gameEngine.Session(c.Request.Context(), c.GetString("wallet"))
	if err != nil {
		respondError(c, "Failed to get session", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": session,
	})
}

func (h *GameHandler) GetStats(c *gin.Context) {
	stats, err := h.gameEngine.Stats(c.Request.Context(), c.GetString("wallet"))
	if err != nil {
		respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

func (h *GameHandler) GetTransactions(c *gin.Context) {
	records, err := h.gameEngine.History(c.Request.Context(), c.GetString("wallet"), queryLimit(c))
	if err != nil {
		respondError(c, "Failed to fetch transactions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": records,
		"count":        len(records),
	})
}

func (h *GameHandler) GetPayouts(c *gin.Context) {
	status := models.PayoutStatus(c.Query("status"))

	payouts, err := h.gameEngine.Payouts(c.Request.Context(), c.GetString("wallet"), status, queryLimit(c))
	if err != nil {
		respondError(c, "Failed to fetch payouts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payouts": payouts,
		"count":   len(payouts),
	})
}

func (h *GameHandler) UpdatePayoutStatus(c *gin.Context) {
	var req models.PayoutStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	payout, err := h.gameEngine.UpdatePayoutStatus(c.Request.Context(), c.GetString("wallet"), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, "Failed to update payout", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payout":  payout,
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	wallet := c.GetString("wallet")

	balance, err := h.gameEngine.Balance(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": gin.H{
			"wallet":    wallet,
			"sol":       balance,
			"formatted": models.FormatSOL(balance),
		},
	})
}

func queryLimit(c *gin.Context) int64 {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > services.MaxHistory {
		limit = 50
	}
	return limit
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidWallet),
		errors.Is(err, services.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPayoutNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSpinInFlight),
		errors.Is(err, services.ErrResultPending),
		errors.Is(err, services.ErrNoPendingResult):
		return http.StatusConflict
	case errors.Is(err, services.ErrSpinLimitReached):
		return http.StatusForbidden
	case errors.Is(err, services.ErrPaymentFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.String("wallet", c.GetString("wallet")), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}
