package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

type AuthHandler struct {
	redisService *services.RedisService
	jwtService   *services.JWTService
	gameEngine   *services.GameEngine
}

func NewAuthHandler(redisService *services.RedisService, jwtService *services.JWTService, gameEngine *services.GameEngine) *AuthHandler {
	return &AuthHandler{
		redisService: redisService,
		jwtService:   jwtService,
		gameEngine:   gameEngine,
	}
}

// Challenge issues the message a wallet must sign to log in.
func (h *AuthHandler) Challenge(c *gin.Context) {
	wallet := c.Query("wallet")
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid wallet address",
			"details": err.Error(),
		})
		return
	}

	nonce, err := models.GenerateNonce()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	now := time.Now()
	challenge := &models.AuthChallenge{
		Wallet:    wallet,
		Nonce:     nonce,
		Message:   models.ChallengeMessage(wallet, nonce, now),
		ExpiresAt: now.Add(services.TTLAuthChallenge),
	}

	if err := h.redisService.StoreAuthChallenge(c.Request.Context(), challenge); err != nil {
		logger.Error("Failed to store challenge", zap.String("wallet", wallet), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"challenge": challenge,
	})
}

// Authenticate checks the signed challenge and opens a session.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req models.WalletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	if err := h.verify(c, req); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, services.ErrInvalidWallet) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   "Authentication failed",
			"details": err.Error(),
		})
		return
	}

	session := &models.UserSession{
		Wallet:       req.Wallet,
		SessionID:    models.GenerateSessionID(),
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}

	if err := h.redisService.StoreUserSession(ctx, session, services.TTLUserSession); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	token, err := h.jwtService.GenerateToken(session.Wallet, session.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	// Each login starts a new spin session.
	if _, err := h.gameEngine.StartSession(ctx, session.Wallet); err != nil {
		logger.Warn("Failed to reset spin session", zap.String("wallet", session.Wallet), zap.Error(err))
	}

	logger.Info("Wallet signed in", zap.String("wallet", req.Wallet))

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"wallet":     session.Wallet,
		"session_id": session.SessionID,
		"expires_in": int(h.jwtService.Expiry().Seconds()),
	})
}

func (h *AuthHandler) verify(c *gin.Context, req models.WalletLoginRequest) error {
	pubkey, err := solana.PublicKeyFromBase58(req.Wallet)
	if err != nil {
		return services.ErrInvalidWallet
	}

	sig, err := solana.SignatureFromBase58(req.Signature)
	if err != nil {
		return services.ErrBadLogin
	}

	challenge, err := h.redisService.TakeAuthChallenge(c.Request.Context(), req.Wallet)
	if err != nil {
		return err
	}

	if !sig.Verify(pubkey, []byte(challenge.Message)) {
		return services.ErrBadLogin
	}
	return nil
}
