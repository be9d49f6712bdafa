package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/config"
	"ancient-spinner-backend/internal/handlers"
	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/middleware"
	"ancient-spinner-backend/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if _, err := logger.Init(logger.Options{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Info("No .env file found, using environment variables")
	}

	segments, err := config.LoadWheel(cfg.WheelConfigPath)
	if err != nil {
		logger.Fatal("Failed to load wheel", zap.Error(err))
	}

	houseWallet, err := solana.PublicKeyFromBase58(cfg.HouseWallet)
	if err != nil {
		logger.Fatal("Invalid house wallet", zap.String("wallet", cfg.HouseWallet), zap.Error(err))
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)
	metrics := services.NewMetrics()
	network := services.NewSolanaNetwork(cfg.RPCURL, cfg.RPCRateLimit, cfg.ConfirmPollInterval)

	relay := services.NewSignatureRelay(cfg.SignTimeout)
	signers := services.ChainedSigners{relay}
	if cfg.DevSignerKeypair != "" {
		if cfg.IsMainnet() {
			logger.Fatal("DEV_SIGNER_KEYPAIR is not allowed on mainnet")
		}
		devSigner, err := services.LoadKeypairSigner(cfg.DevSignerKeypair)
		if err != nil {
			logger.Fatal("Failed to load dev signer", zap.Error(err))
		}
		signers = append(signers, services.NewLocalSigners(devSigner))
		logger.Warn("Local dev signer enabled", zap.String("wallet", devSigner.PublicKey().String()))
	}

	wsHandler := handlers.NewWebSocketHandler(relay, metrics)

	gameEngine, err := services.NewGameEngine(redisService, network, signers, services.EngineConfig{
		Segments:           segments,
		SpinFee:            cfg.SpinFee,
		HouseWallet:        houseWallet,
		MaxSpinsPerSession: cfg.MaxSpinsPerSession,
		Retry: services.RetryOptions{
			MaxAttempts:    cfg.TxMaxAttempts,
			BaseDelay:      cfg.TxBaseDelay,
			AttemptTimeout: cfg.TxAttemptTimeout,
		},
		Cluster: cfg.Cluster,
		LockTTL: cfg.SpinLockTTL(),
	},
		services.WithSelector(services.NewOutcomeSelector(cfg.WinThreshold, nil)),
		services.WithBroadcaster(wsHandler),
		services.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("Failed to build game engine", zap.Error(err))
	}
	wsHandler.AttachEngine(gameEngine)

	authHandler := handlers.NewAuthHandler(redisService, jwtService, gameEngine)
	userHandler := handlers.NewUserHandler(redisService, gameEngine)
	gameHandler := handlers.NewGameHandler(gameEngine)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(), middleware.RequestLogger(), middleware.CORS())

	router.GET("/healthz", func(c *gin.Context) {
		if err := redisService.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/auth")
	{
		auth.GET("/challenge", authHandler.Challenge)
		auth.POST("/wallet", authHandler.Authenticate)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService, redisService), middleware.RateLimitMiddleware(redisService))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)
		protected.GET("/wheel", gameHandler.GetWheel)

		spins := protected.Group("/spins")
		{
			spins.POST("", gameHandler.Spin)
			spins.POST("/claim", gameHandler.Claim)
			spins.POST("/replay", gameHandler.Replay)
		}

		protected.GET("/session", gameHandler.GetSession)
		protected.GET("/stats", gameHandler.GetStats)
		protected.GET("/transactions", gameHandler.GetTransactions)
		protected.GET("/payouts", gameHandler.GetPayouts)
		protected.POST("/payouts/:id/status", gameHandler.UpdatePayoutStatus)
		protected.GET("/wallet/balance", gameHandler.GetBalance)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("cluster", cfg.Cluster),
			zap.String("house_wallet", houseWallet.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
